package validate

import (
	"strings"

	"github.com/photocal/photocal-server/internal/models"
)

// Correct applies the safe automatic fixes for error-severity findings
// and returns the corrected list. Warnings are reported but never
// auto-applied; the caller surfaces them to the user instead.
//
// Fixes applied:
//   - empty title: substitute the default title
//   - end date before start date: clamp end to start
//   - invalid start time format: drop the time string, keep the date
//   - recurrence interval out of range: reset to 1
func Correct(events []models.CandidateEvent) []models.CandidateEvent {
	corrected := make([]models.CandidateEvent, len(events))
	copy(corrected, events)

	for i := range corrected {
		ev := &corrected[i]

		if strings.TrimSpace(ev.Title) == "" {
			ev.Title = models.DefaultTitle
			if ev.Confidence.Title > 0.3 {
				ev.Confidence.Title = 0.3
			}
		}

		if ev.StartDate != nil && ev.EndDate != nil && ev.EndDate.Before(*ev.StartDate) {
			clamped := *ev.StartDate
			ev.EndDate = &clamped
		}

		if ev.StartTime != "" && !validTimeString(ev.StartTime) {
			ev.StartTime = ""
			ev.EndTime = ""
		}

		if ev.Recurrence != nil && (ev.Recurrence.Interval < 1 || ev.Recurrence.Interval > 999) {
			rule := *ev.Recurrence
			rule.Interval = 1
			ev.Recurrence = &rule
		}
	}

	return corrected
}
