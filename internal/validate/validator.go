package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/photocal/photocal-server/internal/models"
)

// Validator applies the fixed rule table to candidate event lists.
// Findings are returned as data, never raised; only error-severity
// findings block acceptance.
type Validator struct {
	minOverallConfidence  float64
	minDateTimeConfidence float64
}

// Default confidence floors below which a warning is raised.
const (
	DefaultMinOverallConfidence  = 0.5
	DefaultMinDateTimeConfidence = 0.5
)

const maxTitleLength = 200

// New creates a validator with the given confidence floors; zero values
// select the defaults.
func New(minOverall, minDateTime float64) *Validator {
	if minOverall <= 0 {
		minOverall = DefaultMinOverallConfidence
	}
	if minDateTime <= 0 {
		minDateTime = DefaultMinDateTimeConfidence
	}
	return &Validator{
		minOverallConfidence:  minOverall,
		minDateTimeConfidence: minDateTime,
	}
}

// Accepted start-time display formats: "14:30", "2:30 PM",
// "오후 2시 30분", "오후 2시", "14시 30분".
var timeFormatPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{1,2}:\d{2}$`),
	regexp.MustCompile(`^\d{1,2}:\d{2}\s*(?:AM|PM|am|pm)$`),
	regexp.MustCompile(`^(?:오전|오후)\s*\d{1,2}시(?:\s*\d{1,2}분)?$`),
	regexp.MustCompile(`^\d{1,2}시(?:\s*\d{1,2}분)?$`),
}

func validTimeString(s string) bool {
	for _, p := range timeFormatPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

var severityRank = map[models.ValidationSeverity]int{
	models.SeverityError:   0,
	models.SeverityWarning: 1,
	models.SeverityInfo:    2,
}

// Validate runs every rule over the whole candidate list and returns
// the union of findings, sorted error > warning > info.
func (v *Validator) Validate(events []models.CandidateEvent) []models.ValidationError {
	var findings []models.ValidationError

	seen := make(map[string]bool, len(events))
	for i, ev := range events {
		field := func(name string) string { return fmt.Sprintf("events[%d].%s", i, name) }

		if strings.TrimSpace(ev.Title) == "" {
			findings = append(findings, models.ValidationError{
				Type:       models.ValidationFormat,
				Field:      field("title"),
				Message:    "title is empty",
				Suggestion: models.DefaultTitle,
				Severity:   models.SeverityError,
			})
		} else if len([]rune(ev.Title)) > maxTitleLength {
			findings = append(findings, models.ValidationError{
				Type:       models.ValidationFormat,
				Field:      field("title"),
				Message:    fmt.Sprintf("title exceeds %d characters", maxTitleLength),
				Suggestion: truncateTitle(ev.Title),
				Severity:   models.SeverityWarning,
			})
		}

		if ev.Confidence.Overall < v.minOverallConfidence {
			findings = append(findings, models.ValidationError{
				Type:     models.ValidationFormat,
				Field:    field("confidence.overall"),
				Message:  fmt.Sprintf("overall confidence %.2f below threshold %.2f", ev.Confidence.Overall, v.minOverallConfidence),
				Severity: models.SeverityWarning,
			})
		}

		if ev.StartDate != nil && ev.Confidence.DateTime < v.minDateTimeConfidence {
			findings = append(findings, models.ValidationError{
				Type:     models.ValidationDate,
				Field:    field("confidence.date_time"),
				Message:  fmt.Sprintf("date confidence %.2f below threshold %.2f", ev.Confidence.DateTime, v.minDateTimeConfidence),
				Severity: models.SeverityWarning,
			})
		}

		if ev.StartDate != nil && ev.EndDate != nil && ev.EndDate.Before(*ev.StartDate) {
			findings = append(findings, models.ValidationError{
				Type:       models.ValidationDate,
				Field:      field("end_date"),
				Message:    "end date precedes start date",
				Suggestion: ev.StartDate.Format(time.RFC3339),
				Severity:   models.SeverityError,
			})
		}

		if !models.ValidCategory(ev.Category) {
			findings = append(findings, models.ValidationError{
				Type:       models.ValidationFormat,
				Field:      field("category"),
				Message:    fmt.Sprintf("unknown category %q", ev.Category),
				Suggestion: string(models.CategoryOther),
				Severity:   models.SeverityWarning,
			})
		}

		if ev.StartTime != "" && !validTimeString(ev.StartTime) {
			findings = append(findings, models.ValidationError{
				Type:     models.ValidationTime,
				Field:    field("start_time"),
				Message:  fmt.Sprintf("start time %q matches no accepted format", ev.StartTime),
				Severity: models.SeverityError,
			})
		}

		if ev.Recurrence != nil {
			findings = append(findings, validateRecurrence(ev, field("recurrence"))...)
		}

		key := duplicateKey(ev)
		if seen[key] {
			findings = append(findings, models.ValidationError{
				Type:     models.ValidationFormat,
				Field:    field("title"),
				Message:  "duplicate of an earlier candidate (same title, date, and time)",
				Severity: models.SeverityWarning,
			})
		}
		seen[key] = true
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return severityRank[findings[i].Severity] < severityRank[findings[j].Severity]
	})
	return findings
}

func validateRecurrence(ev models.CandidateEvent, field string) []models.ValidationError {
	var findings []models.ValidationError
	r := ev.Recurrence

	if r.Interval < 1 || r.Interval > 999 {
		findings = append(findings, models.ValidationError{
			Type:       models.ValidationRecurrence,
			Field:      field + ".interval",
			Message:    fmt.Sprintf("interval %d outside [1,999]", r.Interval),
			Suggestion: "1",
			Severity:   models.SeverityError,
		})
	}
	for _, d := range r.DaysOfWeek {
		if d < 0 || d > 6 {
			findings = append(findings, models.ValidationError{
				Type:     models.ValidationRecurrence,
				Field:    field + ".days_of_week",
				Message:  fmt.Sprintf("weekday %d outside [0,6]", d),
				Severity: models.SeverityError,
			})
		}
	}
	if r.EndDate != nil && ev.StartDate != nil && r.EndDate.Before(*ev.StartDate) {
		findings = append(findings, models.ValidationError{
			Type:     models.ValidationRecurrence,
			Field:    field + ".end_date",
			Message:  "recurrence end date precedes event start",
			Severity: models.SeverityError,
		})
	}
	if r.Occurrences != nil && (*r.Occurrences < 1 || *r.Occurrences > 999) {
		findings = append(findings, models.ValidationError{
			Type:     models.ValidationRecurrence,
			Field:    field + ".occurrences",
			Message:  fmt.Sprintf("occurrences %d outside [1,999]", *r.Occurrences),
			Severity: models.SeverityError,
		})
	}
	return findings
}

// duplicateKey identifies candidates that would collapse to the same
// calendar entry: lowercase title + ISO date (or "no-date") + start
// time (or "no-time").
func duplicateKey(ev models.CandidateEvent) string {
	date := "no-date"
	if ev.StartDate != nil {
		date = ev.StartDate.Format("2006-01-02")
	}
	timeStr := ev.StartTime
	if timeStr == "" {
		timeStr = "no-time"
	}
	return strings.ToLower(strings.TrimSpace(ev.Title)) + "|" + date + "|" + timeStr
}

func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= 100 {
		return title
	}
	return string(runes[:100]) + "…"
}

// HasBlockingErrors reports whether any finding is error severity.
func HasBlockingErrors(findings []models.ValidationError) bool {
	for _, f := range findings {
		if f.Severity == models.SeverityError {
			return true
		}
	}
	return false
}
