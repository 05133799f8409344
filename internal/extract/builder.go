package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/photocal/photocal-server/internal/models"
)

// BuildEvents composes the extractors into candidate events for one
// normalized OCR text blob. It never fails; unusable input yields an
// empty list.
//
// One event is emitted per date match, all sharing the same title,
// location, category and recurrence. When no date is found, at most one
// tentative all-day event is emitted, and only if a real title or a
// location was extracted.
func BuildEvents(normalizedText string, ref time.Time) []models.CandidateEvent {
	if strings.TrimSpace(normalizedText) == "" {
		return nil
	}

	dateTimes := ExtractDateTimes(normalizedText, ref)
	location := SelectLocation(ExtractLocations(normalizedText))
	recurrence := DetectRecurrence(normalizedText)
	category := ClassifyCategory(normalizedText)
	title, titleConf := selectTitle(normalizedText)

	base := models.CandidateEvent{
		Title:        title,
		Timezone:     models.DefaultTimezone,
		IsRecurring:  recurrence != nil,
		Recurrence:   recurrence,
		Location:     location,
		Category:     category,
		Status:       models.StatusConfirmed,
		Method:       models.MethodRuleBased,
		OriginalText: normalizedText,
	}
	base.Confidence.Title = titleConf
	base.Confidence.Category = CategoryConfidence(category)
	if location != nil {
		base.Confidence.Location = location.Confidence
	}
	if recurrence != nil {
		base.Confidence.Recurrence = 0.8
	}

	var dates, times []DateTimeMatch
	for _, m := range dateTimes {
		if m.TimeOnly {
			times = append(times, m)
		} else {
			dates = append(dates, m)
		}
	}

	if len(dates) == 0 {
		// A fallback title alone is not enough evidence for an event.
		if titleConf < 0.8 && location == nil {
			return nil
		}
		ev := base
		ev.IsAllDay = true
		ev.Status = models.StatusTentative
		ev.Confidence.DateTime = 0
		ev.Confidence.Overall = 0.3
		return []models.CandidateEvent{ev}
	}

	var events []models.CandidateEvent
	for _, d := range dates {
		ev := base
		start := *d.Resolved
		ev.Confidence.DateTime = d.Confidence

		if len(times) > 0 {
			start = withClock(start, times[0])
			ev.StartTime = clockString(times[0])
			if len(times) > 1 {
				end := withClock(*d.Resolved, times[1])
				if !end.Before(start) {
					ev.EndDate = &end
					ev.EndTime = clockString(times[1])
				}
			}
		} else {
			ev.IsAllDay = true
		}
		ev.StartDate = &start
		ev.Confidence.Overall = overallConfidence(ev.Confidence)
		events = append(events, ev)
	}

	return dedupeEvents(events)
}

// overallConfidence averages the populated core components (dateTime,
// location); an absent location is excluded rather than counted as zero.
func overallConfidence(c models.ConfidenceScores) float64 {
	sum, n := 0.0, 0
	if c.DateTime > 0 {
		sum += c.DateTime
		n++
	}
	if c.Location > 0 {
		sum += c.Location
		n++
	}
	if n == 0 {
		return 0.3
	}
	return sum / float64(n)
}

// selectTitle scans lines top to bottom for the first line that is not
// itself a date/time or location expression and has at least 3 runes.
// Falls back to the first line, then to the default title.
func selectTitle(text string) (string, float64) {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return models.DefaultTitle, 0.3
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len([]rune(line)) < 3 {
			continue
		}
		if isDateTimeLine(line) || isLocationLine(line) {
			continue
		}
		return line, 0.8
	}

	return strings.TrimSpace(lines[0]), 0.5
}

// isDateTimeLine reports whether the line is mostly a date/time
// expression (matched spans cover more than half of it).
func isDateTimeLine(line string) bool {
	covered := 0
	for _, re := range []interface{ FindAllStringIndex(string, int) [][]int }{
		fullKoreanDateRegex, partialKoreanDateRegex, relativeWeekRegex,
		relativeDayRegex, englishDateRegex, numericDateRegex,
		meridiemTimeRegex, hourMinuteRegex, koreanHourRegex, bareDayRegex,
	} {
		for _, idx := range re.FindAllStringIndex(line, -1) {
			covered += idx[1] - idx[0]
		}
	}
	return covered*2 > len(line)
}

// isLocationLine reports whether the line reads as a venue rather than
// a title: a 에서-marked phrase, a 장소 label, or a location match
// covering most of the line.
func isLocationLine(line string) bool {
	if strings.HasSuffix(line, "에서") || venueLabelRegex.MatchString(line) {
		return true
	}
	for _, m := range ExtractLocations(line) {
		if m.Type == LocGeneral {
			continue
		}
		if len(m.Text)*2 > len(line) {
			return true
		}
	}
	return false
}

func withClock(date time.Time, t DateTimeMatch) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour, t.Minute, 0, 0, date.Location())
}

func clockString(t DateTimeMatch) string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// dedupeEvents drops later events sharing the same (title, start date)
// pair, keeping the first.
func dedupeEvents(events []models.CandidateEvent) []models.CandidateEvent {
	seen := make(map[string]bool, len(events))
	out := events[:0]
	for _, ev := range events {
		key := ev.Title + "|"
		if ev.StartDate != nil {
			key += ev.StartDate.Format(time.RFC3339)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ev)
	}
	return out
}
