package extract

import (
	"regexp"
	"strings"

	"github.com/photocal/photocal-server/internal/models"
)

var (
	dailyRegex     = regexp.MustCompile(`매일`)
	weeklyDayRegex = regexp.MustCompile(`매주\s*(월|화|수|목|금|토|일)요일`)
	weeklyRegex    = regexp.MustCompile(`매주`)
	monthlyRegex   = regexp.MustCompile(`(?:매달|매월)(?:\s*(\d{1,2})일)?`)
	yearlyRegex    = regexp.MustCompile(`매년|해마다`)
)

// Sunday=0 .. Saturday=6, matching models.RecurrenceRule.DaysOfWeek.
var recurrenceWeekdays = map[string]int{
	"일": 0, "월": 1, "화": 2, "수": 3, "목": 4, "금": 5, "토": 6,
}

// DetectRecurrence finds recurring-event language in text. The first
// matching pattern wins, checked daily → weekly → monthly → yearly.
// Returns nil when the event does not recur. EndDate and Occurrences
// are never produced here.
func DetectRecurrence(text string) *models.RecurrenceRule {
	if text == "" {
		return nil
	}

	if dailyRegex.MatchString(text) {
		return &models.RecurrenceRule{Frequency: models.FreqDaily, Interval: 1}
	}

	if groups := weeklyDayRegex.FindStringSubmatch(text); groups != nil {
		return &models.RecurrenceRule{
			Frequency:  models.FreqWeekly,
			Interval:   1,
			DaysOfWeek: []int{recurrenceWeekdays[strings.TrimSpace(groups[1])]},
		}
	}
	if weeklyRegex.MatchString(text) {
		return &models.RecurrenceRule{Frequency: models.FreqWeekly, Interval: 1}
	}

	if monthlyRegex.MatchString(text) {
		return &models.RecurrenceRule{Frequency: models.FreqMonthly, Interval: 1}
	}

	if yearlyRegex.MatchString(text) {
		return &models.RecurrenceRule{Frequency: models.FreqYearly, Interval: 1}
	}

	return nil
}
