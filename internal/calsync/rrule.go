package calsync

import (
	"fmt"

	"github.com/teambition/rrule-go"

	"github.com/photocal/photocal-server/internal/models"
)

// Local weekday numbering is Sunday=0; rrule-go counts from Monday.
var rruleWeekdays = [7]rrule.Weekday{
	rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA,
}

var rruleFrequencies = map[models.Frequency]rrule.Frequency{
	models.FreqDaily:   rrule.DAILY,
	models.FreqWeekly:  rrule.WEEKLY,
	models.FreqMonthly: rrule.MONTHLY,
	models.FreqYearly:  rrule.YEARLY,
}

// RenderRRule serializes a recurrence rule to the provider wire form,
// e.g. "FREQ=WEEKLY;INTERVAL=1;BYDAY=MO".
func RenderRRule(rule *models.RecurrenceRule) (string, error) {
	if rule == nil {
		return "", nil
	}
	freq, ok := rruleFrequencies[rule.Frequency]
	if !ok {
		return "", fmt.Errorf("unknown frequency %q", rule.Frequency)
	}

	opt := rrule.ROption{Freq: freq, Interval: rule.Interval}
	for _, d := range rule.DaysOfWeek {
		if d < 0 || d > 6 {
			return "", fmt.Errorf("weekday %d outside [0,6]", d)
		}
		opt.Byweekday = append(opt.Byweekday, rruleWeekdays[d])
	}
	if rule.EndDate != nil {
		opt.Until = *rule.EndDate
	}
	if rule.Occurrences != nil {
		opt.Count = *rule.Occurrences
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return "", fmt.Errorf("build rrule: %w", err)
	}
	return r.String(), nil
}

// ParseRRule converts a provider RRULE string back to our rule form.
// An empty string means no recurrence.
func ParseRRule(s string) (*models.RecurrenceRule, error) {
	if s == "" {
		return nil, nil
	}
	r, err := rrule.StrToRRule(s)
	if err != nil {
		return nil, fmt.Errorf("parse rrule %q: %w", s, err)
	}
	opt := r.OrigOptions

	rule := &models.RecurrenceRule{Interval: opt.Interval}
	if rule.Interval < 1 {
		rule.Interval = 1
	}

	switch opt.Freq {
	case rrule.DAILY:
		rule.Frequency = models.FreqDaily
	case rrule.WEEKLY:
		rule.Frequency = models.FreqWeekly
	case rrule.MONTHLY:
		rule.Frequency = models.FreqMonthly
	case rrule.YEARLY:
		rule.Frequency = models.FreqYearly
	default:
		return nil, fmt.Errorf("unsupported frequency in %q", s)
	}

	for _, wd := range opt.Byweekday {
		for local, known := range rruleWeekdays {
			if wd.Day() == known.Day() {
				rule.DaysOfWeek = append(rule.DaysOfWeek, local)
				break
			}
		}
	}
	if !opt.Until.IsZero() {
		until := opt.Until
		rule.EndDate = &until
	}
	if opt.Count > 0 {
		count := opt.Count
		rule.Occurrences = &count
	}
	return rule, nil
}
