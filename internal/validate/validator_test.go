package validate

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photocal/photocal-server/internal/models"
)

func datePtr(t *testing.T, value string) *time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", value)
	require.NoError(t, err)
	return &parsed
}

func validEvent(t *testing.T) models.CandidateEvent {
	t.Helper()
	return models.CandidateEvent{
		Title:     "프로젝트 미팅",
		StartDate: datePtr(t, "2024-03-15"),
		StartTime: "14:00",
		Timezone:  models.DefaultTimezone,
		Category:  models.CategoryWork,
		Status:    models.StatusConfirmed,
		Confidence: models.ConfidenceScores{
			Overall:  0.9,
			Title:    0.9,
			DateTime: 0.95,
			Category: 0.7,
		},
		Method: models.MethodRuleBased,
	}
}

func findBy(findings []models.ValidationError, field string) *models.ValidationError {
	for i := range findings {
		if strings.HasSuffix(findings[i].Field, field) {
			return &findings[i]
		}
	}
	return nil
}

func TestValidateCleanEvent(t *testing.T) {
	v := New(0, 0)
	findings := v.Validate([]models.CandidateEvent{validEvent(t)})
	assert.Empty(t, findings)
}

func TestValidateEmptyTitle(t *testing.T) {
	v := New(0, 0)
	ev := validEvent(t)
	ev.Title = "   "

	findings := v.Validate([]models.CandidateEvent{ev})
	f := findBy(findings, "title")
	require.NotNil(t, f)
	assert.Equal(t, models.SeverityError, f.Severity)
	assert.Equal(t, models.DefaultTitle, f.Suggestion)
}

func TestValidateLongTitle(t *testing.T) {
	v := New(0, 0)
	ev := validEvent(t)
	ev.Title = strings.Repeat("가", 250)

	findings := v.Validate([]models.CandidateEvent{ev})
	f := findBy(findings, "title")
	require.NotNil(t, f)
	assert.Equal(t, models.SeverityWarning, f.Severity)
	assert.Equal(t, 101, len([]rune(f.Suggestion)))
	assert.True(t, strings.HasSuffix(f.Suggestion, "…"))
}

func TestValidateLowConfidence(t *testing.T) {
	v := New(0, 0)
	ev := validEvent(t)
	ev.Confidence.Overall = 0.2
	ev.Confidence.DateTime = 0.1

	findings := v.Validate([]models.CandidateEvent{ev})
	assert.NotNil(t, findBy(findings, "confidence.overall"))
	assert.NotNil(t, findBy(findings, "confidence.date_time"))
	for _, f := range findings {
		assert.Equal(t, models.SeverityWarning, f.Severity)
	}
}

func TestValidateDateTimeConfidenceSkippedWithoutDate(t *testing.T) {
	v := New(0, 0)
	ev := validEvent(t)
	ev.StartDate = nil
	ev.StartTime = ""
	ev.Confidence.DateTime = 0

	findings := v.Validate([]models.CandidateEvent{ev})
	assert.Nil(t, findBy(findings, "confidence.date_time"))
}

func TestValidateEndBeforeStart(t *testing.T) {
	v := New(0, 0)
	ev := validEvent(t)
	ev.EndDate = datePtr(t, "2024-03-10")

	findings := v.Validate([]models.CandidateEvent{ev})
	f := findBy(findings, "end_date")
	require.NotNil(t, f)
	assert.Equal(t, models.SeverityError, f.Severity)
	assert.Equal(t, ev.StartDate.Format(time.RFC3339), f.Suggestion)
}

func TestValidateUnknownCategory(t *testing.T) {
	v := New(0, 0)
	ev := validEvent(t)
	ev.Category = models.Category("banquet")

	findings := v.Validate([]models.CandidateEvent{ev})
	f := findBy(findings, "category")
	require.NotNil(t, f)
	assert.Equal(t, models.SeverityWarning, f.Severity)
	assert.Equal(t, string(models.CategoryOther), f.Suggestion)
}

func TestValidateTimeFormats(t *testing.T) {
	tests := []struct {
		value string
		ok    bool
	}{
		{"14:00", true},
		{"9:30", true},
		{"2:30 PM", true},
		{"오후 2시", true},
		{"오후 2시 30분", true},
		{"14시 30분", true},
		{"14시", true},
		{"2pm", false},
		{"fourteen", false},
		{"25:99:00", false},
	}
	v := New(0, 0)
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			ev := validEvent(t)
			ev.StartTime = tt.value
			findings := v.Validate([]models.CandidateEvent{ev})
			f := findBy(findings, "start_time")
			if tt.ok {
				assert.Nil(t, f)
			} else {
				require.NotNil(t, f)
				assert.Equal(t, models.SeverityError, f.Severity)
			}
		})
	}
}

func TestValidateRecurrenceRules(t *testing.T) {
	v := New(0, 0)
	occ := 0
	ev := validEvent(t)
	ev.IsRecurring = true
	ev.Recurrence = &models.RecurrenceRule{
		Frequency:   models.FreqWeekly,
		Interval:    0,
		DaysOfWeek:  []int{1, 7},
		EndDate:     datePtr(t, "2024-01-01"),
		Occurrences: &occ,
	}

	findings := v.Validate([]models.CandidateEvent{ev})
	assert.NotNil(t, findBy(findings, "recurrence.interval"))
	assert.NotNil(t, findBy(findings, "recurrence.days_of_week"))
	assert.NotNil(t, findBy(findings, "recurrence.end_date"))
	assert.NotNil(t, findBy(findings, "recurrence.occurrences"))
}

func TestValidateDuplicates(t *testing.T) {
	v := New(0, 0)
	a := validEvent(t)
	b := validEvent(t)
	b.Title = "프로젝트 미팅" // same key as a

	findings := v.Validate([]models.CandidateEvent{a, b})
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Message, "duplicate")
	assert.Contains(t, findings[0].Field, "events[1]")
}

func TestValidateDuplicatesDifferentTimes(t *testing.T) {
	v := New(0, 0)
	a := validEvent(t)
	b := validEvent(t)
	b.StartTime = "16:00"

	findings := v.Validate([]models.CandidateEvent{a, b})
	assert.Empty(t, findings)
}

func TestValidateSeverityOrdering(t *testing.T) {
	v := New(0, 0)
	ev := validEvent(t)
	ev.Title = ""                  // error
	ev.Confidence.Overall = 0.1    // warning
	ev.EndDate = datePtr(t, "2024-01-01") // error

	findings := v.Validate([]models.CandidateEvent{ev})
	require.True(t, len(findings) >= 3)
	lastRank := -1
	for _, f := range findings {
		rank := severityRank[f.Severity]
		assert.GreaterOrEqual(t, rank, lastRank)
		lastRank = rank
	}
	assert.Equal(t, models.SeverityError, findings[0].Severity)
}

func TestHasBlockingErrors(t *testing.T) {
	assert.False(t, HasBlockingErrors(nil))
	assert.False(t, HasBlockingErrors([]models.ValidationError{{Severity: models.SeverityWarning}}))
	assert.True(t, HasBlockingErrors([]models.ValidationError{
		{Severity: models.SeverityWarning},
		{Severity: models.SeverityError},
	}))
}

func TestCorrectEmptyTitle(t *testing.T) {
	ev := validEvent(t)
	ev.Title = ""
	ev.Confidence.Title = 0.9

	out := Correct([]models.CandidateEvent{ev})
	require.Len(t, out, 1)
	assert.Equal(t, models.DefaultTitle, out[0].Title)
	assert.InDelta(t, 0.3, out[0].Confidence.Title, 1e-9)
}

func TestCorrectEndDateClamp(t *testing.T) {
	ev := validEvent(t)
	ev.EndDate = datePtr(t, "2024-03-01")

	out := Correct([]models.CandidateEvent{ev})
	require.NotNil(t, out[0].EndDate)
	assert.True(t, out[0].EndDate.Equal(*ev.StartDate))
}

func TestCorrectInvalidTimeDropped(t *testing.T) {
	ev := validEvent(t)
	ev.StartTime = "2pm"
	ev.EndTime = "4pm"

	out := Correct([]models.CandidateEvent{ev})
	assert.Empty(t, out[0].StartTime)
	assert.Empty(t, out[0].EndTime)
	assert.NotNil(t, out[0].StartDate)
}

func TestCorrectRecurrenceIntervalDoesNotMutateInput(t *testing.T) {
	ev := validEvent(t)
	ev.Recurrence = &models.RecurrenceRule{Frequency: models.FreqWeekly, Interval: 0}

	out := Correct([]models.CandidateEvent{ev})
	assert.Equal(t, 1, out[0].Recurrence.Interval)
	assert.Equal(t, 0, ev.Recurrence.Interval)
}

func TestCorrectLeavesValidEventAlone(t *testing.T) {
	ev := validEvent(t)
	out := Correct([]models.CandidateEvent{ev})
	assert.Equal(t, ev, out[0])
}
