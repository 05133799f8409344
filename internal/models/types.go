package models

import "time"

// Category is the fixed event category set.
type Category string

const (
	CategoryWork          Category = "work"
	CategoryPersonal      Category = "personal"
	CategoryFamily        Category = "family"
	CategoryHealth        Category = "health"
	CategoryEducation     Category = "education"
	CategoryEntertainment Category = "entertainment"
	CategoryTravel        Category = "travel"
	CategorySports        Category = "sports"
	CategoryOther         Category = "other"
)

// Categories lists every valid category.
var Categories = []Category{
	CategoryWork, CategoryPersonal, CategoryFamily, CategoryHealth,
	CategoryEducation, CategoryEntertainment, CategoryTravel,
	CategorySports, CategoryOther,
}

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c Category) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ExtractionMethod records how an event was produced.
type ExtractionMethod string

const (
	MethodRuleBased ExtractionMethod = "rule-based"
	MethodAI        ExtractionMethod = "ai"
	MethodHybrid    ExtractionMethod = "hybrid"
)

// Strategy is the per-request extraction approach chosen by the selector.
type Strategy string

const (
	StrategyRuleBased Strategy = "rule-based"
	StrategyAIOnly    Strategy = "ai-only"
	StrategyHybrid    Strategy = "hybrid"
)

// Frequency is a recurrence frequency.
type Frequency string

const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
)

// RecurrenceRule describes how an event repeats.
// DaysOfWeek uses Sunday=0 .. Saturday=6.
type RecurrenceRule struct {
	Frequency   Frequency   `json:"frequency"`
	Interval    int         `json:"interval"`
	DaysOfWeek  []int       `json:"days_of_week,omitempty"`
	EndDate     *time.Time  `json:"end_date,omitempty"`
	Occurrences *int        `json:"occurrences,omitempty"`
	Exceptions  []time.Time `json:"exceptions,omitempty"`
}

// LocationType classifies an extracted location.
type LocationType string

const (
	LocationVenue    LocationType = "venue"
	LocationOnline   LocationType = "online"
	LocationTBD      LocationType = "tbd"
	LocationMultiple LocationType = "multiple"
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LocationDetails describes where an event takes place.
type LocationDetails struct {
	Name        string       `json:"name"`
	Address     string       `json:"address,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Type        LocationType `json:"type"`
	Confidence  float64      `json:"confidence"`
}

// ConfidenceScores holds per-field extraction certainty, each in [0,1].
type ConfidenceScores struct {
	Overall    float64 `json:"overall"`
	Title      float64 `json:"title"`
	DateTime   float64 `json:"date_time"`
	Location   float64 `json:"location"`
	Recurrence float64 `json:"recurrence"`
	Category   float64 `json:"category"`
}

// TokenUsage accounts for one LLM call (zero for rule-based extraction).
type TokenUsage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	EstimatedCost    float64 `json:"estimated_cost"`
}

// Add accumulates another usage record into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.EstimatedCost += other.EstimatedCost
}

// Event status constants.
const (
	StatusConfirmed = "confirmed"
	StatusTentative = "tentative"
)

// DefaultTimezone is applied when the input carries no timezone hint.
const DefaultTimezone = "Asia/Seoul"

// DefaultTitle is substituted when no usable title survives correction.
const DefaultTitle = "Untitled Event"

// CandidateEvent is one hypothesized calendar event derived from OCR text.
//
// Invariants: if StartDate is nil then Confidence.DateTime is 0 and
// IsAllDay is true; if EndDate is non-nil then EndDate >= StartDate.
type CandidateEvent struct {
	ID           string           `json:"id,omitempty"`
	Title        string           `json:"title"`
	Description  string           `json:"description,omitempty"`
	StartDate    *time.Time       `json:"start_date,omitempty"`
	EndDate      *time.Time       `json:"end_date,omitempty"`
	StartTime    string           `json:"start_time,omitempty"` // display form, e.g. "14:00"
	EndTime      string           `json:"end_time,omitempty"`
	IsAllDay     bool             `json:"is_all_day"`
	Timezone     string           `json:"timezone"`
	IsRecurring  bool             `json:"is_recurring"`
	Recurrence   *RecurrenceRule  `json:"recurrence,omitempty"`
	Location     *LocationDetails `json:"location,omitempty"`
	Category     Category         `json:"category"`
	Status       string           `json:"status"`
	Confidence   ConfidenceScores `json:"confidence"`
	Method       ExtractionMethod `json:"extraction_method"`
	OriginalText string           `json:"original_text,omitempty"`
	Cost         TokenUsage       `json:"cost"`
}

// ValidationSeverity orders validation findings.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
	SeverityInfo    ValidationSeverity = "info"
)

// ValidationType names the rule family that produced a finding.
type ValidationType string

const (
	ValidationDate       ValidationType = "date"
	ValidationTime       ValidationType = "time"
	ValidationLocation   ValidationType = "location"
	ValidationRecurrence ValidationType = "recurrence"
	ValidationFormat     ValidationType = "format"
)

// ValidationError is a single finding from the event validator.
// Errors block acceptance; warnings and info do not.
type ValidationError struct {
	Type       ValidationType     `json:"type"`
	Field      string             `json:"field"`
	Message    string             `json:"message"`
	Suggestion string             `json:"suggestion,omitempty"`
	Severity   ValidationSeverity `json:"severity"`
}

// ConflictType classifies a sync conflict.
type ConflictType string

const (
	ConflictBothModified    ConflictType = "both-modified"
	ConflictDeletedRemotely ConflictType = "deleted-remotely"
	ConflictDeletedLocally  ConflictType = "deleted-locally"
)

// ConflictStrategy selects how sync conflicts are resolved.
type ConflictStrategy string

const (
	ResolveLocalWins  ConflictStrategy = "local-wins"
	ResolveRemoteWins ConflictStrategy = "remote-wins"
	ResolveNewestWins ConflictStrategy = "newest-wins"
	ResolveManual     ConflictStrategy = "manual"
)

// SyncConflict pairs a local and remote event both modified since the
// last successful sync. Produced and consumed within one sync run.
type SyncConflict struct {
	LocalID          string       `json:"local_id"`
	RemoteID         string       `json:"remote_id"`
	Type             ConflictType `json:"conflict_type"`
	LocalModifiedAt  time.Time    `json:"local_modified_at"`
	RemoteModifiedAt time.Time    `json:"remote_modified_at"`
}

// SyncError records one failed remote or local operation during a sync
// run. A failed operation never aborts the run.
type SyncError struct {
	Message string `json:"message"`
	EventID string `json:"event_id,omitempty"`
}

// SyncResult summarizes one sync run. Success is false when any
// operation failed or any conflict was left unresolved.
type SyncResult struct {
	Success   bool           `json:"success"`
	Created   int            `json:"created"`
	Updated   int            `json:"updated"`
	Deleted   int            `json:"deleted"`
	Conflicts []SyncConflict `json:"conflicts,omitempty"`
	Errors    []SyncError    `json:"errors,omitempty"`
}
