package aiparse

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/photocal/photocal-server/internal/llm"
	"github.com/photocal/photocal-server/internal/models"
	"github.com/photocal/photocal-server/internal/strategy"
)

// Completer is the narrow LLM boundary the adapter needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Result, error)
}

// Options carries per-request extraction context.
type Options struct {
	Model     strategy.ModelTier
	Reference time.Time
	Timezone  string
}

// Result is one AI extraction attempt.
type Result struct {
	Events      []models.CandidateEvent
	Usage       models.TokenUsage
	RawResponse string
}

// Adapter sends one composed prompt to the LLM and parses the JSON
// reply into candidate events.
type Adapter struct {
	client Completer
}

// New creates an adapter over an LLM client.
func New(client Completer) *Adapter {
	return &Adapter{client: client}
}

const (
	maxResponseTokens = 1500
	temperature       = 0.1
)

// Extract runs one LLM call for text. A reply that fails to parse
// yields an empty event list, not an error; transport errors propagate
// (retry and classification live in the llm client).
func (a *Adapter) Extract(ctx context.Context, text string, opts Options) (*Result, error) {
	if opts.Timezone == "" {
		opts.Timezone = models.DefaultTimezone
	}
	if opts.Model == "" {
		opts.Model = strategy.TierDefault
	}

	reply, err := a.client.Complete(ctx, llm.Request{
		Model:       string(opts.Model),
		System:      systemPrompt(text),
		User:        userPrompt(text, opts.Reference, opts.Timezone),
		MaxTokens:   maxResponseTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, err
	}

	usage := models.TokenUsage{
		PromptTokens:     reply.PromptTokens,
		CompletionTokens: reply.CompletionTokens,
		TotalTokens:      reply.PromptTokens + reply.CompletionTokens,
		EstimatedCost:    strategy.ActualCost(reply.PromptTokens, reply.CompletionTokens, opts.Model),
	}

	events := decodeEvents(reply.Content, text, opts)
	for i := range events {
		events[i].Cost = usage
	}

	return &Result{Events: events, Usage: usage, RawResponse: reply.Content}, nil
}

// wireEvent is the LLM-facing event schema.
type wireEvent struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	StartDate   string          `json:"startDate"`
	EndDate     string          `json:"endDate"`
	Location    json.RawMessage `json:"location"`
	IsAllDay    bool            `json:"isAllDay"`
	IsRecurring bool            `json:"isRecurring"`
	Category    string          `json:"category"`
	Confidence  struct {
		Overall  float64 `json:"overall"`
		Title    float64 `json:"title"`
		DateTime float64 `json:"dateTime"`
		Location float64 `json:"location"`
	} `json:"confidence"`
}

type wireLocation struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// decodeEvents handles the three reply shapes the model produces: an
// "events" array, a single "event" object, or a bare event object.
// Anything else decodes to no events.
func decodeEvents(content, originalText string, opts Options) []models.CandidateEvent {
	payload := extractJSONObject(content)
	if payload == "" {
		log.Printf("aiparse: no JSON object in reply (%d bytes)", len(content))
		return nil
	}

	var multi struct {
		Events []wireEvent `json:"events"`
		Event  *wireEvent  `json:"event"`
	}
	var wires []wireEvent
	if err := json.Unmarshal([]byte(payload), &multi); err == nil {
		switch {
		case len(multi.Events) > 0:
			wires = multi.Events
		case multi.Event != nil:
			wires = []wireEvent{*multi.Event}
		}
	}
	if wires == nil {
		// Bare object case: the reply itself is one event.
		var single wireEvent
		if err := json.Unmarshal([]byte(payload), &single); err != nil || single.Title == "" {
			if single.Title == "" {
				log.Printf("aiparse: unparseable reply shape, returning no events")
			}
			return nil
		}
		wires = []wireEvent{single}
	}

	events := make([]models.CandidateEvent, 0, len(wires))
	for _, w := range wires {
		if ev, ok := convertWireEvent(w, originalText, opts); ok {
			events = append(events, ev)
		}
	}
	return events
}

func convertWireEvent(w wireEvent, originalText string, opts Options) (models.CandidateEvent, bool) {
	if strings.TrimSpace(w.Title) == "" && w.StartDate == "" {
		return models.CandidateEvent{}, false
	}

	ev := models.CandidateEvent{
		Title:        strings.TrimSpace(w.Title),
		Description:  w.Description,
		IsAllDay:     w.IsAllDay,
		Timezone:     opts.Timezone,
		IsRecurring:  w.IsRecurring,
		Category:     models.CategoryOther,
		Status:       models.StatusConfirmed,
		Method:       models.MethodAI,
		OriginalText: originalText,
	}
	if models.ValidCategory(models.Category(w.Category)) {
		ev.Category = models.Category(w.Category)
	}

	ev.Confidence = models.ConfidenceScores{
		Overall:  clamp01(w.Confidence.Overall),
		Title:    clamp01(w.Confidence.Title),
		DateTime: clamp01(w.Confidence.DateTime),
		Location: clamp01(w.Confidence.Location),
	}

	if start, ok := parseWireTime(w.StartDate, opts); ok {
		ev.StartDate = &start
		if !w.IsAllDay && (start.Hour() != 0 || start.Minute() != 0) {
			ev.StartTime = start.Format("15:04")
		}
	} else {
		ev.IsAllDay = true
		ev.Confidence.DateTime = 0
	}
	if end, ok := parseWireTime(w.EndDate, opts); ok && ev.StartDate != nil && !end.Before(*ev.StartDate) {
		ev.EndDate = &end
		if !w.IsAllDay {
			ev.EndTime = end.Format("15:04")
		}
	}

	if loc := decodeWireLocation(w.Location, ev.Confidence.Location); loc != nil {
		ev.Location = loc
	} else {
		ev.Confidence.Location = 0
	}

	return ev, true
}

func decodeWireLocation(raw json.RawMessage, confidence float64) *models.LocationDetails {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil
		}
		return &models.LocationDetails{Name: name, Type: models.LocationVenue, Confidence: confidence}
	}

	var obj wireLocation
	if err := json.Unmarshal(raw, &obj); err != nil || strings.TrimSpace(obj.Name) == "" {
		return nil
	}
	return &models.LocationDetails{
		Name:       strings.TrimSpace(obj.Name),
		Address:    obj.Address,
		Type:       models.LocationVenue,
		Confidence: confidence,
	}
}

var wireTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseWireTime(s string, opts Options) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return time.Time{}, false
	}
	loc, err := time.LoadLocation(opts.Timezone)
	if err != nil {
		loc = time.UTC
	}
	for _, layout := range wireTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// extractJSONObject pulls the outermost {...} out of a reply, tolerating
// prose and code fences around it.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
