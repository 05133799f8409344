package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/photocal/photocal-server/internal/aiparse"
	"github.com/photocal/photocal-server/internal/extract"
	"github.com/photocal/photocal-server/internal/models"
	"github.com/photocal/photocal-server/internal/strategy"
	"github.com/photocal/photocal-server/internal/validate"
)

// AIExtractor is the slice of the AI adapter the orchestrator uses.
type AIExtractor interface {
	Extract(ctx context.Context, text string, opts aiparse.Options) (*aiparse.Result, error)
}

// ParseResult is the pipeline's answer for one OCR text.
type ParseResult struct {
	Events     []models.CandidateEvent  `json:"events"`
	Warnings   []models.ValidationError `json:"warnings,omitempty"`
	Strategy   models.Strategy          `json:"strategy"`
	Model      strategy.ModelTier       `json:"model,omitempty"`
	Reasoning  string                   `json:"reasoning"`
	Confidence float64                  `json:"confidence"`
	Usage      models.TokenUsage        `json:"usage"`
	FromCache  bool                     `json:"from_cache"`
	Elapsed    time.Duration            `json:"elapsed_ms"`
}

// Orchestrator runs an OCR text through normalization, strategy
// selection, extraction, validation, and correction. Results are cached
// per text fingerprint and reference day.
type Orchestrator struct {
	selector  *strategy.Selector
	ai        AIExtractor
	validator *validate.Validator
	cache     Cache
	clock     clockwork.Clock
	timezone  string
}

// NewOrchestrator wires the pipeline. ai may be nil, in which case every
// request degrades to rule-based extraction.
func NewOrchestrator(selector *strategy.Selector, ai AIExtractor, validator *validate.Validator, cache Cache, clock clockwork.Clock, timezone string) *Orchestrator {
	if cache == nil {
		cache = NoopCache{}
	}
	if timezone == "" {
		timezone = models.DefaultTimezone
	}
	return &Orchestrator{
		selector:  selector,
		ai:        ai,
		validator: validator,
		cache:     cache,
		clock:     clock,
		timezone:  timezone,
	}
}

// AIConfigured reports whether an AI extractor is wired in; without one
// the orchestrator runs rule-based extraction only.
func (o *Orchestrator) AIConfigured() bool {
	return o.ai != nil
}

// Confidence floor a rule-based hybrid pass must average to skip the AI
// call, and the per-event floor for merging rule events into AI output.
const (
	hybridSkipConfidence  = 0.7
	hybridMergeConfidence = 0.6
)

// ParseEvents extracts calendar events from one OCR text. It never
// returns an error for bad input or an unusable AI reply; those degrade
// to warnings. Only context cancellation propagates.
func (o *Orchestrator) ParseEvents(ctx context.Context, text string) (*ParseResult, error) {
	started := o.clock.Now()
	ref := o.referenceTime()

	normalized := extract.Normalize(text)
	if normalized == "" {
		return &ParseResult{
			Strategy:  models.StrategyRuleBased,
			Reasoning: "empty input",
			Warnings: []models.ValidationError{{
				Type:     models.ValidationFormat,
				Field:    "text",
				Message:  "input text is empty after normalization",
				Severity: models.SeverityWarning,
			}},
			Elapsed: o.clock.Now().Sub(started),
		}, nil
	}

	key := cacheKey(normalized, ref, o.timezone)
	if cached, ok := o.cache.Get(key); ok {
		copied := *cached
		copied.FromCache = true
		copied.Elapsed = o.clock.Now().Sub(started)
		return &copied, nil
	}

	decision := o.selector.Select(normalized)
	result := &ParseResult{
		Strategy:  decision.Strategy,
		Model:     decision.Model,
		Reasoning: decision.Reasoning,
	}

	var events []models.CandidateEvent
	var warnings []models.ValidationError

	effective := decision.Strategy
	if o.ai == nil && effective != models.StrategyRuleBased {
		effective = models.StrategyRuleBased
		result.Strategy = models.StrategyRuleBased
		result.Reasoning = "no AI extractor configured"
	}

	switch effective {
	case models.StrategyRuleBased:
		events = extract.BuildEvents(normalized, ref)

	case models.StrategyAIOnly:
		aiEvents, usage, err := o.runAI(ctx, normalized, ref, decision.Model)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			events = extract.BuildEvents(normalized, ref)
			result.Strategy = models.StrategyRuleBased
			warnings = append(warnings, aiFallbackWarning(err))
		} else {
			events = aiEvents
			result.Usage = usage
		}

	case models.StrategyHybrid:
		ruleEvents := extract.BuildEvents(normalized, ref)
		if meanOverall(ruleEvents) > hybridSkipConfidence {
			events = ruleEvents
			result.Reasoning = decision.Reasoning + "; rule-based result confident, AI skipped"
		} else {
			aiEvents, usage, err := o.runAI(ctx, normalized, ref, decision.Model)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				events = ruleEvents
				result.Strategy = models.StrategyRuleBased
				warnings = append(warnings, aiFallbackWarning(err))
			} else {
				events = mergeHybrid(aiEvents, ruleEvents)
				result.Usage = usage
				for i := range events {
					events[i].Method = models.MethodHybrid
				}
			}
		}
	}

	warnings = append(warnings, o.validator.Validate(events)...)
	events = validate.Correct(events)

	if len(events) == 0 {
		warnings = append(warnings, models.ValidationError{
			Type:     models.ValidationFormat,
			Field:    "text",
			Message:  "no events could be extracted",
			Severity: models.SeverityWarning,
		})
	}

	result.Events = events
	result.Warnings = warnings
	result.Confidence = meanOverall(events)
	result.Elapsed = o.clock.Now().Sub(started)

	o.selector.Tracker().Record(result.Usage)
	o.cache.Set(key, result)
	return result, nil
}

// runAI performs the AI extraction leg.
func (o *Orchestrator) runAI(ctx context.Context, text string, ref time.Time, tier strategy.ModelTier) ([]models.CandidateEvent, models.TokenUsage, error) {
	res, err := o.ai.Extract(ctx, text, aiparse.Options{
		Model:     tier,
		Reference: ref,
		Timezone:  o.timezone,
	})
	if err != nil {
		log.Printf("ai extraction failed, falling back to rule-based: %v", err)
		return nil, models.TokenUsage{}, err
	}
	return res.Events, res.Usage, nil
}

// mergeHybrid keeps all AI events and adds confident rule-based events
// the AI missed, matched by title and start date.
func mergeHybrid(aiEvents, ruleEvents []models.CandidateEvent) []models.CandidateEvent {
	merged := make([]models.CandidateEvent, 0, len(aiEvents)+len(ruleEvents))
	merged = append(merged, aiEvents...)

	seen := make(map[string]bool, len(aiEvents))
	for _, ev := range aiEvents {
		seen[mergeKey(ev)] = true
	}
	for _, ev := range ruleEvents {
		if ev.Confidence.Overall <= hybridMergeConfidence {
			continue
		}
		if seen[mergeKey(ev)] {
			continue
		}
		merged = append(merged, ev)
	}
	return merged
}

func mergeKey(ev models.CandidateEvent) string {
	date := "no-date"
	if ev.StartDate != nil {
		date = ev.StartDate.Format("2006-01-02")
	}
	return strings.ToLower(strings.TrimSpace(ev.Title)) + "|" + date
}

func meanOverall(events []models.CandidateEvent) float64 {
	if len(events) == 0 {
		return 0
	}
	sum := 0.0
	for _, ev := range events {
		sum += ev.Confidence.Overall
	}
	return sum / float64(len(events))
}

func aiFallbackWarning(err error) models.ValidationError {
	return models.ValidationError{
		Type:     models.ValidationFormat,
		Field:    "strategy",
		Message:  fmt.Sprintf("ai extraction failed, used rule-based result: %v", err),
		Severity: models.SeverityWarning,
	}
}

// referenceTime resolves "now" in the pipeline timezone for relative
// date resolution.
func (o *Orchestrator) referenceTime() time.Time {
	loc, err := time.LoadLocation(o.timezone)
	if err != nil {
		loc = time.UTC
	}
	return o.clock.Now().In(loc)
}
