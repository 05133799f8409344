package strategy

import (
	"fmt"
	"regexp"

	"github.com/photocal/photocal-server/internal/models"
)

var (
	koreanRegex    = regexp.MustCompile(`[가-힣]`)
	latinRegex     = regexp.MustCompile(`[A-Za-z]`)
	relativeRegex  = regexp.MustCompile(`다음주|이번주|매주|매월`)
	dateTokenRegex = regexp.MustCompile(`\d{1,2}시|\d{1,2}월|\d{1,2}일`)

	// Garbled-OCR indicators: stray single jamo, or runs of characters
	// the engine confuses with each other.
	isolatedJamoRegex = regexp.MustCompile(`(?:^|\s)[ㅣㅡ](?:\s|$)`)
	ooRunRegex        = regexp.MustCompile(`[oO0]{3,}`)
)

// AnalyzeComplexity scores how hard text is for the rule-based
// extractor, additive and capped at 1. Every contributing factor only
// ever raises the score.
func AnalyzeComplexity(text string) float64 {
	score := 0.0
	if len(text) > 1000 {
		score += 0.2
	}
	if koreanRegex.MatchString(text) && latinRegex.MatchString(text) {
		score += 0.3
	}
	if relativeRegex.MatchString(text) {
		score += 0.2
	}
	if distinctMatches(dateTokenRegex, text) > 3 {
		score += 0.3
	}
	if isolatedJamoRegex.MatchString(text) || ooRunRegex.MatchString(text) {
		score += 0.4
	}
	if score > 1 {
		score = 1
	}
	return score
}

func distinctMatches(re *regexp.Regexp, text string) int {
	seen := make(map[string]bool)
	for _, m := range re.FindAllString(text, -1) {
		seen[m] = true
	}
	return len(seen)
}

// Decision is the selector's verdict for one extraction request.
type Decision struct {
	Strategy         models.Strategy `json:"strategy"`
	Model            ModelTier       `json:"model,omitempty"`
	Reasoning        string          `json:"reasoning"`
	EstimatedCost    float64         `json:"estimated_cost"`
	ExpectedAccuracy float64         `json:"expected_accuracy"`
	Complexity       float64         `json:"complexity"`
}

// Selector chooses the extraction strategy per request, weighing text
// complexity against the remaining budget. It owns the process-wide
// UsageTracker.
type Selector struct {
	tracker       *UsageTracker
	monthlyBudget float64
	defaultTier   ModelTier
}

// NewSelector creates a selector with a monthly USD budget.
func NewSelector(tracker *UsageTracker, monthlyBudget float64) *Selector {
	return &Selector{
		tracker:       tracker,
		monthlyBudget: monthlyBudget,
		defaultTier:   TierDefault,
	}
}

// Tracker exposes the usage tracker for cost recording and reporting.
func (s *Selector) Tracker() *UsageTracker { return s.tracker }

// Complexity thresholds for the rule-based / hybrid / ai-only split.
const (
	hybridThreshold = 0.3
	aiOnlyThreshold = 0.7
)

// Select decides the strategy for text. Near-budget always forces
// rule-based at zero cost; budget exhaustion is a strategy decision,
// not an error.
func (s *Selector) Select(text string) Decision {
	usage := s.tracker.Snapshot()
	dailyBudget := s.monthlyBudget / 30

	if usage.DailyCost > 0.9*dailyBudget || usage.MonthlyCost > 0.9*s.monthlyBudget {
		return Decision{
			Strategy: models.StrategyRuleBased,
			Reasoning: fmt.Sprintf("near budget (daily $%.4f of $%.4f, monthly $%.4f of $%.2f)",
				usage.DailyCost, dailyBudget, usage.MonthlyCost, s.monthlyBudget),
			ExpectedAccuracy: 0.7,
		}
	}

	complexity := AnalyzeComplexity(text)
	switch {
	case complexity < hybridThreshold:
		return Decision{
			Strategy:         models.StrategyRuleBased,
			Reasoning:        fmt.Sprintf("low complexity %.2f", complexity),
			ExpectedAccuracy: 0.7,
			Complexity:       complexity,
		}
	case complexity < aiOnlyThreshold:
		tier := s.pickTier(text)
		return Decision{
			Strategy:         models.StrategyHybrid,
			Model:            tier,
			Reasoning:        fmt.Sprintf("medium complexity %.2f", complexity),
			EstimatedCost:    0.7 * EstimateCost(text, tier),
			ExpectedAccuracy: 0.85,
			Complexity:       complexity,
		}
	default:
		tier := s.pickTier(text)
		return Decision{
			Strategy:         models.StrategyAIOnly,
			Model:            tier,
			Reasoning:        fmt.Sprintf("high complexity %.2f", complexity),
			EstimatedCost:    EstimateCost(text, tier),
			ExpectedAccuracy: 0.9,
			Complexity:       complexity,
		}
	}
}

// pickTier selects the model tier: cheap for short plain text, accurate
// for Korean or date-pattern-heavy text, otherwise the default.
func (s *Selector) pickTier(text string) ModelTier {
	complexDates := distinctMatches(dateTokenRegex, text) > 3 || relativeRegex.MatchString(text)
	if EstimateTokens(text) < 500+promptOverheadTokens && !complexDates && !koreanRegex.MatchString(text) {
		return TierFast
	}
	if koreanRegex.MatchString(text) || complexDates {
		return TierAccurate
	}
	return s.defaultTier
}
