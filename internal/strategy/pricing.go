package strategy

import "math"

// ModelTier names the LLM tiers the selector can pick between.
type ModelTier string

const (
	TierFast     ModelTier = "gpt-4o-mini"
	TierDefault  ModelTier = "gpt-4o"
	TierAccurate ModelTier = "gpt-4-turbo"
)

// ModelPricing is USD per 1K tokens.
type ModelPricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

var pricingTable = map[ModelTier]ModelPricing{
	TierFast:     {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	TierDefault:  {InputPer1K: 0.0025, OutputPer1K: 0.01},
	TierAccurate: {InputPer1K: 0.01, OutputPer1K: 0.03},
}

// Pricing returns the rate card for a tier, defaulting to TierDefault
// for unknown models.
func Pricing(tier ModelTier) ModelPricing {
	if p, ok := pricingTable[tier]; ok {
		return p
	}
	return pricingTable[TierDefault]
}

const (
	promptOverheadTokens = 500
	assumedOutputTokens  = 200
)

// EstimateTokens approximates the prompt token count for text: one
// token per four bytes plus the fixed prompt template overhead.
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(len(text))/4)) + promptOverheadTokens
}

// EstimateCost prices a full AI call for text against a tier.
func EstimateCost(text string, tier ModelTier) float64 {
	p := Pricing(tier)
	prompt := float64(EstimateTokens(text))
	return prompt/1000*p.InputPer1K + assumedOutputTokens/1000.0*p.OutputPer1K
}

// ActualCost prices a completed call from its real token counts.
func ActualCost(promptTokens, completionTokens int, tier ModelTier) float64 {
	p := Pricing(tier)
	return float64(promptTokens)/1000*p.InputPer1K + float64(completionTokens)/1000*p.OutputPer1K
}
