package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photocal/photocal-server/internal/aiparse"
	"github.com/photocal/photocal-server/internal/models"
	"github.com/photocal/photocal-server/internal/strategy"
	"github.com/photocal/photocal-server/internal/validate"
)

type fakeAI struct {
	result   *aiparse.Result
	err      error
	calls    int
	lastOpts aiparse.Options
}

func (f *fakeAI) Extract(_ context.Context, _ string, opts aiparse.Options) (*aiparse.Result, error) {
	f.calls++
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func aiEvent(t *testing.T, title, date string) models.CandidateEvent {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", date)
	require.NoError(t, err)
	return models.CandidateEvent{
		Title:     title,
		StartDate: &parsed,
		Timezone:  models.DefaultTimezone,
		Category:  models.CategoryWork,
		Status:    models.StatusConfirmed,
		Method:    models.MethodAI,
		Confidence: models.ConfidenceScores{
			Overall: 0.9, Title: 0.9, DateTime: 0.95, Category: 0.7,
		},
	}
}

// Complexity tiers exercised below:
//   - plain Korean with one date: rule-based
//   - mixed script plus relative keyword: hybrid
//   - mixed script, relative keyword, and garbled runs: ai-only
const (
	ruleText   = "프로젝트 미팅\n2024년 3월 15일 오후 2시"
	hybridText = "Workshop 워크샵 매월 15일"
	aiText     = "Meeting 미팅 다음주 일정 ooooo 확인"
)

func newTestOrchestrator(ai AIExtractor, budget float64) (*Orchestrator, *strategy.Selector, *clockwork.FakeClock) {
	loc, _ := time.LoadLocation("Asia/Seoul")
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 10, 9, 0, 0, 0, loc))
	selector := strategy.NewSelector(strategy.NewUsageTracker(clock), budget)
	orch := NewOrchestrator(selector, ai, validate.New(0, 0), NewOtterCache(100, time.Hour), clock, "Asia/Seoul")
	return orch, selector, clock
}

func TestParseEventsRuleBased(t *testing.T) {
	ai := &fakeAI{}
	orch, _, _ := newTestOrchestrator(ai, 10)

	result, err := orch.ParseEvents(context.Background(), ruleText)
	require.NoError(t, err)

	assert.Equal(t, models.StrategyRuleBased, result.Strategy)
	assert.Zero(t, ai.calls)
	assert.Zero(t, result.Usage.TotalTokens)
	require.NotEmpty(t, result.Events)
	assert.Equal(t, "프로젝트 미팅", result.Events[0].Title)
	assert.Equal(t, models.MethodRuleBased, result.Events[0].Method)
	assert.False(t, result.FromCache)
}

func TestParseEventsAIOnly(t *testing.T) {
	ai := &fakeAI{result: &aiparse.Result{
		Events: []models.CandidateEvent{aiEvent(t, "Team Meeting", "2024-03-18")},
		Usage:  models.TokenUsage{PromptTokens: 500, CompletionTokens: 100, TotalTokens: 600, EstimatedCost: 0.01},
	}}
	orch, selector, _ := newTestOrchestrator(ai, 10)

	result, err := orch.ParseEvents(context.Background(), aiText)
	require.NoError(t, err)

	assert.Equal(t, models.StrategyAIOnly, result.Strategy)
	assert.Equal(t, 1, ai.calls)
	assert.Equal(t, strategy.TierAccurate, ai.lastOpts.Model)
	assert.Equal(t, "Asia/Seoul", ai.lastOpts.Timezone)
	require.Len(t, result.Events, 1)
	assert.Equal(t, models.MethodAI, result.Events[0].Method)
	assert.Equal(t, 600, result.Usage.TotalTokens)

	snap := selector.Tracker().Snapshot()
	assert.Equal(t, 600, snap.MonthlyTokens)
	assert.InDelta(t, 0.01, snap.MonthlyCost, 1e-9)
}

func TestParseEventsAIFailureFallsBack(t *testing.T) {
	ai := &fakeAI{err: errors.New("model overloaded")}
	orch, _, _ := newTestOrchestrator(ai, 10)

	result, err := orch.ParseEvents(context.Background(), aiText)
	require.NoError(t, err)

	assert.Equal(t, models.StrategyRuleBased, result.Strategy)
	assert.Equal(t, 1, ai.calls)

	var fallback bool
	for _, w := range result.Warnings {
		if w.Field == "strategy" {
			fallback = true
			assert.Contains(t, w.Message, "model overloaded")
		}
	}
	assert.True(t, fallback, "expected a fallback warning")
}

func TestParseEventsHybridRunsAIWhenRulesUnsure(t *testing.T) {
	ai := &fakeAI{result: &aiparse.Result{
		Events: []models.CandidateEvent{aiEvent(t, "Workshop", "2024-03-15")},
		Usage:  models.TokenUsage{TotalTokens: 400, EstimatedCost: 0.005},
	}}
	orch, _, _ := newTestOrchestrator(ai, 10)

	result, err := orch.ParseEvents(context.Background(), hybridText)
	require.NoError(t, err)

	assert.Equal(t, models.StrategyHybrid, result.Strategy)
	assert.Equal(t, 1, ai.calls)
	require.NotEmpty(t, result.Events)
	for _, ev := range result.Events {
		assert.Equal(t, models.MethodHybrid, ev.Method)
	}
	assert.Equal(t, 400, result.Usage.TotalTokens)
}

func TestParseEventsHybridSkipsAIWhenRulesConfident(t *testing.T) {
	ai := &fakeAI{}
	orch, _, _ := newTestOrchestrator(ai, 10)

	// Mixed script raises complexity into the hybrid band, but the date
	// is fully explicit so the rule pass is confident on its own.
	text := "Conference 컨퍼런스 매월 안내\n2024년 3월 20일 오후 3시"

	result, err := orch.ParseEvents(context.Background(), text)
	require.NoError(t, err)

	assert.Equal(t, models.StrategyHybrid, result.Strategy)
	assert.Zero(t, ai.calls)
	assert.Contains(t, result.Reasoning, "AI skipped")
	require.NotEmpty(t, result.Events)
	assert.Equal(t, models.MethodRuleBased, result.Events[0].Method)
}

func TestParseEventsBudgetForcesRuleBased(t *testing.T) {
	ai := &fakeAI{}
	orch, selector, _ := newTestOrchestrator(ai, 10)

	// Daily budget is 10/30; spend past 90% of it.
	selector.Tracker().Record(models.TokenUsage{TotalTokens: 1000, EstimatedCost: 0.32})

	result, err := orch.ParseEvents(context.Background(), aiText)
	require.NoError(t, err)

	assert.Equal(t, models.StrategyRuleBased, result.Strategy)
	assert.Contains(t, result.Reasoning, "budget")
	assert.Zero(t, ai.calls)
}

func TestParseEventsCache(t *testing.T) {
	ai := &fakeAI{}
	orch, _, clock := newTestOrchestrator(ai, 10)

	first, err := orch.ParseEvents(context.Background(), ruleText)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := orch.ParseEvents(context.Background(), ruleText)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Events, second.Events)

	// A new day changes relative-date resolution, so the cache must miss.
	clock.Advance(24 * time.Hour)
	third, err := orch.ParseEvents(context.Background(), ruleText)
	require.NoError(t, err)
	assert.False(t, third.FromCache)
}

func TestParseEventsEmptyInput(t *testing.T) {
	orch, _, _ := newTestOrchestrator(&fakeAI{}, 10)

	result, err := orch.ParseEvents(context.Background(), "   \n\n  ")
	require.NoError(t, err)
	assert.Empty(t, result.Events)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0].Message, "empty")
}

func TestParseEventsNilAIDegrades(t *testing.T) {
	orch, _, _ := newTestOrchestrator(nil, 10)

	result, err := orch.ParseEvents(context.Background(), aiText)
	require.NoError(t, err)
	assert.Equal(t, models.StrategyRuleBased, result.Strategy)
	assert.Contains(t, result.Reasoning, "no AI extractor")
}

func TestParseEventsCorrectsAIOutput(t *testing.T) {
	bad := aiEvent(t, "", "2024-03-18")
	ai := &fakeAI{result: &aiparse.Result{Events: []models.CandidateEvent{bad}}}
	orch, _, _ := newTestOrchestrator(ai, 10)

	result, err := orch.ParseEvents(context.Background(), aiText)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, models.DefaultTitle, result.Events[0].Title)
	assert.True(t, validate.HasBlockingErrors(result.Warnings))
}

func TestMergeHybrid(t *testing.T) {
	start := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	overlap := models.CandidateEvent{Title: "Workshop", StartDate: &start, Confidence: models.ConfidenceScores{Overall: 0.9}}
	extra := models.CandidateEvent{Title: "스터디", StartDate: &start, Confidence: models.ConfidenceScores{Overall: 0.8}}
	weak := models.CandidateEvent{Title: "약한 후보", StartDate: &start, Confidence: models.ConfidenceScores{Overall: 0.5}}

	merged := mergeHybrid(
		[]models.CandidateEvent{overlap},
		[]models.CandidateEvent{overlap, extra, weak},
	)

	require.Len(t, merged, 2)
	assert.Equal(t, "Workshop", merged[0].Title)
	assert.Equal(t, "스터디", merged[1].Title)
}

func TestParseBatch(t *testing.T) {
	orch, _, _ := newTestOrchestrator(&fakeAI{}, 10)

	texts := []string{ruleText, "", "동아리 모임\n2024년 4월 1일"}
	items := orch.ParseBatch(context.Background(), texts, 2)

	require.Len(t, items, 3)
	for i, item := range items {
		assert.Equal(t, i, item.Index)
		assert.Empty(t, item.Error)
		require.NotNil(t, item.Result)
	}
	assert.NotEmpty(t, items[0].Result.Events)
	assert.Empty(t, items[1].Result.Events)
}

func TestParseBatchCancelledContext(t *testing.T) {
	orch, _, _ := newTestOrchestrator(&fakeAI{}, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := orch.ParseBatch(ctx, []string{ruleText, ruleText}, 1)
	require.Len(t, items, 2)
}

func TestCacheKeyDistinguishesInputs(t *testing.T) {
	ref := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	a := cacheKey("text-a", ref, "Asia/Seoul")
	b := cacheKey("text-b", ref, "Asia/Seoul")
	c := cacheKey("text-a", ref.AddDate(0, 0, 1), "Asia/Seoul")
	d := cacheKey("text-a", ref, "America/New_York")

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Equal(t, a, cacheKey("text-a", ref, "Asia/Seoul"))
}
