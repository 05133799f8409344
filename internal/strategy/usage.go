package strategy

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/photocal/photocal-server/internal/models"
)

// UsageSnapshot is a point-in-time copy of the tracker counters.
type UsageSnapshot struct {
	DailyTokens   int       `json:"daily_tokens"`
	MonthlyTokens int       `json:"monthly_tokens"`
	DailyCost     float64   `json:"daily_cost"`
	MonthlyCost   float64   `json:"monthly_cost"`
	RequestCount  int       `json:"request_count"`
	LastReset     time.Time `json:"last_reset"`
}

// UsageTracker holds the process-wide token and cost counters. One
// instance lives for the process lifetime, owned by the Selector; all
// mutation funnels through Record under a single mutex so concurrent
// extraction requests never interleave a read-modify-write.
type UsageTracker struct {
	mu    sync.Mutex
	clock clockwork.Clock

	dailyTokens   int
	monthlyTokens int
	dailyCost     float64
	monthlyCost   float64
	requestCount  int
	lastReset     time.Time
}

// NewUsageTracker creates a tracker driven by clock (use
// clockwork.NewRealClock in production).
func NewUsageTracker(clock clockwork.Clock) *UsageTracker {
	return &UsageTracker{clock: clock, lastReset: clock.Now()}
}

// Record accumulates one extraction attempt's usage.
func (t *UsageTracker) Record(usage models.TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()

	t.dailyTokens += usage.TotalTokens
	t.monthlyTokens += usage.TotalTokens
	t.dailyCost += usage.EstimatedCost
	t.monthlyCost += usage.EstimatedCost
	t.requestCount++
}

// Snapshot returns a consistent copy of the counters, rolling them over
// first when the wall-clock day or month has advanced past lastReset.
func (t *UsageTracker) Snapshot() UsageSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()

	return UsageSnapshot{
		DailyTokens:   t.dailyTokens,
		MonthlyTokens: t.monthlyTokens,
		DailyCost:     t.dailyCost,
		MonthlyCost:   t.monthlyCost,
		RequestCount:  t.requestCount,
		LastReset:     t.lastReset,
	}
}

func (t *UsageTracker) rolloverLocked() {
	now := t.clock.Now()
	if now.Year() != t.lastReset.Year() || now.Month() != t.lastReset.Month() {
		t.monthlyTokens = 0
		t.monthlyCost = 0
	}
	if now.YearDay() != t.lastReset.YearDay() || now.Year() != t.lastReset.Year() {
		t.dailyTokens = 0
		t.dailyCost = 0
		t.lastReset = now
	}
}
