package calsync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photocal/photocal-server/internal/models"
)

type memStore struct {
	events   map[string]LocalEvent
	lastSync time.Time
	nextID   int

	failList   bool
	failUpdate bool
}

func newMemStore(events ...LocalEvent) *memStore {
	s := &memStore{events: make(map[string]LocalEvent)}
	for _, ev := range events {
		s.events[ev.ID] = ev
	}
	return s
}

func (s *memStore) ListEvents(context.Context, string) ([]LocalEvent, error) {
	if s.failList {
		return nil, errors.New("store unavailable")
	}
	out := make([]LocalEvent, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev)
	}
	return out, nil
}

func (s *memStore) CreateEvent(_ context.Context, _ string, ev LocalEvent) (string, error) {
	s.nextID++
	ev.ID = fmt.Sprintf("local-%d", s.nextID)
	s.events[ev.ID] = ev
	return ev.ID, nil
}

func (s *memStore) UpdateEvent(_ context.Context, _ string, ev LocalEvent) error {
	if s.failUpdate {
		return errors.New("write failed")
	}
	s.events[ev.ID] = ev
	return nil
}

func (s *memStore) DeleteEvent(_ context.Context, _ string, id string) error {
	delete(s.events, id)
	return nil
}

func (s *memStore) LastSync(context.Context, string) (time.Time, error) {
	return s.lastSync, nil
}

func (s *memStore) SetLastSync(_ context.Context, _ string, at time.Time) error {
	s.lastSync = at
	return nil
}

type memRemote struct {
	events map[string]RemoteEvent
	nextID int

	failList   bool
	failCreate bool
	failDelete bool
}

func newMemRemote(events ...RemoteEvent) *memRemote {
	r := &memRemote{events: make(map[string]RemoteEvent)}
	for _, ev := range events {
		r.events[ev.ID] = ev
	}
	return r
}

func (r *memRemote) ListEvents(context.Context) ([]RemoteEvent, error) {
	if r.failList {
		return nil, errors.New("provider unavailable")
	}
	out := make([]RemoteEvent, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev)
	}
	return out, nil
}

func (r *memRemote) CreateEvent(_ context.Context, ev RemoteEvent) (string, error) {
	if r.failCreate {
		return "", errors.New("create rejected")
	}
	r.nextID++
	ev.ID = fmt.Sprintf("remote-%d", r.nextID)
	r.events[ev.ID] = ev
	return ev.ID, nil
}

func (r *memRemote) UpdateEvent(_ context.Context, ev RemoteEvent) error {
	if _, ok := r.events[ev.ID]; !ok {
		return errors.New("unknown remote event")
	}
	r.events[ev.ID] = ev
	return nil
}

func (r *memRemote) DeleteEvent(_ context.Context, id string) error {
	if r.failDelete {
		return errors.New("delete rejected")
	}
	delete(r.events, id)
	return nil
}

var (
	syncBase = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	syncNow  = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
)

func newTestReconciler(store *memStore, remote *memRemote, strategy models.ConflictStrategy) *Reconciler {
	return NewReconciler(store, remote, strategy, clockwork.NewFakeClockAt(syncNow))
}

func localFixture(id, externalID string, modified time.Time) LocalEvent {
	return LocalEvent{
		ID:         id,
		Title:      "점심 약속",
		Start:      time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC),
		Timezone:   models.DefaultTimezone,
		Category:   models.CategoryPersonal,
		ExternalID: externalID,
		ModifiedAt: modified,
	}
}

func remoteFixture(id string, modified time.Time) RemoteEvent {
	return RemoteEvent{
		ID:         id,
		Title:      "점심 약속",
		Start:      time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC),
		ModifiedAt: modified,
	}
}

func TestSyncFirstRunCreatesBothWays(t *testing.T) {
	store := newMemStore(localFixture("l1", "", syncBase))
	remote := newMemRemote(remoteFixture("r1", syncBase))
	rec := newTestReconciler(store, remote, models.ResolveNewestWins)

	result, err := rec.Sync(context.Background(), "user-1")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Created)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Conflicts)

	// Local event is now linked to its pushed remote copy.
	assert.Equal(t, "remote-1", store.events["l1"].ExternalID)
	require.NotNil(t, store.events["l1"].SyncedAt)

	// Remote-only event was mirrored locally.
	var mirrored *LocalEvent
	for _, ev := range store.events {
		if ev.ExternalID == "r1" {
			copied := ev
			mirrored = &copied
		}
	}
	require.NotNil(t, mirrored)
	assert.Equal(t, "점심 약속", mirrored.Title)
	assert.Equal(t, models.CategoryOther, mirrored.Category)

	assert.True(t, store.lastSync.Equal(syncNow))
}

func TestSyncPushesLocalUpdate(t *testing.T) {
	store := newMemStore(localFixture("l1", "r1", syncBase.AddDate(0, 0, 5)))
	remote := newMemRemote(remoteFixture("r1", syncBase.Add(-time.Hour)))
	store.lastSync = syncBase
	rec := newTestReconciler(store, remote, models.ResolveNewestWins)

	local := store.events["l1"]
	local.Title = "저녁 약속"
	store.events["l1"] = local

	result, err := rec.Sync(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, "저녁 약속", remote.events["r1"].Title)
}

func TestSyncPullsRemoteUpdateKeepsLocalFields(t *testing.T) {
	store := newMemStore(localFixture("l1", "r1", syncBase.Add(-time.Hour)))
	store.lastSync = syncBase
	rem := remoteFixture("r1", syncBase.AddDate(0, 0, 5))
	rem.Title = "Lunch (moved)"
	remote := newMemRemote(rem)
	rec := newTestReconciler(store, remote, models.ResolveNewestWins)

	result, err := rec.Sync(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Updated)

	updated := store.events["l1"]
	assert.Equal(t, "Lunch (moved)", updated.Title)
	assert.Equal(t, models.CategoryPersonal, updated.Category)
	assert.Equal(t, models.DefaultTimezone, updated.Timezone)
}

func TestSyncNewestWinsConflict(t *testing.T) {
	tests := []struct {
		name        string
		localMod    time.Time
		remoteMod   time.Time
		wantRemote  string
		wantLocally string
	}{
		{
			name:        "local newer pushes",
			localMod:    syncBase.AddDate(0, 0, 6),
			remoteMod:   syncBase.AddDate(0, 0, 5),
			wantRemote:  "local title",
			wantLocally: "local title",
		},
		{
			name:        "remote newer pulls",
			localMod:    syncBase.AddDate(0, 0, 5),
			remoteMod:   syncBase.AddDate(0, 0, 6),
			wantRemote:  "remote title",
			wantLocally: "remote title",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := localFixture("l1", "r1", tt.localMod)
			local.Title = "local title"
			rem := remoteFixture("r1", tt.remoteMod)
			rem.Title = "remote title"

			store := newMemStore(local)
			store.lastSync = syncBase
			remote := newMemRemote(rem)
			rec := newTestReconciler(store, remote, models.ResolveNewestWins)

			result, err := rec.Sync(context.Background(), "user-1")
			require.NoError(t, err)
			assert.True(t, result.Success)
			assert.Equal(t, 1, result.Updated)
			assert.Equal(t, tt.wantRemote, remote.events["r1"].Title)
			assert.Equal(t, tt.wantLocally, store.events["l1"].Title)
		})
	}
}

func TestSyncManualConflictReported(t *testing.T) {
	local := localFixture("l1", "r1", syncBase.AddDate(0, 0, 5))
	rem := remoteFixture("r1", syncBase.AddDate(0, 0, 6))
	store := newMemStore(local)
	store.lastSync = syncBase
	remote := newMemRemote(rem)
	rec := newTestReconciler(store, remote, models.ResolveManual)

	result, err := rec.Sync(context.Background(), "user-1")
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.Len(t, result.Conflicts, 1)
	conflict := result.Conflicts[0]
	assert.Equal(t, models.ConflictBothModified, conflict.Type)
	assert.Equal(t, "l1", conflict.LocalID)
	assert.Equal(t, "r1", conflict.RemoteID)

	// Neither side changed, and the sync point did not advance.
	assert.True(t, store.lastSync.Equal(syncBase))
}

func TestSyncRemoteDeletion(t *testing.T) {
	t.Run("remote-wins deletes locally", func(t *testing.T) {
		store := newMemStore(localFixture("l1", "r-gone", syncBase))
		store.lastSync = syncBase
		rec := newTestReconciler(store, newMemRemote(), models.ResolveRemoteWins)

		result, err := rec.Sync(context.Background(), "user-1")
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, 1, result.Deleted)
		assert.Empty(t, store.events)
	})

	t.Run("local-wins re-pushes", func(t *testing.T) {
		store := newMemStore(localFixture("l1", "r-gone", syncBase))
		store.lastSync = syncBase
		remote := newMemRemote()
		rec := newTestReconciler(store, remote, models.ResolveLocalWins)

		result, err := rec.Sync(context.Background(), "user-1")
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, 1, result.Created)
		assert.Len(t, remote.events, 1)
		assert.Equal(t, "remote-1", store.events["l1"].ExternalID)
	})

	t.Run("manual reports conflict", func(t *testing.T) {
		store := newMemStore(localFixture("l1", "r-gone", syncBase))
		store.lastSync = syncBase
		rec := newTestReconciler(store, newMemRemote(), models.ResolveManual)

		result, err := rec.Sync(context.Background(), "user-1")
		require.NoError(t, err)
		assert.False(t, result.Success)
		require.Len(t, result.Conflicts, 1)
		assert.Equal(t, models.ConflictDeletedRemotely, result.Conflicts[0].Type)
	})
}

func TestSyncPropagatesLocalDeletion(t *testing.T) {
	local := localFixture("l1", "r1", syncBase)
	local.Deleted = true
	store := newMemStore(local)
	store.lastSync = syncBase
	remote := newMemRemote(remoteFixture("r1", syncBase))
	rec := newTestReconciler(store, remote, models.ResolveNewestWins)

	result, err := rec.Sync(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Deleted)
	assert.Empty(t, remote.events)
	assert.Empty(t, store.events)
}

func TestSyncListFailureAborts(t *testing.T) {
	store := newMemStore()
	remote := newMemRemote()
	remote.failList = true
	rec := newTestReconciler(store, remote, models.ResolveNewestWins)

	_, err := rec.Sync(context.Background(), "user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list remote events")
}

func TestSyncPerEventFailureContinues(t *testing.T) {
	// Two unsynced locals; remote creation fails for both, but the
	// remote-only event is still pulled.
	store := newMemStore(
		localFixture("l1", "", syncBase),
		localFixture("l2", "", syncBase),
	)
	remote := newMemRemote(remoteFixture("r1", syncBase))
	remote.failCreate = true
	rec := newTestReconciler(store, remote, models.ResolveNewestWins)

	result, err := rec.Sync(context.Background(), "user-1")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Len(t, result.Errors, 2)
	assert.Equal(t, 1, result.Created)

	// Failed runs leave the sync point alone so the pushes retry.
	assert.True(t, store.lastSync.IsZero())
}

func TestSyncRecurringEventRoundTrip(t *testing.T) {
	local := localFixture("l1", "", syncBase)
	local.Recurrence = &models.RecurrenceRule{
		Frequency:  models.FreqWeekly,
		Interval:   1,
		DaysOfWeek: []int{1, 3},
	}
	store := newMemStore(local)
	remote := newMemRemote()
	rec := newTestReconciler(store, remote, models.ResolveNewestWins)

	result, err := rec.Sync(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, result.Success)

	pushed := remote.events["remote-1"]
	assert.Contains(t, pushed.RRule, "FREQ=WEEKLY")
	assert.Contains(t, pushed.RRule, "BYDAY=MO,WE")
}

func TestRenderRRule(t *testing.T) {
	count := 10
	until := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		rule *models.RecurrenceRule
		want []string
	}{
		{"nil rule", nil, nil},
		{
			"daily",
			&models.RecurrenceRule{Frequency: models.FreqDaily, Interval: 1},
			[]string{"FREQ=DAILY"},
		},
		{
			"weekly with days",
			&models.RecurrenceRule{Frequency: models.FreqWeekly, Interval: 2, DaysOfWeek: []int{0, 6}},
			[]string{"FREQ=WEEKLY", "INTERVAL=2", "BYDAY=SU,SA"},
		},
		{
			"monthly with count",
			&models.RecurrenceRule{Frequency: models.FreqMonthly, Interval: 1, Occurrences: &count},
			[]string{"FREQ=MONTHLY", "COUNT=10"},
		},
		{
			"yearly with until",
			&models.RecurrenceRule{Frequency: models.FreqYearly, Interval: 1, EndDate: &until},
			[]string{"FREQ=YEARLY", "UNTIL=20241231"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderRRule(tt.rule)
			require.NoError(t, err)
			for _, want := range tt.want {
				assert.Contains(t, got, want)
			}
		})
	}
}

func TestRenderRRuleRejectsBadInput(t *testing.T) {
	_, err := RenderRRule(&models.RecurrenceRule{Frequency: "fortnightly", Interval: 1})
	assert.Error(t, err)

	_, err = RenderRRule(&models.RecurrenceRule{Frequency: models.FreqWeekly, Interval: 1, DaysOfWeek: []int{7}})
	assert.Error(t, err)
}

func TestParseRRuleRoundTrip(t *testing.T) {
	count := 5
	rule := &models.RecurrenceRule{
		Frequency:   models.FreqWeekly,
		Interval:    2,
		DaysOfWeek:  []int{1, 5},
		Occurrences: &count,
	}

	rendered, err := RenderRRule(rule)
	require.NoError(t, err)

	parsed, err := ParseRRule(rendered)
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.Equal(t, rule.Frequency, parsed.Frequency)
	assert.Equal(t, rule.Interval, parsed.Interval)
	assert.Equal(t, rule.DaysOfWeek, parsed.DaysOfWeek)
	require.NotNil(t, parsed.Occurrences)
	assert.Equal(t, count, *parsed.Occurrences)
}

func TestParseRRuleEmptyAndInvalid(t *testing.T) {
	rule, err := ParseRRule("")
	require.NoError(t, err)
	assert.Nil(t, rule)

	_, err = ParseRRule("FREQ=SOMETIMES")
	assert.Error(t, err)
}
