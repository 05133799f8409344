package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/photocal/photocal-server/internal/models"
)

type countingRunner struct {
	mu      sync.Mutex
	calls   []string
	block   chan struct{} // when set, Sync waits until closed
	failFor string
}

func (r *countingRunner) Sync(_ context.Context, userID string) (*models.SyncResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, userID)
	r.mu.Unlock()

	if r.block != nil {
		<-r.block
	}
	if userID == r.failFor {
		return nil, errors.New("provider down")
	}
	return &models.SyncResult{Success: true, Created: 1}, nil
}

func (r *countingRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestSyncAllRunsEveryUser(t *testing.T) {
	runner := &countingRunner{}
	s, err := New(runner, Config{Timezone: "Asia/Seoul", Users: []string{"alice", "bob"}})
	if err != nil {
		t.Fatalf("creating scheduler: %v", err)
	}

	s.syncAll()

	if runner.callCount() != 2 {
		t.Errorf("expected 2 syncs, got %d", runner.callCount())
	}
}

func TestSyncFailureDoesNotStopOthers(t *testing.T) {
	runner := &countingRunner{failFor: "alice"}
	s, err := New(runner, Config{Users: []string{"alice", "bob"}})
	if err != nil {
		t.Fatalf("creating scheduler: %v", err)
	}

	s.syncAll()

	if runner.callCount() != 2 {
		t.Errorf("expected both users attempted, got %d", runner.callCount())
	}
}

func TestOverlappingSyncSkipped(t *testing.T) {
	runner := &countingRunner{block: make(chan struct{})}
	s, err := New(runner, Config{Users: []string{"alice"}})
	if err != nil {
		t.Fatalf("creating scheduler: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.SyncNow("alice")
		close(done)
	}()

	// Wait for the first sync to take the lock.
	deadline := time.After(2 * time.Second)
	for runner.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("first sync never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// The second sync must be skipped while the first holds the lock.
	s.SyncNow("alice")
	if runner.callCount() != 1 {
		t.Errorf("expected overlapping sync to be skipped, got %d calls", runner.callCount())
	}

	close(runner.block)
	<-done

	// After the lock is released, syncs run again.
	s.SyncNow("alice")
	if runner.callCount() != 2 {
		t.Errorf("expected 2 completed syncs, got %d", runner.callCount())
	}
}

func TestSchedulerStartStop(t *testing.T) {
	runner := &countingRunner{}
	s, err := New(runner, Config{Users: []string{"alice"}, Interval: time.Hour})
	if err != nil {
		t.Fatalf("creating scheduler: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("starting scheduler: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("stopping scheduler: %v", err)
	}
}
