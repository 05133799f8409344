package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/photocal/photocal-server/internal/models"
)

// SyncRunner runs one calendar sync for a user.
type SyncRunner interface {
	Sync(ctx context.Context, userID string) (*models.SyncResult, error)
}

// Scheduler runs periodic calendar syncs for every known user. A
// per-user lock skips a run when the previous one is still going, so a
// slow provider never stacks syncs for the same calendar.
type Scheduler struct {
	scheduler gocron.Scheduler
	runner    SyncRunner
	users     []string
	interval  time.Duration
	timezone  *time.Location

	mu      sync.Mutex
	running map[string]bool
}

// Config holds scheduler configuration
type Config struct {
	Timezone string
	Users    []string
	Interval time.Duration
}

// New creates a new scheduler
func New(runner SyncRunner, cfg Config) (*Scheduler, error) {
	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		tz = time.UTC
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(tz))
	if err != nil {
		return nil, err
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	return &Scheduler{
		scheduler: s,
		runner:    runner,
		users:     cfg.Users,
		interval:  interval,
		timezone:  tz,
		running:   make(map[string]bool),
	}, nil
}

// Start registers the jobs and starts the scheduler
func (s *Scheduler) Start() error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.syncAll),
		gocron.WithName("calendar-sync"),
	)
	if err != nil {
		return err
	}

	s.scheduler.Start()
	log.Printf("Scheduler started, syncing %d users every %v", len(s.users), s.interval)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

func (s *Scheduler) syncAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for _, user := range s.users {
		s.syncUser(ctx, user)
	}
}

func (s *Scheduler) syncUser(ctx context.Context, userID string) {
	if !s.tryLock(userID) {
		log.Printf("Sync for %s still running, skipping", userID)
		return
	}
	defer s.unlock(userID)

	result, err := s.runner.Sync(ctx, userID)
	if err != nil {
		log.Printf("Sync failed for %s: %v", userID, err)
		return
	}

	if !result.Success {
		log.Printf("Sync for %s finished with %d errors and %d conflicts",
			userID, len(result.Errors), len(result.Conflicts))
		return
	}
	log.Printf("Sync for %s: %d created, %d updated, %d deleted",
		userID, result.Created, result.Updated, result.Deleted)
}

func (s *Scheduler) tryLock(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[userID] {
		return false
	}
	s.running[userID] = true
	return true
}

func (s *Scheduler) unlock(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, userID)
}

// SyncNow triggers an immediate sync for one user (for testing and the
// manual sync endpoint path).
func (s *Scheduler) SyncNow(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	s.syncUser(ctx, userID)
}
