package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/photocal/photocal-server/internal/aiparse"
	"github.com/photocal/photocal-server/internal/api"
	"github.com/photocal/photocal-server/internal/calsync"
	"github.com/photocal/photocal-server/internal/config"
	"github.com/photocal/photocal-server/internal/db"
	"github.com/photocal/photocal-server/internal/llm"
	"github.com/photocal/photocal-server/internal/models"
	"github.com/photocal/photocal-server/internal/pipeline"
	"github.com/photocal/photocal-server/internal/scheduler"
	"github.com/photocal/photocal-server/internal/strategy"
	"github.com/photocal/photocal-server/internal/validate"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting photocal-server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Open database
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	clock := clockwork.NewRealClock()

	// Usage tracking and strategy selection
	tracker := strategy.NewUsageTracker(clock)
	selector := strategy.NewSelector(tracker, cfg.MonthlyBudget)

	// AI extraction is optional; without an API key the pipeline
	// degrades to rule-based extraction only.
	var ai pipeline.AIExtractor
	if cfg.LLMAPIKey != "" {
		llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMFallback, cfg.LLMTimeout)
		ai = aiparse.New(llmClient)
		log.Printf("AI extraction enabled: %s (fallback model: %s)", cfg.LLMBaseURL, cfg.LLMFallback)
	} else {
		log.Println("WARNING: no LLM API key configured, running rule-based extraction only")
	}

	// Extraction pipeline
	cache := pipeline.NewOtterCache(cfg.CacheSize, cfg.CacheTTL)
	validator := validate.New(0, 0)
	pipe := pipeline.NewOrchestrator(selector, ai, validator, cache, clock, cfg.Timezone)

	// Calendar sync is optional; it needs a remote provider endpoint.
	var syncRunner api.SyncRunner
	var sched *scheduler.Scheduler
	if cfg.RemoteCalURL != "" {
		remote := calsync.NewHTTPCalendar(cfg.RemoteCalURL, cfg.RemoteCalKey, 30*time.Second)
		reconciler := calsync.NewReconciler(database, remote, models.ConflictStrategy(cfg.SyncStrategy), clock)
		syncRunner = reconciler

		users := make([]string, 0, len(cfg.APITokens))
		seen := make(map[string]bool)
		for _, user := range cfg.APITokens {
			if !seen[user] {
				seen[user] = true
				users = append(users, user)
			}
		}

		sched, err = scheduler.New(reconciler, scheduler.Config{
			Timezone: cfg.Timezone,
			Users:    users,
			Interval: cfg.SyncInterval,
		})
		if err != nil {
			log.Fatalf("Failed to create scheduler: %v", err)
		}
		if err := sched.Start(); err != nil {
			log.Fatalf("Failed to start scheduler: %v", err)
		}
		log.Printf("Calendar sync enabled: %s every %s for %d users", cfg.RemoteCalURL, cfg.SyncInterval, len(users))
	} else {
		log.Println("Calendar sync disabled (no remote calendar URL configured)")
	}

	// Create router
	handlers := api.NewHandlers(cfg, database, pipe, selector, syncRunner, nil)
	router := api.NewRouter(cfg, handlers)

	// Start server
	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down gracefully...")

	// Give ongoing requests 10 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if sched != nil {
		log.Println("Stopping scheduler...")
		if err := sched.Stop(); err != nil {
			log.Printf("Scheduler shutdown error: %v", err)
		}
	}

	log.Println("Closing database...")
	if err := database.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("Shutdown complete")
}
