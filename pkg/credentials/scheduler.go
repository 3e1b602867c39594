package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler reloads the invalid file and rotates the pool on a cron
// schedule, covering deployments where file events are unavailable (network
// filesystems, watch disabled).
type Scheduler struct {
	store    *Store
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler for store. Common schedules:
//   - "*/5 * * * *" every five minutes
//   - "@hourly"
func NewScheduler(store *Store, schedule string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    store,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With("component", "credentials.scheduler"),
	}
}

// Start registers the rotation job and starts the cron runner. An empty
// schedule is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule pool rotation: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("pool rotation scheduler started", "schedule", s.schedule)
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	if err := s.store.Load(ctx); err != nil {
		s.logger.Error("scheduled invalid cookie reload failed", "error", err)
		return
	}
	stats, err := s.store.RotatePool()
	if err != nil {
		s.logger.Error("scheduled pool rotation failed", "error", err)
		return
	}
	s.logger.Info("scheduled pool rotation completed",
		"keys", stats.Keys,
		"dropped", stats.Dropped,
	)
}

// Stop stops the cron runner and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("pool rotation scheduler stopped")
}

// NextRun returns the next scheduled rotation, or nil when not running.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if !s.running || len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
