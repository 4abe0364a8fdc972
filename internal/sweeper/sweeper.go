// Package sweeper runs the scheduled cleanup of expired conversation contexts.
package sweeper

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ecsf-gov/sage/internal/store"
)

// DefaultSchedule runs the sweep every five minutes.
const DefaultSchedule = "*/5 * * * *"

// Sweeper periodically deletes idle conversation contexts.
type Sweeper struct {
	store    store.Store
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
}

// New creates a sweeper. Zero maxAge falls back to the store default TTL,
// an empty schedule to DefaultSchedule.
func New(st store.Store, maxAge time.Duration, schedule string) *Sweeper {
	if maxAge <= 0 {
		maxAge = store.DefaultContextTTL
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Sweeper{store: st, maxAge: maxAge, schedule: schedule}
}

// Start schedules the sweep. It returns once the schedule is registered.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("failed to schedule context sweep: %w", err)
	}
	s.cron.Start()
	slog.Info("Sweeper.Start: context sweep scheduled", "schedule", s.schedule, "maxAge", s.maxAge)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	slog.Debug("Sweeper.Stop: context sweep stopped")
}

func (s *Sweeper) sweep() {
	removed, err := s.store.SweepExpired(s.maxAge)
	if err != nil {
		slog.Error("Sweeper.sweep: sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("Sweeper.sweep: expired contexts removed", "removed", removed)
	}
}

// SweepNow runs one sweep immediately, outside the schedule.
func (s *Sweeper) SweepNow() (int, error) {
	return s.store.SweepExpired(s.maxAge)
}
