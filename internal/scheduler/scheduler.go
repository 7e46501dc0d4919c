// Package scheduler runs background favorites refreshes on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Refresher refreshes the favorites snapshots; desk.Service implements it
type Refresher interface {
	RefreshFavorites(ctx context.Context) error
}

// RefreshFunc adapts a function to Refresher
type RefreshFunc func(ctx context.Context) error

func (f RefreshFunc) RefreshFavorites(ctx context.Context) error { return f(ctx) }

// Scheduler periodically refreshes favorites
type Scheduler struct {
	cron     *gocron.Scheduler
	interval time.Duration
	timeout  time.Duration
}

// New schedules r every interval. Each run gets its own timeout; runs never overlap.
// The first run happens one interval after Start.
func New(r Refresher, interval, timeout time.Duration) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %s", interval)
	}
	if timeout <= 0 {
		timeout = interval
	}

	s := &Scheduler{
		cron:     gocron.NewScheduler(time.UTC),
		interval: interval,
		timeout:  timeout,
	}

	_, err := s.cron.Every(interval).SingletonMode().WaitForSchedule().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		start := time.Now()
		if err := r.RefreshFavorites(ctx); err != nil {
			slog.Warn("scheduled favorites refresh failed", "error", err)
			return
		}
		slog.Debug("scheduled favorites refresh done", "duration", time.Since(start))
	})
	if err != nil {
		return nil, fmt.Errorf("schedule favorites refresh: %w", err)
	}
	return s, nil
}

// Start runs the scheduler in the background
func (s *Scheduler) Start() {
	slog.Info("favorites refresh scheduled", "interval", s.interval)
	s.cron.StartAsync()
}

// Stop halts the scheduler; a refresh already in progress finishes on its own
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// Run starts the scheduler and stops it when ctx is done
func (s *Scheduler) Run(ctx context.Context) {
	s.Start()
	<-ctx.Done()
	s.Stop()
}
