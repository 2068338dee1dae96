package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/smith3v/wortschatz/pkg/logger"
)

const sweepTimeout = 5 * time.Minute

// StreakSweeper is implemented by progress.Engine.
type StreakSweeper interface {
	ResetLapsedStreaks(ctx context.Context) (int64, error)
}

// Scheduler runs the nightly maintenance jobs.
type Scheduler struct {
	scheduler *gocron.Scheduler
	sweeper   StreakSweeper
	sweepAt   string
}

// New builds a scheduler that sweeps lapsed streaks daily at sweepAt (HH:MM)
// in loc.
func New(sweeper StreakSweeper, loc *time.Location, sweepAt string) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(loc),
		sweeper:   sweeper,
		sweepAt:   sweepAt,
	}
}

// Start registers the jobs and runs them in the background until Stop or
// until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.scheduler.Every(1).Day().At(s.sweepAt).Do(s.RunSweep, ctx); err != nil {
		return fmt.Errorf("schedule streak sweep at %q: %w", s.sweepAt, err)
	}
	s.scheduler.StartAsync()
	logger.Info("background jobs started", "streak_sweep_at", s.sweepAt)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) Stop() {
	if s.scheduler.IsRunning() {
		s.scheduler.Stop()
		logger.Info("background jobs stopped")
	}
}

// RunSweep resets lapsed streaks once. Failures are logged; the next run
// retries.
func (s *Scheduler) RunSweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	started := time.Now()
	reset, err := s.sweeper.ResetLapsedStreaks(ctx)
	if err != nil {
		logger.Error("streak sweep failed", "error", err)
		return
	}
	logger.Debug("streak sweep finished", "reset", reset, "duration", time.Since(started))
}
