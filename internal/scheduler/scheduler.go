package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per cycle with the cycle start time. A returned error stops
// the scheduler.
type TickFunc func(ctx context.Context, started time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
}

// Scheduler repeats a cycle, sleeping for whatever remains of the interval after it.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    time.Now,
	}
}

// Run blocks, invoking tick back to back at most once per interval until ctx is cancelled
// or tick fails.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if err := sleep(ctx, s.opts.StartupDelay); err != nil {
		return err
	}

	for {
		started := s.now()
		if err := tick(ctx, started.UTC()); err != nil {
			return err
		}

		elapsed := s.now().Sub(started)
		wait := Remaining(s.opts.Interval, elapsed)
		if elapsed > s.opts.Interval {
			s.logger.Warn().Dur("elapsed", elapsed).Dur("interval", s.opts.Interval).Msg("cycle overran interval")
		}
		s.logger.Debug().Dur("wait", wait).Msg("waiting for next cycle")

		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Remaining is max(0, interval - elapsed).
func Remaining(interval, elapsed time.Duration) time.Duration {
	if d := interval - elapsed; d > 0 {
		return d
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
