package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every interval.
type TickFunc func(ctx context.Context) error

// Options tune scheduler behaviour.
type Options struct {
	Name         string
	Interval     time.Duration
	StartupDelay time.Duration
}

// Scheduler drives periodic execution of a refresh job. Overlapping runs of the
// same scheduler are skipped: a provider fetch can exceed the interval under
// network stress and must not pile up.
type Scheduler struct {
	opts    Options
	logger  zerolog.Logger
	running atomic.Bool
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Str("job", opts.Name).Logger(),
	}
}

// Run blocks, invoking the tick function at each interval until ctx is
// cancelled. The first tick fires after the startup delay, not after a full
// interval.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	s.fire(ctx, tick)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.fire(ctx, tick)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, tick TickFunc) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn().Msg("previous run still in flight, skipping tick")
		return
	}
	defer s.running.Store(false)

	started := time.Now()
	if err := tick(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Dur("elapsed", time.Since(started)).Msg("tick execution failed")
		return
	}
	s.logger.Debug().Dur("elapsed", time.Since(started)).Msg("tick executed")
}
