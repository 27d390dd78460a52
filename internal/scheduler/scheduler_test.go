package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSchedulerFiresAfterStartupDelay(t *testing.T) {
	s := New(Options{Name: "test", Interval: time.Hour, StartupDelay: 10 * time.Millisecond}, zerolog.Nop())

	fired := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Run(ctx, func(context.Context) error {
		close(fired)
		cancel()
		return nil
	})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("first tick never fired")
	}
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	s := New(Options{Name: "test", Interval: 10 * time.Millisecond}, zerolog.Nop())

	var active, overlapped atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	s.Run(ctx, func(ctx context.Context) error {
		if active.Add(1) > 1 {
			overlapped.Add(1)
		}
		defer active.Add(-1)
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
		}
		return nil
	})

	if overlapped.Load() != 0 {
		t.Fatalf("ticks overlapped %d times", overlapped.Load())
	}
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	s := New(Options{Name: "test", Interval: time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, func(context.Context) error { return nil }) }()

	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected context error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
