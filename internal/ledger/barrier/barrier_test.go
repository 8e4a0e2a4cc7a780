package barrier

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestBarrier_TripsOnClearance(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var cycles atomic.Int32

	b := New(ctx, zap.NewNop(), 3, time.Hour, 1000, func(context.Context) error {
		cycles.Add(1)
		return nil
	})
	defer b.Stop()

	for i := 0; i < 4; i++ {
		b.RaiseBarrier()
	}

	if got := cycles.Load(); got != 1 {
		t.Fatalf("expected exactly one immediate cycle on clearance trip, got %d", got)
	}
}

func TestBarrier_FlushesOnTimeout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var cycles atomic.Int32

	b := New(ctx, zap.NewNop(), DefaultClearance, 30*time.Millisecond, 1000, func(context.Context) error {
		cycles.Add(1)
		return nil
	})
	defer b.Stop()

	b.RaiseBarrier()
	if got := cycles.Load(); got != 0 {
		t.Fatalf("expected no immediate cycle below clearance, got %d", got)
	}

	time.Sleep(80 * time.Millisecond)

	if got := cycles.Load(); got != 1 {
		t.Fatalf("expected one cycle after timeout, got %d", got)
	}
}

func TestBarrier_SingleTimerPerBurst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var cycles atomic.Int32

	b := New(ctx, zap.NewNop(), DefaultClearance, 50*time.Millisecond, 1000, func(context.Context) error {
		cycles.Add(1)
		return nil
	})
	defer b.Stop()

	for i := 0; i < 10; i++ {
		b.RaiseBarrier()
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)

	if got := cycles.Load(); got != 1 {
		t.Fatalf("expected a single debounced cycle for one burst, got %d", got)
	}
}

func TestBarrier_StopCancelsPendingTimer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var cycles atomic.Int32

	b := New(ctx, zap.NewNop(), DefaultClearance, 30*time.Millisecond, 1000, func(context.Context) error {
		cycles.Add(1)
		return nil
	})

	b.RaiseBarrier()
	b.Stop()

	time.Sleep(60 * time.Millisecond)

	if got := cycles.Load(); got != 0 {
		t.Fatalf("expected Stop to cancel the pending timer, got %d cycles", got)
	}
}
