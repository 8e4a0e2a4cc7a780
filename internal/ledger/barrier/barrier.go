// Package barrier implements a debouncing scheduler: ingestion calls
// RaiseBarrier once per new block, and a single organize+validate cycle
// runs either once enough blocks have piled up (clearance trip) or once a
// quiet period has elapsed (timeout), never both for the same burst.
package barrier

import (
	"context"
	"sync"
	"time"

	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"github.com/blockforest/ledgercore/internal/telemetry"
)

// DefaultClearance and DefaultTimeout are the default clearance level and
// debounce timeout.
const (
	DefaultClearance             = 400
	DefaultTimeout               = 500 * time.Millisecond
	defaultForcedCyclesPerSecond = 4
)

// Cycle is one organize+validate pass.
type Cycle func(ctx context.Context) error

// Barrier tracks the incoming-since-last-run counter and an armed
// single-shot timer under one mutex, the only concurrent surface in the
// persistence core.
type Barrier struct {
	mu        sync.Mutex
	level     uint64
	timer     *time.Timer
	clearance uint64
	timeout   time.Duration

	// limiter throttles how often two back-to-back clearance trips can
	// fire a cycle in immediate succession, protecting the store from a
	// runaway synchronous rewrite burst when ingestion pushes thousands
	// of blocks at once.
	limiter ratelimit.Limiter

	cycle  Cycle
	logger *zap.Logger
	ctx    context.Context
}

// New constructs a Barrier bound to ctx for the lifetime of every cycle
// it runs; the timer callback has no request-scoped context of its own.
func New(ctx context.Context, logger *zap.Logger, clearance uint64, timeout time.Duration, forcedCyclesPerSecond int, cycle Cycle) *Barrier {
	if forcedCyclesPerSecond <= 0 {
		forcedCyclesPerSecond = defaultForcedCyclesPerSecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Barrier{
		clearance: clearance,
		timeout:   timeout,
		limiter:   ratelimit.New(forcedCyclesPerSecond),
		cycle:     cycle,
		logger:    logger.Named("barrier"),
		ctx:       ctx,
	}
}

// RaiseBarrier is invoked from any ingestion goroutine after a successful
// insert. If the clearance level is tripped, the pending timer (if any)
// is cancelled and a cycle runs immediately. Otherwise a single-shot
// timer is armed, if one is not already running, to flush the burst
// after a quiet period.
func (b *Barrier) RaiseBarrier() {
	telemetry.ObserveBarrierRaise()

	b.mu.Lock()
	b.level++
	tripped := b.level > b.clearance
	if tripped {
		b.resetLocked()
	} else if b.timer == nil {
		b.timer = time.AfterFunc(b.timeout, b.onTimeout)
	}
	b.mu.Unlock()

	if tripped {
		b.limiter.Take()
		b.runCycle("clearance")
	}
}

// onTimeout fires when the debounce timer expires without having been
// cancelled by a clearance trip. A cancelled timer never reaches this
// callback.
func (b *Barrier) onTimeout() {
	b.mu.Lock()
	b.resetLocked()
	b.mu.Unlock()
	b.runCycle("timeout")
}

// resetLocked cancels any armed timer and zeros the counter. Callers must
// hold mu.
func (b *Barrier) resetLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.level = 0
}

func (b *Barrier) runCycle(trigger string) {
	err := b.cycle(b.ctx)
	telemetry.ObserveBarrierCycle(trigger, err)
	if err != nil {
		b.logger.Error("organize/validate cycle failed", zap.Error(err))
	}
}

// Stop cancels any pending timer without running a final cycle, for use
// during shutdown.
func (b *Barrier) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}
