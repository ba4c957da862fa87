package engine

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Process-wide bootstrap and pump scheduling state. The engine is a
// singleton with its own goroutines; this state is reachable from any
// of them. nextPumpAtUS holds the absolute time (microseconds since
// pumpEpoch) the next PumpWork call is due; idleDeadline means no
// work is scheduled.
const idleDeadline = int64(math.MaxInt64)

// idleFallback is re-armed after a pump during which the engine
// scheduled nothing, so the loop still checks back at ~30 Hz.
const idleFallback = 33 * time.Millisecond

var (
	current      atomic.Pointer[engineSlot]
	contextReady atomic.Bool

	pumpEpochOnce sync.Once
	pumpEpoch     time.Time
	nextPumpAtUS  atomic.Int64
)

type engineSlot struct {
	engine Engine
}

func init() {
	nextPumpAtUS.Store(idleDeadline)
}

func elapsedUS() int64 {
	pumpEpochOnce.Do(func() { pumpEpoch = time.Now() })
	return time.Since(pumpEpoch).Microseconds()
}

// Initialize registers the process-wide engine and starts its global
// context. A second call with a live engine is a no-op returning nil.
func Initialize(ctx context.Context, e Engine) error {
	if current.Load() != nil {
		return nil
	}
	if err := e.Start(ctx); err != nil {
		return err
	}
	current.Store(&engineSlot{engine: e})
	contextReady.Store(true)
	return nil
}

// Current returns the registered engine, or nil before Initialize.
func Current() Engine {
	if slot := current.Load(); slot != nil {
		return slot.engine
	}
	return nil
}

// IsContextReady reports whether the engine's global context finished
// initializing. Gates browser creation and pumping.
func IsContextReady() bool {
	return contextReady.Load()
}

// SchedulePumpWork records that the engine wants PumpWork called after
// delay. Called by engine implementations from any goroutine; the
// earliest requested deadline wins. Negative delays count as zero.
func SchedulePumpWork(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	target := elapsedUS() + delay.Microseconds()
	for {
		cur := nextPumpAtUS.Load()
		if cur <= target {
			return
		}
		if nextPumpAtUS.CompareAndSwap(cur, target) {
			return
		}
	}
}

// ShouldPump reports whether a pump is due. Always false before the
// context is ready.
func ShouldPump() bool {
	if !contextReady.Load() {
		return false
	}
	return elapsedUS() >= nextPumpAtUS.Load()
}

// TimeUntilNextPump returns how long until the next scheduled pump,
// zero if one is overdue. The scheduler clamps this into its own
// bounds; an idle engine reports a very large value.
func TimeUntilNextPump() time.Duration {
	remaining := nextPumpAtUS.Load() - elapsedUS()
	if remaining <= 0 {
		return 0
	}
	if remaining > int64(time.Hour/time.Microsecond) {
		return time.Hour
	}
	return time.Duration(remaining) * time.Microsecond
}

// PumpMessages runs one engine message-loop iteration. The schedule
// is cleared before pumping; the engine re-schedules during PumpWork
// if more work is pending, otherwise the idle fallback is armed.
func PumpMessages() {
	if !contextReady.Load() {
		return
	}
	e := Current()
	if e == nil {
		return
	}
	nextPumpAtUS.Store(idleDeadline)
	e.PumpWork()
	nextPumpAtUS.CompareAndSwap(idleDeadline, elapsedUS()+idleFallback.Microseconds())
}

// Shutdown closes every registered handle, then shuts the engine's
// global context down. Safe to call more than once. The close-all
// must complete before the engine teardown or live handles would race
// the dying context.
func Shutdown() {
	slot := current.Load()
	if slot == nil {
		return
	}
	contextReady.Store(false)
	defaultRegistry.CloseAll()
	slot.engine.Shutdown()
	current.Store(nil)
	nextPumpAtUS.Store(idleDeadline)
}

// resetForTest clears the bootstrap state between tests.
func resetForTest() {
	current.Store(nil)
	contextReady.Store(false)
	nextPumpAtUS.Store(idleDeadline)
}
