package browser

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/glasshq/glass/pkg/engine"
)

const (
	defaultPumpMinInterval = 500 * time.Microsecond
	defaultPumpMaxInterval = 4 * time.Millisecond
)

// Pump drives the engine's cooperative message loop from a single
// goroutine. Each iteration pumps the engine when its deadline is due,
// always invokes drain so queued browser events reach their tabs, then
// sleeps for the engine's own hint clamped to [min, max].
type Pump struct {
	min   time.Duration
	max   time.Duration
	drain func()

	start   sync.Once
	started atomic.Bool
	done    chan struct{}
}

// NewPump returns a pump that calls drain once per iteration.
// Non-positive intervals fall back to the defaults.
func NewPump(min, max time.Duration, drain func()) *Pump {
	if min <= 0 {
		min = defaultPumpMinInterval
	}
	if max <= 0 {
		max = defaultPumpMaxInterval
	}
	if max < min {
		max = min
	}
	return &Pump{
		min:   min,
		max:   max,
		drain: drain,
		done:  make(chan struct{}),
	}
}

// Start launches the pump loop. Only the first call has an effect; the
// loop runs until ctx is cancelled.
func (p *Pump) Start(ctx context.Context) {
	p.start.Do(func() {
		p.started.Store(true)
		log.Debug().
			Dur("min", p.min).
			Dur("max", p.max).
			Msg("[pump] scheduler started")
		go p.run(ctx)
	})
}

// Started reports whether the loop was ever launched.
func (p *Pump) Started() bool { return p.started.Load() }

// Done is closed when the pump loop has exited.
func (p *Pump) Done() <-chan struct{} { return p.done }

func (p *Pump) run(ctx context.Context) {
	defer close(p.done)
	timer := time.NewTimer(p.min)
	defer timer.Stop()

	for {
		if engine.IsContextReady() && engine.ShouldPump() {
			engine.PumpMessages()
		}
		// Tabs are drained every cycle so events queued around an
		// engine teardown still reach their tabs.
		p.drain()

		timer.Reset(p.interval())
		select {
		case <-ctx.Done():
			log.Debug().Msg("[pump] scheduler stopped")
			return
		case <-timer.C:
		}
	}
}

// interval clamps the engine's next-pump hint into [min, max]. Before
// the engine is ready the pump idles at max.
func (p *Pump) interval() time.Duration {
	if !engine.IsContextReady() {
		return p.max
	}
	d := engine.TimeUntilNextPump()
	if d < p.min {
		return p.min
	}
	if d > p.max {
		return p.max
	}
	return d
}
