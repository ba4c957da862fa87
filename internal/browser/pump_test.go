package browser

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glasshq/glass/pkg/engine"
)

func TestPumpIntervalClampsOverdueToMin(t *testing.T) {
	setupEngine(t)
	engine.SchedulePumpWork(0)

	p := NewPump(time.Millisecond, 4*time.Millisecond, func() {})

	assert.Equal(t, time.Millisecond, p.interval())
}

func TestPumpIntervalClampsIdleToMax(t *testing.T) {
	setupEngine(t)

	p := NewPump(time.Millisecond, 4*time.Millisecond, func() {})

	assert.Equal(t, 4*time.Millisecond, p.interval())
}

func TestPumpIntervalPassesThroughInBounds(t *testing.T) {
	setupEngine(t)
	engine.SchedulePumpWork(2 * time.Millisecond)

	p := NewPump(time.Millisecond, 10*time.Millisecond, func() {})

	d := p.interval()
	assert.Greater(t, d, time.Duration(0))
	assert.LessOrEqual(t, d, 2*time.Millisecond)
}

func TestPumpDefaultsOnNonPositiveIntervals(t *testing.T) {
	p := NewPump(0, -1, func() {})

	assert.Equal(t, defaultPumpMinInterval, p.min)
	assert.Equal(t, defaultPumpMaxInterval, p.max)
}

func TestPumpRunsDueWorkAndDrains(t *testing.T) {
	eng := setupEngine(t)

	var drains atomic.Int64
	p := NewPump(time.Millisecond, 4*time.Millisecond, func() { drains.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	engine.SchedulePumpWork(0)
	p.Start(ctx)
	p.Start(ctx) // second start is a no-op

	require.Eventually(t, func() bool {
		return eng.pumps.Load() >= 1 && drains.Load() >= 1
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("pump did not stop after cancel")
	}
}

func TestPumpDrainsBeforeEngineReady(t *testing.T) {
	engine.Shutdown()

	var drains atomic.Int64
	p := NewPump(time.Millisecond, 4*time.Millisecond, func() { drains.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	// Queued tab events must still be delivered while no engine
	// context exists, e.g. around an engine teardown.
	require.Eventually(t, func() bool {
		return drains.Load() >= 1
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("pump did not stop after cancel")
	}
}

func TestPumpStopsOnContextCancel(t *testing.T) {
	setupEngine(t)
	p := NewPump(time.Millisecond, 2*time.Millisecond, func() {})

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	require.True(t, p.Started())
	cancel()

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("pump did not stop after cancel")
	}
}
