package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine counts pump iterations and optionally re-schedules work
// during the pump, like a busy native loop would.
type fakeEngine struct {
	mu             sync.Mutex
	started        bool
	pumps          int
	shutdowns      int
	reschedule     bool
	rescheduleNext time.Duration
}

func (e *fakeEngine) Start(context.Context) error {
	e.mu.Lock()
	e.started = true
	e.mu.Unlock()
	return nil
}

func (e *fakeEngine) CreateBrowser(context.Context, CreateOptions, *Client) (Handle, error) {
	return nil, ErrNotReady
}

func (e *fakeEngine) PumpWork() {
	e.mu.Lock()
	e.pumps++
	reschedule := e.reschedule
	next := e.rescheduleNext
	e.mu.Unlock()
	if reschedule {
		SchedulePumpWork(next)
	}
}

func (e *fakeEngine) Shutdown() {
	e.mu.Lock()
	e.shutdowns++
	e.mu.Unlock()
}

func (e *fakeEngine) pumpCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pumps
}

func TestBootstrap_NotReadyBeforeInitialize(t *testing.T) {
	resetForTest()

	assert.False(t, IsContextReady())
	assert.False(t, ShouldPump())
	assert.Nil(t, Current())

	// Pumping without an engine is a no-op, not a panic.
	PumpMessages()
}

func TestBootstrap_InitializeMarksContextReady(t *testing.T) {
	resetForTest()
	e := &fakeEngine{}

	require.NoError(t, Initialize(context.Background(), e))
	assert.True(t, IsContextReady())
	assert.True(t, e.started)

	// Second initialize is a no-op.
	require.NoError(t, Initialize(context.Background(), &fakeEngine{}))
	assert.Same(t, Engine(e), Current())
}

func TestBootstrap_SchedulePumpWorkEarliestWins(t *testing.T) {
	resetForTest()
	require.NoError(t, Initialize(context.Background(), &fakeEngine{}))

	SchedulePumpWork(time.Hour)
	far := TimeUntilNextPump()
	SchedulePumpWork(0)
	assert.True(t, ShouldPump())
	assert.Less(t, TimeUntilNextPump(), far)

	// A later deadline never moves an earlier one back.
	SchedulePumpWork(time.Hour)
	assert.True(t, ShouldPump())
}

func TestBootstrap_NegativeDelayCountsAsZero(t *testing.T) {
	resetForTest()
	require.NoError(t, Initialize(context.Background(), &fakeEngine{}))

	SchedulePumpWork(-5 * time.Second)
	assert.True(t, ShouldPump())
	assert.Equal(t, time.Duration(0), TimeUntilNextPump())
}

func TestBootstrap_PumpMessagesArmsIdleFallback(t *testing.T) {
	resetForTest()
	e := &fakeEngine{}
	require.NoError(t, Initialize(context.Background(), e))

	SchedulePumpWork(0)
	PumpMessages()
	assert.Equal(t, 1, e.pumpCount())

	// No work was scheduled during the pump: the idle fallback keeps
	// the next wake bounded instead of leaving the loop idle forever.
	next := TimeUntilNextPump()
	assert.Greater(t, next, time.Duration(0))
	assert.LessOrEqual(t, next, idleFallback)
}

func TestBootstrap_RescheduleDuringPumpWins(t *testing.T) {
	resetForTest()
	e := &fakeEngine{reschedule: true, rescheduleNext: time.Millisecond}
	require.NoError(t, Initialize(context.Background(), e))

	SchedulePumpWork(0)
	PumpMessages()

	// The engine's own request, not the idle fallback, is armed.
	assert.LessOrEqual(t, TimeUntilNextPump(), time.Millisecond)
}

func TestBootstrap_ShutdownClosesHandlesBeforeEngine(t *testing.T) {
	resetForTest()
	e := &fakeEngine{}
	require.NoError(t, Initialize(context.Background(), e))

	h := newFakeHandle(1)
	require.True(t, DefaultRegistry().Insert(1, h))

	Shutdown()
	assert.Equal(t, 1, h.closed())
	assert.Equal(t, 0, DefaultRegistry().Len())
	assert.Equal(t, 1, e.shutdowns)
	assert.False(t, IsContextReady())
	assert.Nil(t, Current())

	// Idempotent.
	Shutdown()
	assert.Equal(t, 1, e.shutdowns)
}
