package engine

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry is the process-wide map from browser id to live native
// handle. An id is present exactly while a not-yet-closed handle
// exists for it; removal and the native close are one logical step.
// The lock is held only for map operations, never across Close.
type Registry struct {
	mu      sync.Mutex
	handles map[BrowserID]Handle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[BrowserID]Handle)}
}

// Insert stores a fresh handle. A duplicate id is a programming
// invariant violation: it is logged and the new handle is rejected,
// leaving the existing entry untouched.
func (r *Registry) Insert(id BrowserID, h Handle) bool {
	r.mu.Lock()
	if _, exists := r.handles[id]; exists {
		r.mu.Unlock()
		log.Error().Int32("browser_id", int32(id)).Msg("[engine] duplicate handle insert rejected")
		return false
	}
	r.handles[id] = h
	r.mu.Unlock()
	return true
}

// Contains reports whether a live handle is registered for id.
func (r *Registry) Contains(id BrowserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[id]
	return ok
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// With runs fn with the handle for id while it is registered. The
// handle must not escape fn. Returns false if id is absent.
func (r *Registry) With(id BrowserID, fn func(Handle)) bool {
	r.mu.Lock()
	h, ok := r.handles[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	fn(h)
	return true
}

// RemoveAndClose atomically removes the entry for id and, if one was
// present, force-closes the handle outside the lock. Absence is not
// an error: the handle may already have been closed by CloseAll.
func (r *Registry) RemoveAndClose(id BrowserID) bool {
	r.mu.Lock()
	h, ok := r.handles[id]
	if ok {
		delete(r.handles, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	h.Close(true)
	return true
}

// CloseAll takes the entire map in one locked step, then closes the
// drained handles outside the lock. Concurrent lookups after the take
// see an empty registry rather than racing half-closed handles; when
// CloseAll returns it is safe to shut the engine's global context
// down. Returns the number of handles closed.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	taken := r.handles
	r.handles = make(map[BrowserID]Handle)
	r.mu.Unlock()

	for id, h := range taken {
		log.Debug().Int32("browser_id", int32(id)).Msg("[engine] closing handle at teardown")
		h.Close(true)
	}
	return len(taken)
}

// defaultRegistry is the process-wide registry used when callers do
// not supply their own.
var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide handle registry.
func DefaultRegistry() *Registry {
	return defaultRegistry
}
