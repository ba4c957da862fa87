// Package engine defines the boundary to the native browser engine:
// the process-wide bootstrap and pump scheduling state, the handle
// registry, and the event bridge between the engine's own goroutines
// and the host. Concrete engines live in subpackages (see cdp).
package engine

import "context"

// BrowserID identifies one browser instance. Ids are assigned by the
// engine at creation time; zero is never a valid id.
type BrowserID int32

// CreateOptions describes the initial state of a new browser handle.
type CreateOptions struct {
	// URL is the initial navigation target.
	URL string

	// FrameRate is the windowless rendering frame rate cap.
	FrameRate int
}

// Engine is the process-wide native engine. Exactly one engine is
// registered via Initialize; all handles are created through it.
type Engine interface {
	// Start brings the engine's global context up. Blocking; must be
	// called before any CreateBrowser. The bootstrap marks the context
	// ready once Start returns without error.
	Start(ctx context.Context) error

	// CreateBrowser synchronously constructs a native browser handle.
	// The client's callbacks are invoked from the engine's own
	// goroutines from this point on. May block briefly; never called
	// from the pump loop.
	CreateBrowser(ctx context.Context, opts CreateOptions, client *Client) (Handle, error)

	// PumpWork drives the engine's internal message loop one
	// iteration. Only called from the pump scheduler, through
	// PumpMessages.
	PumpWork()

	// Shutdown tears the global context down. All handles must have
	// been closed first (see Shutdown in this package).
	Shutdown()
}

// Handle is one live browser instance. Handles are owned by the
// Registry and reached only through it; no other component stores one.
type Handle interface {
	ID() BrowserID

	// LoadURL starts a navigation on the main frame.
	LoadURL(url string) error

	Reload()
	ReloadIgnoreCache()
	StopLoad()
	GoBack()
	GoForward()

	// Edit commands, dispatched to the focused frame.
	Copy()
	Cut()
	Paste()
	Undo()
	Redo()
	SelectAll()
	Delete()

	// Find searches the page. Results arrive as FindResult events.
	Find(text string, forward, matchCase, findNext bool)
	StopFinding(clearSelection bool)

	SetFocus(focus bool)
	SetHidden(hidden bool)
	SetAudioMuted(muted bool)

	// WasResized tells the engine to re-query the shared RenderState
	// for the current size and scale.
	WasResized()

	// Invalidate requests a repaint of the current frame.
	Invalidate()

	// Close destroys the native browser. force skips unload handlers.
	// Only the Registry calls this; it is never called twice.
	Close(force bool)
}

// Client is the per-tab callback bundle handed to CreateBrowser. The
// engine writes frames and load state into the shared state structs
// from its own goroutines and sends every notification through Events.
type Client struct {
	Render *RenderState
	Load   *LoadState
	Events *EventSender
}

// NewClient bundles the shared state and the event sender for one tab.
func NewClient(render *RenderState, load *LoadState, events *EventSender) *Client {
	return &Client{Render: render, Load: load, Events: events}
}
