package browser

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/glasshq/glass/pkg/engine"
)

// Tab owns one page's host-side state and, once created, one engine
// browser handle. A Tab is not safe for concurrent use; the TabManager
// serializes all access to it.
type Tab struct {
	id        string
	browserID engine.BrowserID

	url        string
	title      string
	faviconURL string

	isLoading    bool
	canGoBack    bool
	canGoForward bool

	// pendingURL holds a navigation requested before the browser
	// handle existed. It seeds the initial load on creation.
	pendingURL string

	// suspended freezes display updates for the tab; suspendedURL
	// records where to resume, and stays empty for a tab that never
	// navigated anywhere.
	suspended    bool
	suspendedURL string

	isNewTabPage bool
	isPinned     bool

	renderState *engine.RenderState
	loadState   *engine.LoadState

	sender *engine.EventSender
	events <-chan engine.Event

	registry *engine.Registry
}

// NewTab returns a tab with no browser handle. The first Navigate or
// CreateBrowser call attaches one.
func NewTab(url string, isNewTabPage bool) *Tab {
	sender, events := engine.NewEventChannel()
	return &Tab{
		id:           uuid.NewString(),
		url:          url,
		pendingURL:   url,
		isNewTabPage: isNewTabPage,
		renderState:  engine.NewRenderState(),
		loadState:    engine.NewLoadState(),
		sender:       sender,
		events:       events,
		registry:     engine.DefaultRegistry(),
	}
}

// ID returns the tab's stable identifier.
func (t *Tab) ID() string { return t.id }

// BrowserID returns the engine browser id, or 0 before creation and
// after close.
func (t *Tab) BrowserID() engine.BrowserID { return t.browserID }

// URL returns the tab's current display URL.
func (t *Tab) URL() string { return t.url }

// Title returns the tab's current display title.
func (t *Tab) Title() string { return t.title }

// FaviconURL returns the tab's current favicon URL.
func (t *Tab) FaviconURL() string { return t.faviconURL }

// IsLoading reports whether the page is loading.
func (t *Tab) IsLoading() bool { return t.isLoading }

// CanGoBack reports whether history navigation backwards is possible.
func (t *Tab) CanGoBack() bool { return t.canGoBack }

// CanGoForward reports whether history navigation forwards is possible.
func (t *Tab) CanGoForward() bool { return t.canGoForward }

// IsSuspended reports whether the tab is suspended.
func (t *Tab) IsSuspended() bool { return t.suspended }

// SuspendedURL returns the URL recorded at suspension, or "".
func (t *Tab) SuspendedURL() string { return t.suspendedURL }

// IsNewTabPage reports whether the tab still shows the new-tab page.
func (t *Tab) IsNewTabPage() bool { return t.isNewTabPage }

// IsPinned reports whether the tab is pinned.
func (t *Tab) IsPinned() bool { return t.isPinned }

// SetPinned marks or unmarks the tab as pinned.
func (t *Tab) SetPinned(pinned bool) { t.isPinned = pinned }

// RenderState returns the shared render state consumed by the engine.
func (t *Tab) RenderState() *engine.RenderState { return t.renderState }

// LoadState returns the shared load state consumed by the engine.
func (t *Tab) LoadState() *engine.LoadState { return t.loadState }

// HasBrowser reports whether a live engine handle is attached.
func (t *Tab) HasBrowser() bool {
	return t.browserID != 0 && t.registry.Contains(t.browserID)
}

// CreateBrowser attaches an engine browser handle to the tab. If one
// is already attached the call is a no-op. Creation consumes
// pendingURL as the initial navigation target.
func (t *Tab) CreateBrowser(ctx context.Context, frameRate int) error {
	if t.browserID != 0 {
		return nil
	}
	if !engine.IsContextReady() {
		return engine.ErrNotReady
	}
	eng := engine.Current()
	if eng == nil {
		return engine.ErrNotInitialized
	}

	target := t.pendingURL
	if target == "" {
		target = t.url
	}

	client := &engine.Client{
		Render: t.renderState,
		Load:   t.loadState,
		Events: t.sender,
	}
	handle, err := eng.CreateBrowser(ctx, engine.CreateOptions{
		URL:       target,
		FrameRate: frameRate,
	}, client)
	if err != nil {
		return fmt.Errorf("create browser: %w", err)
	}
	if !t.registry.Insert(handle.ID(), handle) {
		handle.Close(true)
		return fmt.Errorf("create browser: duplicate id %d", handle.ID())
	}

	t.browserID = handle.ID()
	t.pendingURL = ""
	log.Debug().
		Str("tab_id", t.id).
		Int32("browser_id", int32(t.browserID)).
		Str("url", target).
		Msg("[browser] browser created for tab")
	return nil
}

// Navigate loads url in the tab's browser. Without a handle the URL is
// recorded as pending and loaded when the browser is created.
func (t *Tab) Navigate(url string) error {
	t.isNewTabPage = false
	if t.browserID == 0 {
		t.pendingURL = url
		t.url = url
		return nil
	}
	var err error
	if !t.registry.With(t.browserID, func(h engine.Handle) {
		err = h.LoadURL(url)
	}) {
		t.pendingURL = url
		t.url = url
		return nil
	}
	if err == nil {
		t.url = url
		t.isLoading = true
	}
	return err
}

// Suspend hides and mutes the tab and freezes its display state,
// recording the current URL for a later resume. Suspending an already
// suspended tab is a no-op.
func (t *Tab) Suspend() {
	if t.suspended {
		return
	}
	t.suspended = true
	target := t.url
	if target == "" {
		target = t.pendingURL
	}
	t.suspendedURL = target
	t.registry.With(t.browserID, func(h engine.Handle) {
		h.SetHidden(true)
		h.SetAudioMuted(true)
	})
	log.Debug().Str("tab_id", t.id).Str("url", target).Msg("[browser] tab suspended")
}

// Resume unfreezes a suspended tab, unhiding and unmuting its browser.
// Resuming a tab that is not suspended is a no-op. A suspended tab
// whose handle disappeared keeps its last display state; the condition
// is logged and no handle is recreated.
func (t *Tab) Resume() {
	if !t.suspended {
		return
	}
	url := t.suspendedURL
	t.suspended = false
	t.suspendedURL = ""
	if !t.registry.With(t.browserID, func(h engine.Handle) {
		h.SetHidden(false)
		h.SetAudioMuted(false)
		h.SetFocus(true)
		h.WasResized()
	}) {
		log.Error().
			Str("tab_id", t.id).
			Int32("browser_id", int32(t.browserID)).
			Str("url", url).
			Msg("[browser] resume: browser handle missing, keeping stale state")
		return
	}
	log.Debug().Str("tab_id", t.id).Str("url", url).Msg("[browser] tab resumed")
}

// GoBack navigates one history entry back if possible.
func (t *Tab) GoBack() {
	if !t.canGoBack {
		return
	}
	t.registry.With(t.browserID, func(h engine.Handle) { h.GoBack() })
}

// GoForward navigates one history entry forward if possible.
func (t *Tab) GoForward() {
	if !t.canGoForward {
		return
	}
	t.registry.With(t.browserID, func(h engine.Handle) { h.GoForward() })
}

// Reload reloads the current page.
func (t *Tab) Reload() {
	t.registry.With(t.browserID, func(h engine.Handle) { h.Reload() })
}

// ReloadIgnoreCache reloads the current page bypassing caches.
func (t *Tab) ReloadIgnoreCache() {
	t.registry.With(t.browserID, func(h engine.Handle) { h.ReloadIgnoreCache() })
}

// StopLoad cancels the in-flight navigation, if any.
func (t *Tab) StopLoad() {
	t.registry.With(t.browserID, func(h engine.Handle) { h.StopLoad() })
}

// Find starts or advances an in-page text search.
func (t *Tab) Find(text string, forward, matchCase, findNext bool) {
	t.registry.With(t.browserID, func(h engine.Handle) {
		h.Find(text, forward, matchCase, findNext)
	})
}

// StopFinding ends the in-page search.
func (t *Tab) StopFinding(clearSelection bool) {
	t.registry.With(t.browserID, func(h engine.Handle) { h.StopFinding(clearSelection) })
}

// SetFocus gives the browser input focus.
func (t *Tab) SetFocus() {
	t.registry.With(t.browserID, func(h engine.Handle) { h.SetFocus(true) })
}

// SetHidden toggles engine-side visibility without suspending.
func (t *Tab) SetHidden(hidden bool) {
	t.registry.With(t.browserID, func(h engine.Handle) { h.SetHidden(hidden) })
}

// NotifyResized tells the engine the view size in RenderState changed.
func (t *Tab) NotifyResized() {
	t.registry.With(t.browserID, func(h engine.Handle) {
		h.WasResized()
		h.Invalidate()
	})
}

// Copy, Cut, Paste, Undo, Redo, SelectAll and DeleteSelection forward
// edit commands to the focused frame.
func (t *Tab) Copy() { t.registry.With(t.browserID, func(h engine.Handle) { h.Copy() }) }
func (t *Tab) Cut()  { t.registry.With(t.browserID, func(h engine.Handle) { h.Cut() }) }
func (t *Tab) Paste() {
	t.registry.With(t.browserID, func(h engine.Handle) { h.Paste() })
}
func (t *Tab) Undo() { t.registry.With(t.browserID, func(h engine.Handle) { h.Undo() }) }
func (t *Tab) Redo() { t.registry.With(t.browserID, func(h engine.Handle) { h.Redo() }) }
func (t *Tab) SelectAll() {
	t.registry.With(t.browserID, func(h engine.Handle) { h.SelectAll() })
}
func (t *Tab) DeleteSelection() {
	t.registry.With(t.browserID, func(h engine.Handle) { h.Delete() })
}

// CloseBrowser force-closes and detaches the tab's engine handle and
// drops the last rendered frame. Closing a tab without a handle is a
// no-op.
func (t *Tab) CloseBrowser() {
	if t.browserID == 0 {
		return
	}
	id := t.browserID
	t.browserID = 0
	t.renderState.ClearFrame()
	if t.registry.RemoveAndClose(id) {
		log.Debug().
			Str("tab_id", t.id).
			Int32("browser_id", int32(id)).
			Msg("[browser] browser closed for tab")
	}
}

// DrainEvents applies every queued engine event to the tab's state in
// arrival order and re-emits the corresponding TabEvents through sink.
// It never blocks; an empty queue returns immediately.
func (t *Tab) DrainEvents(sink EventSink) {
	for {
		select {
		case ev := <-t.events:
			t.apply(ev, sink)
		default:
			return
		}
	}
}

func (t *Tab) apply(ev engine.Event, sink EventSink) {
	suspended := t.suspended
	switch e := ev.(type) {
	case engine.AddressChanged:
		if suspended {
			return
		}
		t.url = e.URL
		t.isNewTabPage = false
		t.emit(sink, AddressChanged{URL: e.URL})

	case engine.TitleChanged:
		if suspended {
			return
		}
		t.title = e.Title
		t.emit(sink, TitleChanged{Title: e.Title})

	case engine.FaviconURLChanged:
		if suspended || len(e.URLs) == 0 {
			return
		}
		t.faviconURL = e.URLs[0]
		t.emit(sink, FaviconChanged{FaviconURL: e.URLs[0]})

	case engine.LoadingStateChanged:
		t.isLoading = e.IsLoading
		t.canGoBack = e.CanGoBack
		t.canGoForward = e.CanGoForward
		t.emit(sink, LoadingStateChanged{
			IsLoading:    e.IsLoading,
			CanGoBack:    e.CanGoBack,
			CanGoForward: e.CanGoForward,
		})

	case engine.FrameReady:
		t.emit(sink, FrameReady{})

	case engine.BrowserCreated:
		log.Debug().
			Str("tab_id", t.id).
			Int32("browser_id", int32(e.ID)).
			Msg("[browser] engine acknowledged browser")

	case engine.PopupRequested:
		t.emit(sink, OpenNewTab{URL: e.URL})

	case engine.LoadError:
		log.Warn().
			Str("tab_id", t.id).
			Str("url", e.URL).
			Int32("code", e.ErrorCode).
			Str("error", e.ErrorText).
			Msg("[browser] load failed")
		t.emit(sink, LoadError{URL: e.URL, ErrorCode: e.ErrorCode, ErrorText: e.ErrorText})

	case engine.ContextMenuRequested:
		t.emit(sink, ContextMenuOpen{Params: e.Params})

	case engine.FindResult:
		t.emit(sink, FindResult{
			Identifier:         e.Identifier,
			Count:              e.Count,
			ActiveMatchOrdinal: e.ActiveMatchOrdinal,
			FinalUpdate:        e.FinalUpdate,
		})

	case engine.DownloadUpdated:
		t.emit(sink, DownloadUpdated{
			ID:                e.ID,
			URL:               e.URL,
			SuggestedFileName: e.SuggestedFileName,
			FullPath:          e.FullPath,
			ReceivedBytes:     e.ReceivedBytes,
			TotalBytes:        e.TotalBytes,
			IsInProgress:      e.IsInProgress,
			IsComplete:        e.IsComplete,
			IsCanceled:        e.IsCanceled,
		})
	}
}

func (t *Tab) emit(sink EventSink, ev TabEvent) {
	if sink != nil {
		sink(t, ev)
	}
}
