// Package cdp implements the engine boundary on top of an
// out-of-process Chromium instance driven over the DevTools protocol.
// Engine goroutines belong to chromedp; pump work is a queue of
// protocol calls drained from the scheduler goroutine.
package cdp

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/browser"
	cdpruntime "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/glasshq/glass/pkg/engine"
)

// Options configures the Chromium instance.
type Options struct {
	// ExecPath overrides the browser binary. Empty means chromedp's
	// lookup order.
	ExecPath string

	// RemoteURL attaches to an already-running browser over its
	// DevTools websocket instead of launching one.
	RemoteURL string

	// Headless launches without a window.
	Headless bool

	// CacheDir is the profile directory. Downloads land in a
	// subdirectory of it.
	CacheDir string

	// UserAgent overrides the default user agent when non-empty.
	UserAgent string
}

// Engine drives one Chromium instance. It satisfies engine.Engine.
type Engine struct {
	opts Options

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	nextID atomic.Int32

	mu      sync.Mutex
	work    []func()
	handles map[target.ID]*handle

	downloadsMu sync.Mutex
	downloads   map[string]*downloadState
}

type downloadState struct {
	tab               *handle
	url               string
	suggestedFileName string
}

// New returns an engine for opts. Start must be called before any
// CreateBrowser.
func New(opts Options) *Engine {
	return &Engine{
		opts:      opts,
		handles:   make(map[target.ID]*handle),
		downloads: make(map[string]*downloadState),
	}
}

// Start launches or attaches to Chromium and brings the browser-level
// session up.
func (e *Engine) Start(ctx context.Context) error {
	if e.opts.RemoteURL != "" {
		e.allocCtx, e.allocCancel = chromedp.NewRemoteAllocator(ctx, e.opts.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("no-first-run", true),
			chromedp.Flag("disable-popup-blocking", true),
		)
		if e.opts.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(e.opts.ExecPath))
		}
		if e.opts.CacheDir != "" {
			opts = append(opts, chromedp.UserDataDir(e.opts.CacheDir))
		}
		if e.opts.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(e.opts.UserAgent))
		}
		if e.opts.Headless {
			opts = append(opts, chromedp.Headless)
		} else {
			opts = append(opts, chromedp.Flag("headless", false))
		}
		e.allocCtx, e.allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}

	e.browserCtx, e.browserCancel = chromedp.NewContext(e.allocCtx)
	if err := chromedp.Run(e.browserCtx); err != nil {
		e.teardown()
		return fmt.Errorf("launch browser: %w", err)
	}

	if err := e.enableDownloadEvents(); err != nil {
		log.Warn().Err(err).Msg("[cdp] download events unavailable")
	}
	chromedp.ListenBrowser(e.browserCtx, e.onBrowserEvent)

	log.Info().
		Bool("headless", e.opts.Headless).
		Str("remote", e.opts.RemoteURL).
		Msg("[cdp] engine started")
	return nil
}

func (e *Engine) enableDownloadEvents() error {
	behavior := browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
		WithEventsEnabled(true)
	if e.opts.CacheDir != "" {
		behavior = behavior.WithDownloadPath(filepath.Join(e.opts.CacheDir, "downloads"))
	}
	return chromedp.Run(e.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		c := chromedp.FromContext(ctx)
		return behavior.Do(cdpruntime.WithExecutor(ctx, c.Browser))
	}))
}

// CreateBrowser opens a new Chromium target and attaches a handle to
// it. Protocol listeners are installed before the initial navigation
// so no early event is missed.
func (e *Engine) CreateBrowser(ctx context.Context, opts engine.CreateOptions, client *engine.Client) (engine.Handle, error) {
	if e.browserCtx == nil {
		return nil, engine.ErrNotInitialized
	}

	tabCtx, cancel := chromedp.NewContext(e.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("open target: %w", err)
	}

	h := &handle{
		id:       engine.BrowserID(e.nextID.Add(1)),
		eng:      e,
		ctx:      tabCtx,
		cancel:   cancel,
		targetID: chromedp.FromContext(tabCtx).Target.TargetID,
		client:   client,
	}
	h.listen()

	if err := h.prepare(opts); err != nil {
		cancel()
		e.closeTarget(h.targetID)
		return nil, fmt.Errorf("prepare target: %w", err)
	}

	e.mu.Lock()
	e.handles[h.targetID] = h
	e.mu.Unlock()

	client.Events.Send(engine.BrowserCreated{ID: h.id})
	log.Debug().
		Int32("browser_id", int32(h.id)).
		Str("target_id", string(h.targetID)).
		Str("url", opts.URL).
		Msg("[cdp] browser created")
	return h, nil
}

// queue appends fn to the pump work list and asks the scheduler for an
// immediate pump. Safe from any goroutine, including protocol event
// listeners, which must never issue protocol calls inline.
func (e *Engine) queue(fn func()) {
	e.mu.Lock()
	e.work = append(e.work, fn)
	e.mu.Unlock()
	engine.SchedulePumpWork(0)
}

// PumpWork drains the queued protocol calls. Runs on the scheduler
// goroutine only.
func (e *Engine) PumpWork() {
	e.mu.Lock()
	work := e.work
	e.work = nil
	e.mu.Unlock()
	for _, fn := range work {
		fn()
	}
}

// Shutdown tears the browser connection down. Handles must have been
// closed already.
func (e *Engine) Shutdown() {
	e.teardown()
	log.Info().Msg("[cdp] engine stopped")
}

func (e *Engine) teardown() {
	if e.browserCancel != nil {
		e.browserCancel()
		e.browserCancel = nil
	}
	if e.allocCancel != nil {
		e.allocCancel()
		e.allocCancel = nil
	}
}

func (e *Engine) forget(id target.ID) {
	e.mu.Lock()
	delete(e.handles, id)
	e.mu.Unlock()
}

func (e *Engine) handleFor(id target.ID) *handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handles[id]
}

// closeTarget closes a Chromium target through the browser session,
// with a bounded wait so a wedged renderer cannot stall teardown.
func (e *Engine) closeTarget(id target.ID) {
	closeCtx, cancel := context.WithTimeout(e.browserCtx, 5*time.Second)
	defer cancel()
	err := chromedp.Run(closeCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		c := chromedp.FromContext(ctx)
		return target.CloseTarget(id).Do(cdpruntime.WithExecutor(ctx, c.Browser))
	}))
	if err != nil {
		log.Debug().Err(err).Str("target_id", string(id)).Msg("[cdp] close target")
	}
}

// onBrowserEvent handles browser-session events: popup targets and
// download lifecycle notifications, both routed to the owning handle.
func (e *Engine) onBrowserEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *target.EventTargetCreated:
		info := ev.TargetInfo
		if info.Type != "page" || info.OpenerID == "" {
			return
		}
		opener := e.handleFor(info.OpenerID)
		if opener == nil {
			return
		}
		// The host opens its own tab for the URL; the engine-spawned
		// popup target is discarded.
		opener.client.Events.Send(engine.PopupRequested{URL: info.URL})
		id := info.TargetID
		e.queue(func() { e.closeTarget(id) })

	case *target.EventTargetInfoChanged:
		h := e.handleFor(ev.TargetInfo.TargetID)
		if h == nil {
			return
		}
		h.onInfoChanged(ev.TargetInfo)

	case *browser.EventDownloadWillBegin:
		h := e.handleForFrame(ev.FrameID)
		if h == nil {
			return
		}
		e.downloadsMu.Lock()
		e.downloads[ev.GUID] = &downloadState{
			tab:               h,
			url:               ev.URL,
			suggestedFileName: ev.SuggestedFilename,
		}
		e.downloadsMu.Unlock()
		h.client.Events.Send(engine.DownloadUpdated{
			ID:                ev.GUID,
			URL:               ev.URL,
			SuggestedFileName: ev.SuggestedFilename,
			IsInProgress:      true,
		})

	case *browser.EventDownloadProgress:
		e.downloadsMu.Lock()
		st := e.downloads[ev.GUID]
		done := ev.State != browser.DownloadProgressStateInProgress
		if done {
			delete(e.downloads, ev.GUID)
		}
		e.downloadsMu.Unlock()
		if st == nil {
			return
		}
		st.tab.client.Events.Send(engine.DownloadUpdated{
			ID:                ev.GUID,
			URL:               st.url,
			SuggestedFileName: st.suggestedFileName,
			ReceivedBytes:     int64(ev.ReceivedBytes),
			TotalBytes:        int64(ev.TotalBytes),
			IsInProgress:      ev.State == browser.DownloadProgressStateInProgress,
			IsComplete:        ev.State == browser.DownloadProgressStateCompleted,
			IsCanceled:        ev.State == browser.DownloadProgressStateCanceled,
		})
	}
}

// handleForFrame resolves a main-frame id to its handle. Chromium uses
// the target id as the main frame id.
func (e *Engine) handleForFrame(frameID cdpruntime.FrameID) *handle {
	return e.handleFor(target.ID(frameID))
}
