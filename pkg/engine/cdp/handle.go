package cdp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/glasshq/glass/pkg/engine"
)

// findScript moves the in-page selection with window.find and returns
// how many matches the page holds.
const findScript = `(() => {
	const text = %q;
	if (!text) { return 0; }
	const escaped = text.replace(/[.*+?^${}()|[\]\\]/g, '\\$&');
	const re = new RegExp(escaped, %t ? 'g' : 'gi');
	const count = (document.body.innerText.match(re) || []).length;
	window.find(text, %t, %t, true, false, false, false);
	return count;
})()`

const muteScript = `document.querySelectorAll('audio,video').forEach(el => { el.muted = %t; })`

// handle is one live Chromium target. It satisfies engine.Handle.
// Void commands are queued as pump work; only LoadURL and Close run
// protocol calls inline.
type handle struct {
	id       engine.BrowserID
	eng      *Engine
	ctx      context.Context
	cancel   context.CancelFunc
	targetID target.ID
	client   *engine.Client

	closed atomic.Bool

	mu           sync.Mutex
	screencastOn bool
	canGoBack    bool
	canGoForward bool
	lastTitle    string
	lastURL      string

	findMu       sync.Mutex
	findIdent    int
	lastFindText string
	findOrdinal  int
}

func (h *handle) ID() engine.BrowserID { return h.id }

// prepare enables the protocol domains the handle depends on, applies
// the initial viewport, and starts the first navigation.
func (h *handle) prepare(opts engine.CreateOptions) error {
	url := opts.URL
	if url == "" {
		url = "about:blank"
	}
	return chromedp.Run(h.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network: %w", err)
		}
		if err := h.applyViewport(ctx); err != nil {
			return err
		}
		if err := h.startScreencast(ctx); err != nil {
			log.Warn().Err(err).Int32("browser_id", int32(h.id)).Msg("[cdp] screencast unavailable")
		}
		_, _, _, _, err := page.Navigate(url).Do(ctx)
		return err
	}))
}

func (h *handle) applyViewport(ctx context.Context) error {
	w, ht := h.client.Render.Size()
	if w == 0 || ht == 0 {
		return nil
	}
	scale := h.client.Render.ScaleFactor()
	return emulation.SetDeviceMetricsOverride(int64(w), int64(ht), scale, false).Do(ctx)
}

func (h *handle) startScreencast(ctx context.Context) error {
	w, ht := h.client.Render.Size()
	cast := page.StartScreencast().
		WithFormat(page.ScreencastFormatPng).
		WithEveryNthFrame(1)
	if w > 0 && ht > 0 {
		cast = cast.WithMaxWidth(int64(w)).WithMaxHeight(int64(ht))
	}
	if err := cast.Do(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.screencastOn = true
	h.mu.Unlock()
	return nil
}

func (h *handle) stopScreencast(ctx context.Context) error {
	h.mu.Lock()
	on := h.screencastOn
	h.screencastOn = false
	h.mu.Unlock()
	if !on {
		return nil
	}
	return page.StopScreencast().Do(ctx)
}

// run executes a protocol action inline against the tab session.
func (h *handle) run(fn func(ctx context.Context) error) error {
	if h.closed.Load() {
		return engine.ErrShutdown
	}
	return chromedp.Run(h.ctx, chromedp.ActionFunc(fn))
}

// enqueue schedules a protocol action as pump work. Errors are logged,
// not surfaced; void commands have no caller to return them to.
func (h *handle) enqueue(op string, fn func(ctx context.Context) error) {
	h.eng.queue(func() {
		if err := h.run(fn); err != nil {
			log.Debug().Err(err).Int32("browser_id", int32(h.id)).Str("op", op).Msg("[cdp] command failed")
		}
	})
}

func (h *handle) LoadURL(url string) error {
	return h.run(func(ctx context.Context) error {
		_, _, _, _, err := page.Navigate(url).Do(ctx)
		return err
	})
}

func (h *handle) Reload() {
	h.enqueue("reload", func(ctx context.Context) error {
		return page.Reload().Do(ctx)
	})
}

func (h *handle) ReloadIgnoreCache() {
	h.enqueue("reload_ignore_cache", func(ctx context.Context) error {
		return page.Reload().WithIgnoreCache(true).Do(ctx)
	})
}

func (h *handle) StopLoad() {
	h.enqueue("stop_load", func(ctx context.Context) error {
		return page.StopLoading().Do(ctx)
	})
}

func (h *handle) GoBack()    { h.historyStep(-1) }
func (h *handle) GoForward() { h.historyStep(1) }

func (h *handle) historyStep(delta int64) {
	h.enqueue("history_step", func(ctx context.Context) error {
		idx, entries, err := page.GetNavigationHistory().Do(ctx)
		if err != nil {
			return err
		}
		next := idx + delta
		if next < 0 || next >= int64(len(entries)) {
			return nil
		}
		return page.NavigateToHistoryEntry(entries[next].ID).Do(ctx)
	})
}

func (h *handle) execCommand(name string) {
	h.enqueue(name, func(ctx context.Context) error {
		return chromedp.Evaluate(fmt.Sprintf("document.execCommand(%q)", name), nil).Do(ctx)
	})
}

func (h *handle) Copy()      { h.execCommand("copy") }
func (h *handle) Cut()       { h.execCommand("cut") }
func (h *handle) Paste()     { h.execCommand("paste") }
func (h *handle) Undo()      { h.execCommand("undo") }
func (h *handle) Redo()      { h.execCommand("redo") }
func (h *handle) SelectAll() { h.execCommand("selectAll") }
func (h *handle) Delete()    { h.execCommand("delete") }

func (h *handle) Find(text string, forward, matchCase, findNext bool) {
	h.findMu.Lock()
	if !findNext || text != h.lastFindText {
		h.findIdent++
		h.findOrdinal = 0
		h.lastFindText = text
	}
	ident := h.findIdent
	h.findMu.Unlock()

	script := fmt.Sprintf(findScript, text, matchCase, matchCase, !forward)
	h.enqueue("find", func(ctx context.Context) error {
		var count int
		if err := chromedp.Evaluate(script, &count).Do(ctx); err != nil {
			return err
		}

		h.findMu.Lock()
		if count == 0 {
			h.findOrdinal = 0
		} else if forward {
			h.findOrdinal++
			if h.findOrdinal > count {
				h.findOrdinal = 1
			}
		} else {
			h.findOrdinal--
			if h.findOrdinal < 1 {
				h.findOrdinal = count
			}
		}
		ordinal := h.findOrdinal
		h.findMu.Unlock()

		h.client.Events.Send(engine.FindResult{
			Identifier:         ident,
			Count:              count,
			ActiveMatchOrdinal: ordinal,
			FinalUpdate:        true,
		})
		return nil
	})
}

func (h *handle) StopFinding(clearSelection bool) {
	h.findMu.Lock()
	h.lastFindText = ""
	h.findOrdinal = 0
	h.findMu.Unlock()
	if !clearSelection {
		return
	}
	h.enqueue("stop_finding", func(ctx context.Context) error {
		return chromedp.Evaluate(`window.getSelection().removeAllRanges()`, nil).Do(ctx)
	})
}

func (h *handle) SetFocus(focus bool) {
	if !focus {
		return
	}
	h.enqueue("set_focus", func(ctx context.Context) error {
		return page.BringToFront().Do(ctx)
	})
}

// SetHidden pauses and resumes frame delivery. A hidden tab keeps its
// target alive but sends no screencast frames.
func (h *handle) SetHidden(hidden bool) {
	if hidden {
		h.enqueue("hide", h.stopScreencast)
		return
	}
	h.enqueue("show", h.startScreencast)
}

func (h *handle) SetAudioMuted(muted bool) {
	h.enqueue("set_audio_muted", func(ctx context.Context) error {
		return chromedp.Evaluate(fmt.Sprintf(muteScript, muted), nil).Do(ctx)
	})
}

// WasResized re-reads the shared render state and reapplies the
// viewport, restarting the screencast so frame bounds match.
func (h *handle) WasResized() {
	h.enqueue("was_resized", func(ctx context.Context) error {
		if err := h.applyViewport(ctx); err != nil {
			return err
		}
		if err := h.stopScreencast(ctx); err != nil {
			return err
		}
		return h.startScreencast(ctx)
	})
}

// Invalidate forces a fresh frame by cycling the screencast.
func (h *handle) Invalidate() {
	h.enqueue("invalidate", func(ctx context.Context) error {
		h.mu.Lock()
		on := h.screencastOn
		h.mu.Unlock()
		if !on {
			return nil
		}
		if err := h.stopScreencast(ctx); err != nil {
			return err
		}
		return h.startScreencast(ctx)
	})
}

// Close destroys the target. force is accepted for interface parity;
// Chromium targets are always closed without running unload prompts.
func (h *handle) Close(force bool) {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	h.cancel()
	h.eng.closeTarget(h.targetID)
	h.eng.forget(h.targetID)
	log.Debug().Int32("browser_id", int32(h.id)).Bool("force", force).Msg("[cdp] browser closed")
}
