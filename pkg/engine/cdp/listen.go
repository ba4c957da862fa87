package cdp

import (
	"context"
	"encoding/base64"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/glasshq/glass/pkg/engine"
)

const faviconScript = `Array.from(document.querySelectorAll('link[rel~="icon"]')).map(l => l.href)`

// listen installs the protocol event handler for the tab session.
// Callbacks run on chromedp's event goroutine and must not issue
// protocol calls; anything that talks back goes through the queue.
func (h *handle) listen() {
	chromedp.ListenTarget(h.ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventFrameStartedLoading:
			if target.ID(e.FrameID) != h.targetID {
				return
			}
			h.sendLoadingState(true)
			h.client.Events.Send(engine.LoadingProgress{Progress: 0.1})

		case *page.EventFrameNavigated:
			if e.Frame.ParentID != "" {
				return
			}
			h.mu.Lock()
			h.lastURL = e.Frame.URL
			h.mu.Unlock()
			h.client.Load.SetURL(e.Frame.URL)
			h.client.Events.Send(engine.AddressChanged{URL: e.Frame.URL})

		case *page.EventNavigatedWithinDocument:
			if target.ID(e.FrameID) != h.targetID {
				return
			}
			h.mu.Lock()
			h.lastURL = e.URL
			h.mu.Unlock()
			h.client.Load.SetURL(e.URL)
			h.client.Events.Send(engine.AddressChanged{URL: e.URL})

		case *page.EventDomContentEventFired:
			h.client.Events.Send(engine.LoadingProgress{Progress: 0.7})

		case *page.EventFrameStoppedLoading:
			if target.ID(e.FrameID) != h.targetID {
				return
			}
			h.client.Events.Send(engine.LoadingProgress{Progress: 1.0})
			h.eng.queue(h.finishLoad)

		case *page.EventScreencastFrame:
			h.onFrame(e)

		case *network.EventLoadingFailed:
			if e.Type != network.ResourceTypeDocument || e.Canceled {
				return
			}
			h.client.Events.Send(engine.LoadError{
				URL:       h.client.Load.URL(),
				ErrorText: e.ErrorText,
			})
		}
	})
}

// onInfoChanged picks up title and URL changes reported through target
// discovery, which also covers script-driven changes between loads.
func (h *handle) onInfoChanged(info *target.Info) {
	h.mu.Lock()
	titleChanged := info.Title != "" && info.Title != h.lastTitle
	urlChanged := info.URL != "" && info.URL != h.lastURL
	if titleChanged {
		h.lastTitle = info.Title
	}
	if urlChanged {
		h.lastURL = info.URL
	}
	h.mu.Unlock()

	if titleChanged {
		h.client.Load.SetTitle(info.Title)
		h.client.Events.Send(engine.TitleChanged{Title: info.Title})
	}
	if urlChanged {
		h.client.Load.SetURL(info.URL)
		h.client.Events.Send(engine.AddressChanged{URL: info.URL})
	}
}

// finishLoad runs as pump work after the main frame stops loading: it
// refreshes the history capabilities, reads the page title, and
// collects favicon links.
func (h *handle) finishLoad() {
	err := h.run(func(ctx context.Context) error {
		idx, entries, err := page.GetNavigationHistory().Do(ctx)
		if err != nil {
			return err
		}
		canBack := idx > 0
		canFwd := idx < int64(len(entries))-1
		h.mu.Lock()
		h.canGoBack = canBack
		h.canGoForward = canFwd
		h.mu.Unlock()

		var title string
		if err := chromedp.Evaluate(`document.title`, &title).Do(ctx); err == nil && title != "" {
			h.mu.Lock()
			changed := title != h.lastTitle
			h.lastTitle = title
			h.mu.Unlock()
			if changed {
				h.client.Load.SetTitle(title)
				h.client.Events.Send(engine.TitleChanged{Title: title})
			}
		}

		var icons []string
		if err := chromedp.Evaluate(faviconScript, &icons).Do(ctx); err == nil && len(icons) > 0 {
			h.client.Events.Send(engine.FaviconURLChanged{URLs: icons})
		}
		return nil
	})
	if err != nil {
		log.Debug().Err(err).Int32("browser_id", int32(h.id)).Msg("[cdp] finish load")
	}
	h.sendLoadingState(false)
}

func (h *handle) sendLoadingState(isLoading bool) {
	h.mu.Lock()
	canBack, canFwd := h.canGoBack, h.canGoForward
	h.mu.Unlock()
	h.client.Load.SetLoading(isLoading, canBack, canFwd)
	h.client.Events.Send(engine.LoadingStateChanged{
		IsLoading:    isLoading,
		CanGoBack:    canBack,
		CanGoForward: canFwd,
	})
}

// onFrame stores a decoded screencast frame in the shared render state
// and acknowledges it so the next one can arrive.
func (h *handle) onFrame(e *page.EventScreencastFrame) {
	data, err := base64.StdEncoding.DecodeString(e.Data)
	if err != nil {
		log.Debug().Err(err).Int32("browser_id", int32(h.id)).Msg("[cdp] bad frame payload")
		return
	}
	var w, ht int
	if e.Metadata != nil {
		w = int(e.Metadata.DeviceWidth)
		ht = int(e.Metadata.DeviceHeight)
	}
	h.client.Render.StoreFrame(&engine.Frame{Data: data, Width: w, Height: ht})
	h.client.Events.Send(engine.FrameReady{})

	sessionID := e.SessionID
	h.enqueue("frame_ack", func(ctx context.Context) error {
		return page.ScreencastFrameAck(sessionID).Do(ctx)
	})
}
