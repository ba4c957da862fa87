package engine

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Event is one native notification. The set of variants is closed;
// ordering within one tab's channel matches generation order.
type Event interface {
	isBrowserEvent()
}

// AddressChanged reports a main-frame URL change.
type AddressChanged struct {
	URL string
}

// TitleChanged reports a page title change.
type TitleChanged struct {
	Title string
}

// FaviconURLChanged reports the page's declared icon URLs.
type FaviconURLChanged struct {
	URLs []string
}

// LoadingStateChanged reports the loading flag together with the
// back/forward capabilities, which are only valid as a triple.
type LoadingStateChanged struct {
	IsLoading    bool
	CanGoBack    bool
	CanGoForward bool
}

// LoadingProgress reports load progress in [0, 1].
type LoadingProgress struct {
	Progress float64
}

// FrameReady signals that a new rendered frame was stored in the
// tab's RenderState.
type FrameReady struct{}

// BrowserCreated signals that the native side finished constructing
// the browser identified by ID.
type BrowserCreated struct {
	ID BrowserID
}

// PopupRequested reports a window.open or target=_blank navigation
// the engine declined to host itself.
type PopupRequested struct {
	URL string
}

// LoadError reports a failed navigation, forwarded verbatim to the
// presentation layer.
type LoadError struct {
	URL       string
	ErrorCode int32
	ErrorText string
}

// ContextMenuParams describes the point a context menu was requested
// at and what the page contains there.
type ContextMenuParams struct {
	X, Y          int
	LinkURL       string
	SelectionText string
	IsEditable    bool
}

// ContextMenuRequested reports a native context-menu request. Not
// every engine produces this variant.
type ContextMenuRequested struct {
	Params ContextMenuParams
}

// FindResult reports one in-page find update.
type FindResult struct {
	Identifier         int
	Count              int
	ActiveMatchOrdinal int
	FinalUpdate        bool
}

// DownloadUpdated reports progress of one download.
type DownloadUpdated struct {
	ID                string
	URL               string
	SuggestedFileName string
	FullPath          string
	ReceivedBytes     int64
	TotalBytes        int64
	IsInProgress      bool
	IsComplete        bool
	IsCanceled        bool
}

func (AddressChanged) isBrowserEvent()       {}
func (TitleChanged) isBrowserEvent()         {}
func (FaviconURLChanged) isBrowserEvent()    {}
func (LoadingStateChanged) isBrowserEvent()  {}
func (LoadingProgress) isBrowserEvent()      {}
func (FrameReady) isBrowserEvent()           {}
func (BrowserCreated) isBrowserEvent()       {}
func (PopupRequested) isBrowserEvent()       {}
func (LoadError) isBrowserEvent()            {}
func (ContextMenuRequested) isBrowserEvent() {}
func (FindResult) isBrowserEvent()           {}
func (DownloadUpdated) isBrowserEvent()      {}

// defaultEventBuffer bounds the per-tab queue. A tab that is not
// drained for a while loses its newest notifications rather than
// blocking an engine goroutine.
const defaultEventBuffer = 256

// EventSender is the producer side of one tab's event bridge. It is
// cloned into the engine's callback adapters and safe for concurrent
// use from any goroutine. Send never blocks.
type EventSender struct {
	ch      chan Event
	dropped atomic.Uint64
}

// NewEventChannel creates one tab's event bridge. The receiver is
// drained only by the owning tab, during pump ticks.
func NewEventChannel() (*EventSender, <-chan Event) {
	s := &EventSender{ch: make(chan Event, defaultEventBuffer)}
	return s, s.ch
}

// Send enqueues an event. If the channel is full the event is dropped
// and counted; engine goroutines must never stall on the host.
func (s *EventSender) Send(ev Event) {
	select {
	case s.ch <- ev:
	default:
		n := s.dropped.Add(1)
		log.Warn().Uint64("dropped_total", n).Type("event", ev).Msg("[engine] event queue full, dropping")
	}
}

// Dropped returns how many events were discarded on a full queue.
func (s *EventSender) Dropped() uint64 {
	return s.dropped.Load()
}
