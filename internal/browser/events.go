// Package browser implements the host-side browser core: the tab
// state machine, the tab manager that owns the tab list, and the
// message pump scheduler that drives the engine's event loop.
package browser

import "github.com/glasshq/glass/pkg/engine"

// TabEvent is a typed notification re-emitted to the presentation
// layer after a drained engine event was applied to a tab.
type TabEvent interface {
	isTabEvent()
}

// AddressChanged reports the tab's displayed URL changed.
type AddressChanged struct {
	URL string
}

// TitleChanged reports the tab's displayed title changed.
type TitleChanged struct {
	Title string
}

// LoadingStateChanged reports a change of the loading flag or the
// back/forward capabilities.
type LoadingStateChanged struct {
	IsLoading    bool
	CanGoBack    bool
	CanGoForward bool
}

// FrameReady reports a new rendered frame is available.
type FrameReady struct{}

// NavigateToURL asks the owning view to perform a navigation on this
// tab, either because no handle exists yet or because the engine
// redirected a popup into tab navigation.
type NavigateToURL struct {
	URL string
}

// OpenNewTab asks the owning view to open url in a new tab.
type OpenNewTab struct {
	URL string
}

// FaviconChanged reports the tab's favicon URL changed.
type FaviconChanged struct {
	FaviconURL string
}

// LoadError forwards an engine-reported navigation failure verbatim.
type LoadError struct {
	URL       string
	ErrorCode int32
	ErrorText string
}

// ContextMenuOpen forwards a native context-menu request.
type ContextMenuOpen struct {
	Params engine.ContextMenuParams
}

// FindResult forwards an in-page find update.
type FindResult struct {
	Identifier         int
	Count              int
	ActiveMatchOrdinal int
	FinalUpdate        bool
}

// DownloadUpdated forwards download progress.
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

func (AddressChanged) isTabEvent()      {}
func (TitleChanged) isTabEvent()        {}
func (LoadingStateChanged) isTabEvent() {}
func (FrameReady) isTabEvent()          {}
func (NavigateToURL) isTabEvent()       {}
func (OpenNewTab) isTabEvent()          {}
func (FaviconChanged) isTabEvent()      {}
func (LoadError) isTabEvent()           {}
func (ContextMenuOpen) isTabEvent()     {}
func (FindResult) isTabEvent()          {}
func (DownloadUpdated) isTabEvent()     {}

// EventSink receives a tab's typed notifications.
type EventSink func(tab *Tab, ev TabEvent)
