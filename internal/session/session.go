// Package session defines the persisted shape of a browsing session
// and the storage interface the browser core saves it through.
package session

import "context"

// Tab is the persisted form of one open tab. Engine handles and live
// page state are deliberately absent; a restored tab reloads its URL.
type Tab struct {
	URL          string `json:"url"`
	Title        string `json:"title"`
	FaviconURL   string `json:"favicon_url,omitempty"`
	IsPinned     bool   `json:"is_pinned"`
	IsNewTabPage bool   `json:"is_new_tab_page"`
}

// State is a full session snapshot.
type State struct {
	Tabs        []Tab `json:"tabs"`
	ActiveIndex int   `json:"active_index"`
}

// Store persists session snapshots. Save replaces the previous
// snapshot wholesale.
type Store interface {
	Save(ctx context.Context, state State) error
	Load(ctx context.Context) (State, error)
	Close() error
}
