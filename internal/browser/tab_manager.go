package browser

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/glasshq/glass/internal/session"
)

const (
	defaultMaxClosedTabs = 10
	saveDebounceDelay    = 2 * time.Second
)

// ManagerOptions configures a TabManager.
type ManagerOptions struct {
	// FrameRate is passed to the engine at browser creation.
	FrameRate int
	// MaxClosedTabs bounds the reopen stack. Zero means the default.
	MaxClosedTabs int
	// PumpMinInterval and PumpMaxInterval clamp the scheduler sleep.
	PumpMinInterval time.Duration
	PumpMaxInterval time.Duration
	// Store receives debounced session snapshots. Nil disables
	// persistence.
	Store session.Store
	// Sink receives tab notifications for the presentation layer.
	Sink EventSink
}

// TabManager owns the ordered tab list, the active tab, and the pump
// that services them. All methods are safe for concurrent use.
type TabManager struct {
	mu          sync.Mutex
	tabs        []*Tab
	activeIndex int

	closedTabs    []session.Tab
	maxClosedTabs int

	// viewport is applied to every tab's render state; browsers are
	// only created once a non-zero viewport is known.
	viewportW     uint32
	viewportH     uint32
	viewportScale float64

	frameRate int
	sink      EventSink

	store     session.Store
	saveTimer *time.Timer
	closed    bool

	pump   *Pump
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// NewTabManager returns a manager with an empty tab list. The pump
// starts lazily on the first opened tab.
func NewTabManager(opts ManagerOptions) *TabManager {
	maxClosed := opts.MaxClosedTabs
	if maxClosed <= 0 {
		maxClosed = defaultMaxClosedTabs
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &TabManager{
		activeIndex:   -1,
		maxClosedTabs: maxClosed,
		viewportScale: 1.0,
		frameRate:     opts.FrameRate,
		sink:          opts.Sink,
		store:         opts.Store,
		ctx:           ctx,
		cancel:        cancel,
	}
	m.pump = NewPump(opts.PumpMinInterval, opts.PumpMaxInterval, m.drainAll)
	return m
}

// OpenURL opens url in a new tab and makes it active.
func (m *TabManager) OpenURL(url string) *Tab {
	return m.open(url, false)
}

// OpenNewTabPage opens an empty new-tab page and makes it active.
func (m *TabManager) OpenNewTabPage() *Tab {
	return m.open("", true)
}

func (m *TabManager) open(url string, newTabPage bool) *Tab {
	m.mu.Lock()
	tab := NewTab(url, newTabPage)
	tab.renderState.SetSize(m.viewportW, m.viewportH)
	tab.renderState.SetScaleFactor(m.viewportScale)
	m.tabs = append(m.tabs, tab)
	m.setActiveLocked(len(m.tabs) - 1)
	m.ensureBrowserLocked(tab)
	m.scheduleSaveLocked()
	m.mu.Unlock()

	m.pump.Start(m.ctx)
	log.Info().Str("tab_id", tab.ID()).Str("url", url).Msg("[browser] tab opened")
	return tab
}

// Navigate loads url in the active tab, opening one if none exists.
// When the tab has no engine handle yet the URL is recorded as pending
// and a NavigateToURL notification asks the view for a viewport.
func (m *TabManager) Navigate(url string) {
	m.mu.Lock()
	if m.activeIndex < 0 {
		m.mu.Unlock()
		m.OpenURL(url)
		return
	}
	tab := m.tabs[m.activeIndex]
	if err := tab.Navigate(url); err != nil {
		log.Warn().Err(err).Str("tab_id", tab.ID()).Str("url", url).Msg("[browser] navigate failed")
	}
	m.ensureBrowserLocked(tab)
	deferred := !tab.HasBrowser()
	m.scheduleSaveLocked()
	sink := m.sink
	m.mu.Unlock()

	if deferred && sink != nil {
		sink(tab, NavigateToURL{URL: url})
	}
}

// Tabs returns a snapshot of the tab list in display order.
func (m *TabManager) Tabs() []*Tab {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Tab, len(m.tabs))
	copy(out, m.tabs)
	return out
}

// Count returns the number of open tabs.
func (m *TabManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tabs)
}

// ActiveTab returns the active tab, or nil if none are open.
func (m *TabManager) ActiveTab() *Tab {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeIndex < 0 || m.activeIndex >= len(m.tabs) {
		return nil
	}
	return m.tabs[m.activeIndex]
}

// ActiveIndex returns the index of the active tab, or -1.
func (m *TabManager) ActiveIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeIndex
}

// SwitchToTab makes the tab at index active, suspending the previous
// active tab and resuming the new one. Out-of-range indices are
// ignored.
func (m *TabManager) SwitchToTab(index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.tabs) || index == m.activeIndex {
		return
	}
	m.setActiveLocked(index)
	m.ensureBrowserLocked(m.tabs[index])
}

func (m *TabManager) setActiveLocked(index int) {
	if m.activeIndex >= 0 && m.activeIndex < len(m.tabs) && m.activeIndex != index {
		m.tabs[m.activeIndex].Suspend()
	}
	m.activeIndex = index
	tab := m.tabs[index]
	tab.Resume()
	tab.SetFocus()
}

// CloseTab closes the tab at index, releasing its engine handle and
// pushing its persisted form onto the reopen stack. Closing the active
// tab activates the tab that moves into its slot; closing the active
// rightmost tab activates its left neighbor.
func (m *TabManager) CloseTab(index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.tabs) {
		return
	}
	tab := m.tabs[index]
	m.pushClosedLocked(tab)
	tab.CloseBrowser()
	m.tabs = append(m.tabs[:index], m.tabs[index+1:]...)

	switch {
	case len(m.tabs) == 0:
		m.activeIndex = -1
	case index < m.activeIndex:
		m.activeIndex--
	case index == m.activeIndex:
		if m.activeIndex >= len(m.tabs) {
			m.activeIndex = len(m.tabs) - 1
		}
		active := m.tabs[m.activeIndex]
		active.Resume()
		active.SetFocus()
		m.ensureBrowserLocked(active)
	}
	m.scheduleSaveLocked()
	log.Info().Str("tab_id", tab.ID()).Msg("[browser] tab closed")
}

func (m *TabManager) pushClosedLocked(tab *Tab) {
	if tab.IsNewTabPage() && tab.URL() == "" {
		return
	}
	m.closedTabs = append(m.closedTabs, snapshotTab(tab))
	if len(m.closedTabs) > m.maxClosedTabs {
		m.closedTabs = m.closedTabs[len(m.closedTabs)-m.maxClosedTabs:]
	}
}

// ReopenClosedTab reopens the most recently closed tab. It returns nil
// when the reopen stack is empty.
func (m *TabManager) ReopenClosedTab() *Tab {
	m.mu.Lock()
	if len(m.closedTabs) == 0 {
		m.mu.Unlock()
		return nil
	}
	last := m.closedTabs[len(m.closedTabs)-1]
	m.closedTabs = m.closedTabs[:len(m.closedTabs)-1]
	m.mu.Unlock()

	tab := m.open(last.URL, last.IsNewTabPage)
	if last.IsPinned {
		m.PinTab(m.indexOf(tab))
	}
	return tab
}

// PinTab pins the tab at index and moves it into the pinned block at
// the front of the list.
func (m *TabManager) PinTab(index int) {
	m.setPinned(index, true)
}

// UnpinTab unpins the tab at index and moves it behind the pinned
// block.
func (m *TabManager) UnpinTab(index int) {
	m.setPinned(index, false)
}

func (m *TabManager) setPinned(index int, pinned bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.tabs) {
		return
	}
	tab := m.tabs[index]
	if tab.IsPinned() == pinned {
		return
	}
	tab.SetPinned(pinned)
	active := m.tabs[m.activeIndex]
	sort.SliceStable(m.tabs, func(i, j int) bool {
		return m.tabs[i].IsPinned() && !m.tabs[j].IsPinned()
	})
	for i, t := range m.tabs {
		if t == active {
			m.activeIndex = i
			break
		}
	}
	m.scheduleSaveLocked()
}

// CloseOtherTabs closes every tab except the active one and pinned
// tabs.
func (m *TabManager) CloseOtherTabs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeIndex < 0 {
		return
	}
	active := m.tabs[m.activeIndex]
	kept := m.tabs[:0]
	for _, tab := range m.tabs {
		if tab == active || tab.IsPinned() {
			kept = append(kept, tab)
			continue
		}
		m.pushClosedLocked(tab)
		tab.CloseBrowser()
	}
	m.tabs = kept
	for i, tab := range m.tabs {
		if tab == active {
			m.activeIndex = i
			break
		}
	}
	m.scheduleSaveLocked()
}

// SetViewport propagates a new view size to every tab and retries
// browser creation for the active tab, which is deferred until the
// first non-zero viewport.
func (m *TabManager) SetViewport(width, height uint32, scale float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if scale <= 0 {
		scale = 1.0
	}
	m.viewportW = width
	m.viewportH = height
	m.viewportScale = scale
	for _, tab := range m.tabs {
		tab.renderState.SetSize(width, height)
		tab.renderState.SetScaleFactor(scale)
		tab.NotifyResized()
	}
	if m.activeIndex >= 0 {
		m.ensureBrowserLocked(m.tabs[m.activeIndex])
	}
}

// ensureBrowserLocked attaches an engine handle to tab once both the
// engine and a viewport are available. Failures are logged and retried
// on the next viewport or activation change.
func (m *TabManager) ensureBrowserLocked(tab *Tab) {
	if tab.HasBrowser() || m.viewportW == 0 || m.viewportH == 0 {
		return
	}
	if err := tab.CreateBrowser(m.ctx, m.frameRate); err != nil {
		log.Debug().
			Err(err).
			Str("tab_id", tab.ID()).
			Msg("[browser] browser creation deferred")
	}
}

func (m *TabManager) indexOf(tab *Tab) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.tabs {
		if t == tab {
			return i
		}
	}
	return -1
}

// drainAll services every tab's event queue once. Popup requests are
// turned into new tabs; everything else is forwarded to the sink.
func (m *TabManager) drainAll() {
	type emitted struct {
		tab *Tab
		ev  TabEvent
	}
	var out []emitted
	var popups []string

	m.mu.Lock()
	for _, tab := range m.tabs {
		tab.DrainEvents(func(t *Tab, ev TabEvent) {
			if open, ok := ev.(OpenNewTab); ok {
				popups = append(popups, open.URL)
				return
			}
			out = append(out, emitted{tab: t, ev: ev})
		})
	}
	m.mu.Unlock()

	for _, e := range out {
		if m.sink != nil {
			m.sink(e.tab, e.ev)
		}
	}
	for _, url := range popups {
		m.OpenURL(url)
	}
	if len(out) > 0 {
		m.mu.Lock()
		m.scheduleSaveLocked()
		m.mu.Unlock()
	}
}

// RestoreSession replaces the tab list with the stored snapshot. Tabs
// are restored suspended-like, with pending URLs; only the active tab
// gets a browser immediately.
func (m *TabManager) RestoreSession(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	state, err := m.store.Load(ctx)
	if err != nil {
		return err
	}
	if len(state.Tabs) == 0 {
		return nil
	}

	m.mu.Lock()
	for _, st := range state.Tabs {
		tab := NewTab(st.URL, st.IsNewTabPage)
		tab.title = st.Title
		tab.faviconURL = st.FaviconURL
		tab.SetPinned(st.IsPinned)
		tab.renderState.SetSize(m.viewportW, m.viewportH)
		tab.renderState.SetScaleFactor(m.viewportScale)
		m.tabs = append(m.tabs, tab)
	}
	idx := state.ActiveIndex
	if idx < 0 || idx >= len(m.tabs) {
		idx = len(m.tabs) - 1
	}
	m.setActiveLocked(idx)
	m.ensureBrowserLocked(m.tabs[idx])
	m.mu.Unlock()

	m.pump.Start(m.ctx)
	log.Info().Int("tabs", len(state.Tabs)).Msg("[browser] session restored")
	return nil
}

func snapshotTab(tab *Tab) session.Tab {
	url := tab.URL()
	if tab.IsSuspended() && tab.SuspendedURL() != "" {
		url = tab.SuspendedURL()
	}
	return session.Tab{
		URL:          url,
		Title:        tab.Title(),
		FaviconURL:   tab.FaviconURL(),
		IsPinned:     tab.IsPinned(),
		IsNewTabPage: tab.IsNewTabPage(),
	}
}

func (m *TabManager) snapshotLocked() session.State {
	tabs := make([]session.Tab, 0, len(m.tabs))
	for _, tab := range m.tabs {
		tabs = append(tabs, snapshotTab(tab))
	}
	return session.State{Tabs: tabs, ActiveIndex: m.activeIndex}
}

// scheduleSaveLocked arms a debounced session save. Repeated calls
// within the window collapse into one write.
func (m *TabManager) scheduleSaveLocked() {
	if m.store == nil || m.closed {
		return
	}
	if m.saveTimer != nil {
		m.saveTimer.Stop()
	}
	m.saveTimer = time.AfterFunc(saveDebounceDelay, m.saveNow)
}

func (m *TabManager) saveNow() {
	m.mu.Lock()
	// A fired timer may have been waiting on the lock while Close
	// wrote the final snapshot; it must not overwrite that with the
	// now-empty tab list.
	if m.closed {
		m.mu.Unlock()
		return
	}
	state := m.snapshotLocked()
	m.mu.Unlock()

	if err := m.store.Save(m.ctx, state); err != nil {
		log.Error().Err(err).Msg("[browser] session save failed")
	}
}

// Close stops the pump, writes a final session snapshot, and closes
// every tab's engine handle. It is safe to call more than once.
func (m *TabManager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		if m.saveTimer != nil {
			m.saveTimer.Stop()
		}
		state := m.snapshotLocked()
		tabs := make([]*Tab, len(m.tabs))
		copy(tabs, m.tabs)
		m.tabs = nil
		m.activeIndex = -1
		m.mu.Unlock()

		if m.store != nil && len(state.Tabs) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := m.store.Save(ctx, state); err != nil {
				log.Error().Err(err).Msg("[browser] final session save failed")
			}
			cancel()
		}
		// Handles are independent; close them concurrently so one
		// wedged renderer cannot serialize the whole teardown.
		var g errgroup.Group
		for _, tab := range tabs {
			g.Go(func() error {
				tab.CloseBrowser()
				return nil
			})
		}
		_ = g.Wait()
		m.cancel()
		if m.pump.Started() {
			<-m.pump.Done()
		}
		log.Info().Int("tabs", len(tabs)).Msg("[browser] tab manager closed")
	})
}

