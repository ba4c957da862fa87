package browser

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glasshq/glass/internal/session"
	"github.com/glasshq/glass/pkg/engine"
)

type memStore struct {
	mu     sync.Mutex
	state  session.State
	saves  int
	loaded session.State
}

func (s *memStore) Save(ctx context.Context, state session.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.saves++
	return nil
}

func (s *memStore) Load(ctx context.Context) (session.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded, nil
}

func (s *memStore) Close() error { return nil }

func newTestManager(t *testing.T, opts ManagerOptions) *TabManager {
	t.Helper()
	m := NewTabManager(opts)
	t.Cleanup(m.Close)
	return m
}

func urls(tabs []*Tab) []string {
	out := make([]string, len(tabs))
	for i, tab := range tabs {
		out[i] = tab.URL()
	}
	return out
}

func TestManagerOpenURLActivatesNewTab(t *testing.T) {
	setupEngine(t)
	m := newTestManager(t, ManagerOptions{})

	first := m.OpenURL("https://a.example")
	second := m.OpenURL("https://b.example")

	assert.Equal(t, 2, m.Count())
	assert.Same(t, second, m.ActiveTab())
	assert.True(t, first.IsSuspended())
}

func TestManagerDefersCreationUntilViewport(t *testing.T) {
	eng := setupEngine(t)
	m := newTestManager(t, ManagerOptions{})

	tab := m.OpenURL("https://a.example")
	assert.Zero(t, eng.created())
	assert.False(t, tab.HasBrowser())

	m.SetViewport(1280, 720, 2.0)

	require.Equal(t, 1, eng.created())
	assert.True(t, tab.HasBrowser())
	w, h := tab.RenderState().Size()
	assert.Equal(t, uint32(1280), w)
	assert.Equal(t, uint32(720), h)
	assert.Equal(t, 2.0, tab.RenderState().ScaleFactor())
}

func TestManagerSwitchSuspendsAndResumes(t *testing.T) {
	setupEngine(t)
	m := newTestManager(t, ManagerOptions{})
	m.SetViewport(800, 600, 1.0)

	m.OpenURL("https://a.example")
	m.OpenURL("https://b.example")
	tabs := m.Tabs()
	require.True(t, tabs[0].IsSuspended())

	m.SwitchToTab(0)

	assert.Equal(t, 0, m.ActiveIndex())
	assert.False(t, tabs[0].IsSuspended())
	assert.True(t, tabs[1].IsSuspended())
}

func TestManagerSwitchIgnoresOutOfRange(t *testing.T) {
	setupEngine(t)
	m := newTestManager(t, ManagerOptions{})
	m.OpenURL("https://a.example")

	m.SwitchToTab(-1)
	m.SwitchToTab(5)

	assert.Equal(t, 0, m.ActiveIndex())
}

func TestManagerNavigateWithoutViewportEmitsRequest(t *testing.T) {
	setupEngine(t)
	var mu sync.Mutex
	var got []TabEvent
	m := newTestManager(t, ManagerOptions{
		Sink: func(_ *Tab, ev TabEvent) {
			mu.Lock()
			got = append(got, ev)
			mu.Unlock()
		},
	})
	m.OpenURL("https://a.example")

	m.Navigate("https://b.example")

	assert.Equal(t, "https://b.example", m.ActiveTab().URL())
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, got)
	assert.Equal(t, NavigateToURL{URL: "https://b.example"}, got[len(got)-1])
}

func TestManagerNavigateWithHandleLoadsInPlace(t *testing.T) {
	eng := setupEngine(t)
	m := newTestManager(t, ManagerOptions{})
	m.SetViewport(800, 600, 1.0)
	m.OpenURL("https://a.example")

	m.Navigate("https://b.example")

	require.Equal(t, 1, eng.created())
	h := eng.handle(0)
	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, []string{"https://b.example"}, h.loadedURLs)
}

func TestManagerCloseTabActivatesNeighbor(t *testing.T) {
	eng := setupEngine(t)
	m := newTestManager(t, ManagerOptions{})
	m.SetViewport(800, 600, 1.0)

	m.OpenURL("https://a.example")
	m.OpenURL("https://b.example")
	m.OpenURL("https://c.example")

	m.CloseTab(2)

	assert.Equal(t, []string{"https://a.example", "https://b.example"}, urls(m.Tabs()))
	assert.Equal(t, 1, m.ActiveIndex())
	assert.False(t, m.ActiveTab().IsSuspended())
	assert.True(t, eng.handle(2).isClosed())
}

func TestManagerCloseMiddleActiveActivatesRightNeighbor(t *testing.T) {
	setupEngine(t)
	m := newTestManager(t, ManagerOptions{})

	m.OpenURL("https://a.example")
	m.OpenURL("https://b.example")
	m.OpenURL("https://c.example")
	m.SwitchToTab(1)

	m.CloseTab(1)

	assert.Equal(t, 1, m.ActiveIndex())
	assert.Equal(t, "https://c.example", m.ActiveTab().URL())
	assert.False(t, m.ActiveTab().IsSuspended())
}

func TestManagerCloseTabBeforeActiveShiftsIndex(t *testing.T) {
	setupEngine(t)
	m := newTestManager(t, ManagerOptions{})

	m.OpenURL("https://a.example")
	m.OpenURL("https://b.example")
	m.OpenURL("https://c.example")
	require.Equal(t, 2, m.ActiveIndex())

	m.CloseTab(0)

	assert.Equal(t, 1, m.ActiveIndex())
	assert.Equal(t, "https://c.example", m.ActiveTab().URL())
}

func TestManagerCloseLastTabLeavesNoActive(t *testing.T) {
	setupEngine(t)
	m := newTestManager(t, ManagerOptions{})
	m.OpenURL("https://a.example")

	m.CloseTab(0)

	assert.Zero(t, m.Count())
	assert.Nil(t, m.ActiveTab())
	assert.Equal(t, -1, m.ActiveIndex())
}

func TestManagerReopenClosedTab(t *testing.T) {
	setupEngine(t)
	m := newTestManager(t, ManagerOptions{})

	m.OpenURL("https://a.example")
	m.OpenURL("https://b.example")
	m.CloseTab(1)
	require.Equal(t, 1, m.Count())

	tab := m.ReopenClosedTab()

	require.NotNil(t, tab)
	assert.Equal(t, "https://b.example", tab.URL())
	assert.Same(t, tab, m.ActiveTab())
	assert.Nil(t, m.ReopenClosedTab())
}

func TestManagerReopenStackIsBounded(t *testing.T) {
	setupEngine(t)
	m := newTestManager(t, ManagerOptions{MaxClosedTabs: 2})

	m.OpenURL("https://a.example")
	m.OpenURL("https://b.example")
	m.OpenURL("https://c.example")
	m.CloseTab(0)
	m.CloseTab(0)
	m.CloseTab(0)

	assert.Equal(t, "https://c.example", m.ReopenClosedTab().URL())
	assert.Equal(t, "https://b.example", m.ReopenClosedTab().URL())
	assert.Nil(t, m.ReopenClosedTab())
}

func TestManagerPinMovesTabToFront(t *testing.T) {
	setupEngine(t)
	m := newTestManager(t, ManagerOptions{})

	m.OpenURL("https://a.example")
	m.OpenURL("https://b.example")
	m.OpenURL("https://c.example")

	m.PinTab(2)

	assert.Equal(t, []string{"https://c.example", "https://a.example", "https://b.example"}, urls(m.Tabs()))
	assert.Equal(t, 0, m.ActiveIndex())
	assert.Same(t, m.Tabs()[0], m.ActiveTab())

	m.UnpinTab(0)
	assert.Equal(t, []string{"https://c.example", "https://a.example", "https://b.example"}, urls(m.Tabs()))
	assert.False(t, m.Tabs()[0].IsPinned())
}

func TestManagerCloseOtherTabsKeepsPinnedAndActive(t *testing.T) {
	setupEngine(t)
	m := newTestManager(t, ManagerOptions{})

	m.OpenURL("https://a.example")
	m.OpenURL("https://b.example")
	m.OpenURL("https://c.example")
	m.PinTab(0)
	m.SwitchToTab(2)

	m.CloseOtherTabs()

	assert.Equal(t, []string{"https://a.example", "https://c.example"}, urls(m.Tabs()))
	assert.Equal(t, "https://c.example", m.ActiveTab().URL())
}

func TestManagerDrainForwardsToSinkAndOpensPopups(t *testing.T) {
	setupEngine(t)
	var mu sync.Mutex
	var got []TabEvent
	m := newTestManager(t, ManagerOptions{
		Sink: func(_ *Tab, ev TabEvent) {
			mu.Lock()
			got = append(got, ev)
			mu.Unlock()
		},
	})

	tab := m.OpenURL("https://a.example")
	tab.sender.Send(engine.TitleChanged{Title: "A"})
	tab.sender.Send(engine.PopupRequested{URL: "https://popup.example"})

	// The pump services the queues; events reach the sink and the
	// popup becomes a tab without an explicit drain call.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && m.Count() == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, TitleChanged{Title: "A"}, got[0])
	mu.Unlock()
	assert.Equal(t, "https://popup.example", m.ActiveTab().URL())
}

func TestManagerCloseWritesFinalSnapshot(t *testing.T) {
	setupEngine(t)
	store := &memStore{}
	m := NewTabManager(ManagerOptions{Store: store})

	m.OpenURL("https://a.example")
	m.OpenURL("https://b.example")
	m.PinTab(0)

	m.Close()
	m.Close() // second close is a no-op

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.state.Tabs, 2)
	assert.Equal(t, "https://a.example", store.state.Tabs[0].URL)
	assert.True(t, store.state.Tabs[0].IsPinned)
	assert.Equal(t, 1, store.state.ActiveIndex)
}

func TestManagerLateDebouncedSaveAfterCloseIsDropped(t *testing.T) {
	setupEngine(t)
	store := &memStore{}
	m := NewTabManager(ManagerOptions{Store: store})

	m.OpenURL("https://a.example")
	m.OpenURL("https://b.example")
	m.Close()

	// A debounce timer that fired just before Close blocks on the
	// manager lock and resumes after the final snapshot was written;
	// it must not replace that snapshot with the emptied tab list.
	m.saveNow()

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.state.Tabs, 2)
	assert.Equal(t, "https://b.example", store.state.Tabs[1].URL)
}

func TestManagerRestoreSession(t *testing.T) {
	eng := setupEngine(t)
	store := &memStore{loaded: session.State{
		Tabs: []session.Tab{
			{URL: "https://a.example", Title: "A", IsPinned: true},
			{URL: "https://b.example", Title: "B"},
		},
		ActiveIndex: 1,
	}}
	m := newTestManager(t, ManagerOptions{Store: store})
	m.SetViewport(800, 600, 1.0)

	require.NoError(t, m.RestoreSession(context.Background()))

	require.Equal(t, 2, m.Count())
	assert.Equal(t, 1, m.ActiveIndex())
	assert.Equal(t, "B", m.ActiveTab().Title())
	assert.True(t, m.Tabs()[0].IsPinned())
	// Only the active tab gets a browser up front.
	assert.Equal(t, 1, eng.created())
	assert.True(t, m.ActiveTab().HasBrowser())
}
