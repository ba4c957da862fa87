package browser

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/glasshq/glass/pkg/engine"
)

// stubEngine hands out stubHandles with sequential ids and records
// every created handle for inspection.
type stubEngine struct {
	mu      sync.Mutex
	nextID  int32
	handles []*stubHandle
	pumps   atomic.Int64
}

func (e *stubEngine) Start(ctx context.Context) error { return nil }

func (e *stubEngine) CreateBrowser(ctx context.Context, opts engine.CreateOptions, client *engine.Client) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	h := &stubHandle{id: engine.BrowserID(e.nextID), initialURL: opts.URL, client: client}
	e.handles = append(e.handles, h)
	return h, nil
}

func (e *stubEngine) PumpWork() { e.pumps.Add(1) }
func (e *stubEngine) Shutdown() {}

func (e *stubEngine) handle(i int) *stubHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handles[i]
}

func (e *stubEngine) created() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}

type stubHandle struct {
	id         engine.BrowserID
	initialURL string
	client     *engine.Client

	mu         sync.Mutex
	loadedURLs []string
	hidden     bool
	muted      bool
	focused    bool
	backCalls  int
	fwdCalls   int
	closed     bool
	closeForce bool
}

func (h *stubHandle) ID() engine.BrowserID { return h.id }

func (h *stubHandle) LoadURL(url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loadedURLs = append(h.loadedURLs, url)
	return nil
}

func (h *stubHandle) Reload()            {}
func (h *stubHandle) ReloadIgnoreCache() {}
func (h *stubHandle) StopLoad()          {}

func (h *stubHandle) GoBack() {
	h.mu.Lock()
	h.backCalls++
	h.mu.Unlock()
}

func (h *stubHandle) GoForward() {
	h.mu.Lock()
	h.fwdCalls++
	h.mu.Unlock()
}

func (h *stubHandle) Copy()      {}
func (h *stubHandle) Cut()       {}
func (h *stubHandle) Paste()     {}
func (h *stubHandle) Undo()      {}
func (h *stubHandle) Redo()      {}
func (h *stubHandle) SelectAll() {}
func (h *stubHandle) Delete()    {}

func (h *stubHandle) Find(text string, forward, matchCase, findNext bool) {}
func (h *stubHandle) StopFinding(clearSelection bool)                     {}

func (h *stubHandle) SetFocus(focus bool) {
	h.mu.Lock()
	h.focused = focus
	h.mu.Unlock()
}

func (h *stubHandle) SetHidden(hidden bool) {
	h.mu.Lock()
	h.hidden = hidden
	h.mu.Unlock()
}

func (h *stubHandle) SetAudioMuted(muted bool) {
	h.mu.Lock()
	h.muted = muted
	h.mu.Unlock()
}

func (h *stubHandle) WasResized() {}
func (h *stubHandle) Invalidate() {}

func (h *stubHandle) Close(force bool) {
	h.mu.Lock()
	h.closed = true
	h.closeForce = force
	h.mu.Unlock()
}

func (h *stubHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *stubHandle) isHidden() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hidden
}

func (h *stubHandle) isMuted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.muted
}

// setupEngine installs a stub engine for the duration of the test.
func setupEngine(t *testing.T) *stubEngine {
	t.Helper()
	engine.Shutdown()
	e := &stubEngine{}
	if err := engine.Initialize(context.Background(), e); err != nil {
		t.Fatalf("initialize stub engine: %v", err)
	}
	t.Cleanup(engine.Shutdown)
	return e
}
