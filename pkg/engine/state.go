package engine

import "sync"

// Frame is the latest rendered frame, latest-value-wins. The core
// never decodes it; the presentation layer composites it.
type Frame struct {
	Data   []byte
	Width  int
	Height int
}

// RenderState is shared between the host-owned tab and the engine's
// callback adapters. The host writes size and scale, the engine
// writes frames. Every access is short and under the one lock.
type RenderState struct {
	mu          sync.Mutex
	width       uint32
	height      uint32
	scaleFactor float64
	frame       *Frame
}

// NewRenderState returns a RenderState with a 1.0 scale factor.
func NewRenderState() *RenderState {
	return &RenderState{scaleFactor: 1.0}
}

// SetSize records the viewport size in device-independent pixels.
func (s *RenderState) SetSize(width, height uint32) {
	s.mu.Lock()
	s.width, s.height = width, height
	s.mu.Unlock()
}

// Size returns the current viewport size.
func (s *RenderState) Size() (width, height uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// SetScaleFactor records the display scale factor.
func (s *RenderState) SetScaleFactor(scale float64) {
	s.mu.Lock()
	s.scaleFactor = scale
	s.mu.Unlock()
}

// ScaleFactor returns the display scale factor.
func (s *RenderState) ScaleFactor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scaleFactor
}

// StoreFrame replaces the current frame. Called from engine
// goroutines.
func (s *RenderState) StoreFrame(f *Frame) {
	s.mu.Lock()
	s.frame = f
	s.mu.Unlock()
}

// Frame returns the latest frame, or nil if none was rendered yet.
func (s *RenderState) Frame() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// ClearFrame drops the cached frame, e.g. after the browser closed.
func (s *RenderState) ClearFrame() {
	s.mu.Lock()
	s.frame = nil
	s.mu.Unlock()
}

// LoadState mirrors the engine's view of the main frame: written by
// the engine's adapters as notifications are generated, read by the
// host during render passes as a latest-value-wins supplement to the
// event stream.
type LoadState struct {
	mu           sync.Mutex
	url          string
	title        string
	isLoading    bool
	canGoBack    bool
	canGoForward bool
}

// NewLoadState returns an empty LoadState.
func NewLoadState() *LoadState {
	return &LoadState{}
}

// SetURL records the main-frame URL.
func (s *LoadState) SetURL(url string) {
	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
}

// URL returns the main-frame URL.
func (s *LoadState) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// SetTitle records the page title.
func (s *LoadState) SetTitle(title string) {
	s.mu.Lock()
	s.title = title
	s.mu.Unlock()
}

// Title returns the page title.
func (s *LoadState) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// SetLoading records the loading flag and history capabilities.
func (s *LoadState) SetLoading(isLoading, canGoBack, canGoForward bool) {
	s.mu.Lock()
	s.isLoading, s.canGoBack, s.canGoForward = isLoading, canGoBack, canGoForward
	s.mu.Unlock()
}

// Loading returns the loading flag and history capabilities.
func (s *LoadState) Loading() (isLoading, canGoBack, canGoForward bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isLoading, s.canGoBack, s.canGoForward
}
