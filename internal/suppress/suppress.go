// Package suppress holds the two throttles of the engine: the repeated-text
// cool-down for toasts and the in-flight/interval gate for entitlement
// refreshes. Both are driven by caller-supplied times so tests control the
// clock.
package suppress

import (
	"sync"
	"time"
)

const (
	// DefaultTextWindow is the cool-down against re-displaying identical text.
	DefaultTextWindow = 30 * time.Second
	// DefaultRefreshInterval is the minimum gap between account refreshes.
	DefaultRefreshInterval = 5 * time.Second
	// MaxImmediateRefreshes bounds the concurrent package-refresh burst.
	MaxImmediateRefreshes = 5
	// DeferredRefreshDelay is the fixed delay before the remainder of a
	// package-refresh burst is issued.
	DeferredRefreshDelay = time.Second
)

// TextWindow suppresses identical text inside a rolling window.
type TextWindow struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
}

func NewTextWindow(window time.Duration) *TextWindow {
	if window <= 0 {
		window = DefaultTextWindow
	}
	return &TextWindow{window: window, seen: make(map[string]time.Time)}
}

// Allow reports whether text may be shown now, and records it if so.
func (w *TextWindow) Allow(text string, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if at, ok := w.seen[text]; ok && now.Sub(at) < w.window {
		return false
	}
	w.seen[text] = now
	w.prune(now)
	return true
}

// Reset forgets everything. Used on the hard delete signal.
func (w *TextWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.seen)
}

func (w *TextWindow) prune(now time.Time) {
	for t, at := range w.seen {
		if now.Sub(at) >= w.window {
			delete(w.seen, t)
		}
	}
}

// RefreshGate is a single in-flight guard with a minimum interval between
// acquisitions. Bursts of qualifying events collapse to one refresh.
type RefreshGate struct {
	mu       sync.Mutex
	interval time.Duration
	inflight bool
	last     time.Time
}

func NewRefreshGate(interval time.Duration) *RefreshGate {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &RefreshGate{interval: interval}
}

// TryAcquire claims the gate. It fails while a refresh is in flight or the
// interval since the last acquisition has not elapsed.
func (g *RefreshGate) TryAcquire(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight {
		return false
	}
	if !g.last.IsZero() && now.Sub(g.last) < g.interval {
		return false
	}
	g.inflight = true
	g.last = now
	return true
}

// Release ends the in-flight section. The interval keeps counting from the
// acquisition, not the release.
func (g *RefreshGate) Release() {
	g.mu.Lock()
	g.inflight = false
	g.mu.Unlock()
}
