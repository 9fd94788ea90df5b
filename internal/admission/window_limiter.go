package admission

import (
	"sync"
	"time"
)

// WindowLimiter is a fixed-window message counter keyed by identity.
//
// Each identity gets at most limit messages per window. The window starts at
// the first message after the previous window expired; a caller straddling
// the boundary can therefore push up to 2*limit messages in a short span.
// That burst is an accepted property of the counter, not a bug to fix with a
// smoother limiter: rejected messages cost the sender a round trip anyway.
type WindowLimiter struct {
	clock  Clock
	window time.Duration
	limit  int

	mu      sync.Mutex
	windows map[string]*windowEntry
}

type windowEntry struct {
	start time.Time
	count int
}

// NewWindowLimiter returns a limiter allowing limit messages per window for
// each identity. limit <= 0 or window <= 0 disables the limit. A nil clock
// falls back to RealClock.
func NewWindowLimiter(clock Clock, window time.Duration, limit int) *WindowLimiter {
	if clock == nil {
		clock = RealClock{}
	}
	return &WindowLimiter{
		clock:   clock,
		window:  window,
		limit:   limit,
		windows: make(map[string]*windowEntry),
	}
}

// Allow records one message for id and reports whether it is within the
// window budget. The first limit messages of a window pass; later ones are
// rejected until the window rolls over.
func (l *WindowLimiter) Allow(id string) bool {
	if l.limit <= 0 || l.window <= 0 {
		return true
	}

	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.windows[id]
	if !ok || now.Sub(e.start) >= l.window {
		l.windows[id] = &windowEntry{start: now, count: 1}
		return true
	}

	e.count++
	return e.count <= l.limit
}

// Forget drops the window state for id. Call it when the identity's
// connection goes away so the map does not grow with dead peers.
func (l *WindowLimiter) Forget(id string) {
	if l.limit <= 0 || l.window <= 0 {
		return
	}

	l.mu.Lock()
	delete(l.windows, id)
	l.mu.Unlock()
}
