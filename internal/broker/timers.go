package broker

import (
	"sync"
	"time"
)

// timerRegistry holds the one cancellable cleanup timer allowed per hostless
// room. Arming an already-armed room replaces its timer; cancel and close
// are idempotent.
type timerRegistry struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{timers: make(map[string]*time.Timer)}
}

// arm schedules fire after d, replacing any pending timer for roomID. The
// fire callback runs on a timer goroutine and must re-check room state
// itself; a fire that lost a cancel race observes nothing to do.
func (tr *timerRegistry) arm(roomID string, d time.Duration, fire func()) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.closed {
		return
	}
	if old, ok := tr.timers[roomID]; ok {
		old.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		tr.mu.Lock()
		// Only the currently-armed timer may clear the slot; a stale fire
		// racing a re-arm must not remove its replacement.
		if cur, ok := tr.timers[roomID]; ok && cur == t {
			delete(tr.timers, roomID)
		}
		tr.mu.Unlock()

		fire()
	})
	tr.timers[roomID] = t
}

// cancel stops and removes the pending timer for roomID, if any.
func (tr *timerRegistry) cancel(roomID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if t, ok := tr.timers[roomID]; ok {
		t.Stop()
		delete(tr.timers, roomID)
	}
}

// armed reports whether roomID has a pending timer.
func (tr *timerRegistry) armed(roomID string) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	_, ok := tr.timers[roomID]
	return ok
}

// close cancels every pending timer and rejects further arms.
func (tr *timerRegistry) close() {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.closed = true
	for roomID, t := range tr.timers {
		t.Stop()
		delete(tr.timers, roomID)
	}
}
