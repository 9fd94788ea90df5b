package admission

import (
	"errors"
	"sync"
)

// ErrConnectionLimit is returned by ConnLimiter.Acquire when the remote
// address already holds the maximum number of concurrent connections.
var ErrConnectionLimit = errors.New("connection limit reached for address")

// ConnLimiter caps the number of concurrent connections per remote address.
//
// Acquire and Release must be paired: every successful Acquire needs exactly
// one Release when the connection ends, or the address's slot leaks.
type ConnLimiter struct {
	maxPerAddr int

	mu     sync.Mutex
	counts map[string]int
}

// NewConnLimiter returns a limiter allowing maxPerAddr concurrent
// connections per address key. maxPerAddr <= 0 disables the limit.
func NewConnLimiter(maxPerAddr int) *ConnLimiter {
	return &ConnLimiter{
		maxPerAddr: maxPerAddr,
		counts:     make(map[string]int),
	}
}

// Acquire reserves a connection slot for addr.
func (l *ConnLimiter) Acquire(addr string) error {
	if l.maxPerAddr <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.counts[addr] >= l.maxPerAddr {
		return ErrConnectionLimit
	}
	l.counts[addr]++
	return nil
}

// Release frees a slot previously reserved by Acquire.
func (l *ConnLimiter) Release(addr string) {
	if l.maxPerAddr <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.counts[addr]
	if n <= 1 {
		delete(l.counts, addr)
		return
	}
	l.counts[addr] = n - 1
}
