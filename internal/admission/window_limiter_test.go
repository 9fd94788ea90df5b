package admission

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestWindowLimiter_RejectsBeyondLimit(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := NewWindowLimiter(clk, 10*time.Second, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow("peer-a") {
			t.Fatalf("message %d should be allowed", i+1)
		}
	}
	if l.Allow("peer-a") {
		t.Fatalf("4th message in window should be rejected")
	}
	if l.Allow("peer-a") {
		t.Fatalf("5th message in window should be rejected")
	}
}

func TestWindowLimiter_WindowRollsOver(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := NewWindowLimiter(clk, 10*time.Second, 2)

	if !l.Allow("peer-a") || !l.Allow("peer-a") {
		t.Fatalf("initial window should allow 2 messages")
	}
	if l.Allow("peer-a") {
		t.Fatalf("expected rejection at limit")
	}

	clk.Advance(10 * time.Second)
	if !l.Allow("peer-a") {
		t.Fatalf("new window should reset the budget")
	}
}

func TestWindowLimiter_BoundaryBurst(t *testing.T) {
	// 2*limit messages can land within a short span when the sender saturates
	// one window right before it expires and the next right after.
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := NewWindowLimiter(clk, 10*time.Second, 2)

	clk.Advance(9 * time.Second)
	if !l.Allow("peer-a") || !l.Allow("peer-a") {
		t.Fatalf("first window budget")
	}

	clk.Advance(10 * time.Second) // expires the window started at t=9s
	if !l.Allow("peer-a") || !l.Allow("peer-a") {
		t.Fatalf("second window budget")
	}
}

func TestWindowLimiter_IdentitiesIndependent(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := NewWindowLimiter(clk, 10*time.Second, 1)

	if !l.Allow("peer-a") {
		t.Fatalf("peer-a first message")
	}
	if l.Allow("peer-a") {
		t.Fatalf("peer-a should be limited")
	}
	if !l.Allow("peer-b") {
		t.Fatalf("peer-b should have its own budget")
	}
}

func TestWindowLimiter_Forget(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := NewWindowLimiter(clk, 10*time.Second, 1)

	if !l.Allow("peer-a") {
		t.Fatalf("first message")
	}
	l.Forget("peer-a")
	if !l.Allow("peer-a") {
		t.Fatalf("budget should reset after Forget")
	}
}

func TestWindowLimiter_ZeroDisables(t *testing.T) {
	l := NewWindowLimiter(&fakeClock{now: time.Unix(0, 0)}, 0, 0)
	for i := 0; i < 100; i++ {
		if !l.Allow("peer-a") {
			t.Fatalf("disabled limiter rejected message %d", i)
		}
	}
}
