package registry

import "testing"

type stubConn struct {
	name string
}

func (c *stubConn) Send(payload []byte) error { return nil }
func (c *stubConn) Close()                    {}

func TestRegistry_RegisterReturnsPrevious(t *testing.T) {
	r := New()
	a := &stubConn{name: "a"}
	b := &stubConn{name: "b"}

	if prev := r.Register("0123456789abcdef", a); prev != nil {
		t.Fatalf("first register returned prev %#v", prev)
	}
	if prev := r.Register("0123456789abcdef", b); prev != Conn(a) {
		t.Fatalf("second register returned %#v, want the first conn", prev)
	}

	got, ok := r.Get("0123456789abcdef")
	if !ok || got != Conn(b) {
		t.Fatalf("Get returned %#v, want the newest conn", got)
	}
}

func TestRegistry_DeregisterIsConditional(t *testing.T) {
	r := New()
	a := &stubConn{name: "a"}
	b := &stubConn{name: "b"}

	r.Register("0123456789abcdef", a)
	r.Register("0123456789abcdef", b) // evicts a

	// The evicted connection's teardown must not remove the replacement.
	if r.Deregister("0123456789abcdef", a) {
		t.Fatalf("stale deregister should be a no-op")
	}
	if !r.Live("0123456789abcdef") {
		t.Fatalf("peer should still be live after stale deregister")
	}

	if !r.Deregister("0123456789abcdef", b) {
		t.Fatalf("current conn should deregister")
	}
	if r.Live("0123456789abcdef") {
		t.Fatalf("peer should be gone")
	}
}

func TestRegistry_Len(t *testing.T) {
	r := New()
	if r.Len() != 0 {
		t.Fatalf("empty registry Len=%d", r.Len())
	}
	r.Register("0123456789abcdef", &stubConn{})
	r.Register("fedcba9876543210", &stubConn{})
	if r.Len() != 2 {
		t.Fatalf("Len=%d, want 2", r.Len())
	}
}
