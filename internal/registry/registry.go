// Package registry tracks which peers currently hold a live websocket on
// this broker instance.
//
// The registry is the liveness oracle for room state: a host recorded in the
// room directory counts as present only while its peer has an entry here.
// Durable state (sessions, rooms) lives in the state store; this map is
// deliberately process-local and rebuilt from reconnects after a restart.
package registry

import "sync"

// Conn is the transport half of a connected peer. Implementations must make
// Send safe for concurrent use; Close must be idempotent.
type Conn interface {
	// Send writes one message to the peer. Errors are terminal for the
	// connection and the caller is expected to drop it.
	Send(payload []byte) error

	// Close tears the transport down.
	Close()
}

// Registry maps peerId to the single live connection allowed per peer.
type Registry struct {
	mu    sync.Mutex
	conns map[string]Conn
}

func New() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register installs conn as the transport for peerID and returns the
// previous transport, if any. The newest registration always wins; the
// caller is responsible for closing the returned connection.
func (r *Registry) Register(peerID string, conn Conn) (prev Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev = r.conns[peerID]
	r.conns[peerID] = conn
	return prev
}

// Deregister removes peerID's entry only if conn is still the registered
// transport. A connection evicted by a newer Register call therefore cannot
// clobber its replacement during its own teardown.
func (r *Registry) Deregister(peerID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.conns[peerID]
	if !ok || cur != conn {
		return false
	}
	delete(r.conns, peerID)
	return true
}

// Get returns the live transport for peerID.
func (r *Registry) Get(peerID string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[peerID]
	return conn, ok
}

// Live reports whether peerID has a live transport on this instance.
func (r *Registry) Live(peerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.conns[peerID]
	return ok
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.conns)
}
