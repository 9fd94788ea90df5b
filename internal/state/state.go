// Package state holds the durable half of the broker: session records keyed
// by the client-held token and room records keyed by roomId.
//
// Two backends satisfy Store. The in-process one is for single-instance
// deployments and tests; the Redis one survives broker restarts and lets
// sessions outlive the process. Read-modify-write composition (who may claim
// a host seat, member reconciliation) lives in the broker, not here.
package state

import (
	"context"
	"time"
)

// Session is one reconnectable identity. The token under which it is stored
// never appears inside the record; clients present it, the server never
// echoes it.
type Session struct {
	PeerID   string    `json:"peerId"`
	RoomID   string    `json:"roomId,omitempty"`
	LastSeen time.Time `json:"lastSeen"`
}

// Room is one room record. HostPeerID may be empty while the room waits out
// the host-loss grace period.
type Room struct {
	ID         string    `json:"id"`
	HostPeerID string    `json:"hostPeerId,omitempty"`
	Members    []string  `json:"members,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// HasMember reports whether peerID is in the member set.
func (r *Room) HasMember(peerID string) bool {
	for _, m := range r.Members {
		if m == peerID {
			return true
		}
	}
	return false
}

// AddMember adds peerID to the member set if not already present.
func (r *Room) AddMember(peerID string) {
	if r.HasMember(peerID) {
		return
	}
	r.Members = append(r.Members, peerID)
}

// RemoveMember removes peerID from the member set if present.
func (r *Room) RemoveMember(peerID string) {
	for i, m := range r.Members {
		if m == peerID {
			r.Members = append(r.Members[:i], r.Members[i+1:]...)
			return
		}
	}
}

// Store is the durable backend contract. All methods are safe for concurrent
// use. Lookups for absent keys return ErrNotFound; any other error is a
// backend failure.
type Store interface {
	// PutSession writes the full session record for token.
	PutSession(ctx context.Context, token string, s Session) error

	// Session reads the record stored under token.
	Session(ctx context.Context, token string) (Session, error)

	// TouchSession sets the record's LastSeen to now.
	TouchSession(ctx context.Context, token string, now time.Time) error

	// BindRoom points the session at roomID. An empty roomID unbinds.
	BindRoom(ctx context.Context, token, roomID string) error

	// DeleteSession removes the record. Deleting an absent token is not an
	// error.
	DeleteSession(ctx context.Context, token string) error

	// SweepSessions removes sessions whose LastSeen is at least ttl old,
	// along with their peer markers, and returns how many sessions were
	// removed. Backends with native expiry may implement this as a no-op.
	SweepSessions(ctx context.Context, now time.Time, ttl time.Duration) (int, error)

	// SetPeerRoom records which room peerID currently belongs to. An empty
	// roomID keeps the peer marker with no room; writing the marker at all
	// is what makes the identity known.
	SetPeerRoom(ctx context.Context, peerID, roomID string) error

	// PeerRoom returns the room recorded for peerID, possibly empty.
	PeerRoom(ctx context.Context, peerID string) (string, error)

	// DeletePeerRoom removes the peer marker. Deleting an absent peer is
	// not an error.
	DeletePeerRoom(ctx context.Context, peerID string) error

	// PeerKnown reports whether peerID has a marker.
	PeerKnown(ctx context.Context, peerID string) (bool, error)

	// PutRoom writes the full room record.
	PutRoom(ctx context.Context, r Room) error

	// Room reads the record for id.
	Room(ctx context.Context, id string) (Room, error)

	// DeleteRoom removes the record. Deleting an absent room is not an
	// error.
	DeleteRoom(ctx context.Context, id string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
