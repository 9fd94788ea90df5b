package state

import (
	"context"
	"sync"
	"time"
)

// Memory is the in-process Store. Records are copied on the way in and out
// so callers can mutate their Room value without racing the map.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]Session
	peers    map[string]string
	rooms    map[string]Room
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]Session),
		peers:    make(map[string]string),
		rooms:    make(map[string]Room),
	}
}

func (m *Memory) PutSession(ctx context.Context, token string, s Session) error {
	m.mu.Lock()
	m.sessions[token] = s
	m.mu.Unlock()
	return nil
}

func (m *Memory) Session(ctx context.Context, token string) (Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[token]
	m.mu.RUnlock()
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) TouchSession(ctx context.Context, token string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return ErrNotFound
	}
	s.LastSeen = now
	m.sessions[token] = s
	return nil
}

func (m *Memory) BindRoom(ctx context.Context, token, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return ErrNotFound
	}
	s.RoomID = roomID
	m.sessions[token] = s
	return nil
}

func (m *Memory) DeleteSession(ctx context.Context, token string) error {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
	return nil
}

func (m *Memory) SweepSessions(ctx context.Context, now time.Time, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for token, s := range m.sessions {
		if now.Sub(s.LastSeen) >= ttl {
			delete(m.sessions, token)
			delete(m.peers, s.PeerID)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) SetPeerRoom(ctx context.Context, peerID, roomID string) error {
	m.mu.Lock()
	m.peers[peerID] = roomID
	m.mu.Unlock()
	return nil
}

func (m *Memory) PeerRoom(ctx context.Context, peerID string) (string, error) {
	m.mu.RLock()
	roomID, ok := m.peers[peerID]
	m.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	return roomID, nil
}

func (m *Memory) DeletePeerRoom(ctx context.Context, peerID string) error {
	m.mu.Lock()
	delete(m.peers, peerID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) PeerKnown(ctx context.Context, peerID string) (bool, error) {
	m.mu.RLock()
	_, ok := m.peers[peerID]
	m.mu.RUnlock()
	return ok, nil
}

func (m *Memory) PutRoom(ctx context.Context, r Room) error {
	r.Members = append([]string(nil), r.Members...)

	m.mu.Lock()
	m.rooms[r.ID] = r
	m.mu.Unlock()
	return nil
}

func (m *Memory) Room(ctx context.Context, id string) (Room, error) {
	m.mu.RLock()
	r, ok := m.rooms[id]
	m.mu.RUnlock()
	if !ok {
		return Room{}, ErrNotFound
	}
	r.Members = append([]string(nil), r.Members...)
	return r, nil
}

func (m *Memory) DeleteRoom(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.rooms, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
