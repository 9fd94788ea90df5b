package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis is the Store backed by a shared Redis instance. Each session and
// room is one JSON value; sessions are written with a native TTL so Redis
// expires them without a sweeper.
//
// A session's writes all come from its single live connection, so the
// read-modify-write in TouchSession and BindRoom runs untransacted.
type Redis struct {
	client     *redis.Client
	keyPrefix  string
	sessionTTL time.Duration
}

// NewRedis wraps an already-configured client. keyPrefix namespaces every
// key so one Redis can serve several deployments.
func NewRedis(client *redis.Client, keyPrefix string, sessionTTL time.Duration) *Redis {
	if sessionTTL < 0 {
		sessionTTL = 0
	}
	return &Redis{
		client:     client,
		keyPrefix:  keyPrefix,
		sessionTTL: sessionTTL,
	}
}

func (r *Redis) sessionKey(token string) string { return r.keyPrefix + "session:" + token }
func (r *Redis) peerKey(peerID string) string   { return r.keyPrefix + "peer:" + peerID }
func (r *Redis) roomKey(id string) string       { return r.keyPrefix + "room:" + id }

func (r *Redis) PutSession(ctx context.Context, token string, s Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("redis: encode session: %w", err)
	}
	if err := r.client.Set(ctx, r.sessionKey(token), payload, r.sessionTTL).Err(); err != nil {
		return fmt.Errorf("redis: put session: %w", err)
	}
	return nil
}

func (r *Redis) Session(ctx context.Context, token string) (Session, error) {
	payload, err := r.client.Get(ctx, r.sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("redis: get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return Session{}, fmt.Errorf("redis: decode session: %w", err)
	}
	return s, nil
}

func (r *Redis) TouchSession(ctx context.Context, token string, now time.Time) error {
	s, err := r.Session(ctx, token)
	if err != nil {
		return err
	}
	s.LastSeen = now

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("redis: encode session: %w", err)
	}

	// One round trip: rewrite the session and keep the peer marker's expiry
	// in step with it.
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.sessionKey(token), payload, r.sessionTTL)
	if r.sessionTTL > 0 {
		pipe.Expire(ctx, r.peerKey(s.PeerID), r.sessionTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: touch session: %w", err)
	}
	return nil
}

func (r *Redis) BindRoom(ctx context.Context, token, roomID string) error {
	s, err := r.Session(ctx, token)
	if err != nil {
		return err
	}
	s.RoomID = roomID
	return r.PutSession(ctx, token, s)
}

func (r *Redis) DeleteSession(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, r.sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("redis: delete session: %w", err)
	}
	return nil
}

// SweepSessions is a no-op: sessions and peer markers carry a native TTL.
func (r *Redis) SweepSessions(ctx context.Context, now time.Time, ttl time.Duration) (int, error) {
	return 0, nil
}

func (r *Redis) SetPeerRoom(ctx context.Context, peerID, roomID string) error {
	if err := r.client.Set(ctx, r.peerKey(peerID), roomID, r.sessionTTL).Err(); err != nil {
		return fmt.Errorf("redis: set peer room: %w", err)
	}
	return nil
}

func (r *Redis) PeerRoom(ctx context.Context, peerID string) (string, error) {
	roomID, err := r.client.Get(ctx, r.peerKey(peerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("redis: get peer room: %w", err)
	}
	return roomID, nil
}

func (r *Redis) DeletePeerRoom(ctx context.Context, peerID string) error {
	if err := r.client.Del(ctx, r.peerKey(peerID)).Err(); err != nil {
		return fmt.Errorf("redis: delete peer room: %w", err)
	}
	return nil
}

func (r *Redis) PeerKnown(ctx context.Context, peerID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.peerKey(peerID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: peer exists: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) PutRoom(ctx context.Context, room Room) error {
	payload, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("redis: encode room: %w", err)
	}
	if err := r.client.Set(ctx, r.roomKey(room.ID), payload, 0).Err(); err != nil {
		return fmt.Errorf("redis: put room: %w", err)
	}
	return nil
}

func (r *Redis) Room(ctx context.Context, id string) (Room, error) {
	payload, err := r.client.Get(ctx, r.roomKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Room{}, ErrNotFound
		}
		return Room{}, fmt.Errorf("redis: get room: %w", err)
	}

	var room Room
	if err := json.Unmarshal(payload, &room); err != nil {
		return Room{}, fmt.Errorf("redis: decode room: %w", err)
	}
	return room, nil
}

func (r *Redis) DeleteRoom(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.roomKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: delete room: %w", err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
