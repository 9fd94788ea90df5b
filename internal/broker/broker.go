// Package broker owns the session and room state machine: identity minting
// and restore, the single-host invariant, host-loss migration with a grace
// period, and verbatim relay of handshake envelopes between live peers.
//
// The broker composes reads and writes against the state store; per-room
// keyed locks serialize conflicting writes within this process. Two brokers
// sharing a distributed store can still race the host-claim check-then-set,
// which is an acknowledged gap of the design, not a bug in this file.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arcadelab/peerlobby/internal/metrics"
	"github.com/arcadelab/peerlobby/internal/protocol"
	"github.com/arcadelab/peerlobby/internal/registry"
	"github.com/arcadelab/peerlobby/internal/state"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config carries the two durations the state machine depends on.
type Config struct {
	// SessionTTL is how long a session survives without any message from
	// its identity.
	SessionTTL time.Duration

	// GracePeriod is how long a hostless room waits for a reclaim before
	// the cleanup timer deletes it.
	GracePeriod time.Duration
}

// PeerRef identifies an authenticated connection: the durable token the
// client presented and the peerId it resolved to.
type PeerRef struct {
	Token  string
	PeerID string
}

// Broker is safe for concurrent use by one goroutine per connection.
type Broker struct {
	cfg      Config
	store    state.Store
	registry *registry.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
	clock    Clock

	rooms  *keyedMutex
	timers *timerRegistry
}

func New(cfg Config, store state.Store, reg *registry.Registry, m *metrics.Metrics, logger *slog.Logger, clk Clock) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = realClock{}
	}
	return &Broker{
		cfg:      cfg,
		store:    store,
		registry: reg,
		metrics:  m,
		logger:   logger,
		clock:    clk,
		rooms:    newKeyedMutex(),
		timers:   newTimerRegistry(),
	}
}

// Close cancels all pending cleanup timers. The store is owned by the
// caller and closed separately.
func (b *Broker) Close() {
	b.timers.close()
}

// HelloResult is the outcome of identity assignment for one connection.
type HelloResult struct {
	PeerID   string
	Restored bool

	// RoomID is the session's last known room, set only on restore. The
	// room may no longer exist; clients confirm with query-room.
	RoomID string
}

// Hello resolves token to a peer identity and installs conn as that
// identity's single live transport. The token must already be
// format-validated; a fresh or stale token mints a new identity, a live one
// restores the previous identity and reconciles its room.
func (b *Broker) Hello(ctx context.Context, token string, conn registry.Conn) (HelloResult, error) {
	now := b.clock.Now()

	s, err := b.store.Session(ctx, token)
	switch {
	case err == nil && now.Sub(s.LastSeen) < b.cfg.SessionTTL:
		return b.restoreSession(ctx, token, s, conn, now)
	case err == nil || errors.Is(err, state.ErrNotFound):
		// Unseen token, or a stale session the token no longer resurrects.
		return b.createSession(ctx, token, conn, now)
	default:
		b.metrics.StoreError("get_session")
		return HelloResult{}, fmt.Errorf("load session: %w", err)
	}
}

func (b *Broker) createSession(ctx context.Context, token string, conn registry.Conn, now time.Time) (HelloResult, error) {
	for attempt := 0; attempt < 3; attempt++ {
		peerID, err := protocol.NewPeerID()
		if err != nil {
			return HelloResult{}, fmt.Errorf("mint peer id: %w", err)
		}
		known, err := b.store.PeerKnown(ctx, peerID)
		if err != nil {
			b.metrics.StoreError("peer_known")
			return HelloResult{}, fmt.Errorf("check peer id: %w", err)
		}
		if known {
			// 8 bytes of crypto-random entropy; retry for form's sake.
			continue
		}

		if err := b.store.PutSession(ctx, token, state.Session{PeerID: peerID, LastSeen: now}); err != nil {
			b.metrics.StoreError("put_session")
			return HelloResult{}, fmt.Errorf("store session: %w", err)
		}
		if err := b.store.SetPeerRoom(ctx, peerID, ""); err != nil {
			b.metrics.StoreError("set_peer_room")
			return HelloResult{}, fmt.Errorf("store peer: %w", err)
		}

		if prev := b.registry.Register(peerID, conn); prev != nil && prev != conn {
			prev.Close()
		}
		b.metrics.SessionCreated()
		b.logger.Info("session created", "peer", peerID)
		return HelloResult{PeerID: peerID, Restored: false}, nil
	}
	return HelloResult{}, ErrIdentityExhausted
}

func (b *Broker) restoreSession(ctx context.Context, token string, s state.Session, conn registry.Conn, now time.Time) (HelloResult, error) {
	peerID := s.PeerID

	if err := b.store.TouchSession(ctx, token, now); err != nil {
		b.metrics.StoreError("touch_session")
		b.logger.Warn("touch session on restore", "peer", peerID, "err", err)
	}
	// Rewrite the peer marker; on backends with native expiry it may have
	// lapsed independently of the session.
	if err := b.store.SetPeerRoom(ctx, peerID, s.RoomID); err != nil {
		b.metrics.StoreError("set_peer_room")
		b.logger.Warn("refresh peer marker", "peer", peerID, "err", err)
	}

	// Register before reconciling so a returning host observes itself as
	// live. The evicted transport, if any, gets closed; its teardown cannot
	// deregister us.
	if prev := b.registry.Register(peerID, conn); prev != nil && prev != conn {
		b.logger.Info("evicting superseded transport", "peer", peerID)
		prev.Close()
	}

	if s.RoomID != "" {
		b.reconcileRoom(ctx, peerID, s.RoomID)
	}

	b.metrics.SessionRestored()
	b.logger.Info("session restored", "peer", peerID, "room", s.RoomID)
	return HelloResult{PeerID: peerID, Restored: true, RoomID: s.RoomID}, nil
}

// reconcileRoom folds a restored identity back into its last known room: a
// hostless room gets this peer re-installed as host, otherwise a lapsed
// membership is re-added. Failures only log; the restore itself stands.
func (b *Broker) reconcileRoom(ctx context.Context, peerID, roomID string) {
	var (
		notify  []string
		payload []byte
	)

	b.rooms.lock(roomID)
	room, err := b.store.Room(ctx, roomID)
	if err != nil {
		b.rooms.unlock(roomID)
		if !errors.Is(err, state.ErrNotFound) {
			b.metrics.StoreError("get_room")
			b.logger.Warn("reconcile room", "room", roomID, "err", err)
		}
		return
	}

	switch {
	case !b.hostLive(room):
		room.HostPeerID = peerID
		room.RemoveMember(peerID)
		if err := b.store.PutRoom(ctx, room); err != nil {
			b.rooms.unlock(roomID)
			b.metrics.StoreError("put_room")
			b.logger.Warn("reinstall host", "room", roomID, "peer", peerID, "err", err)
			return
		}
		b.timers.cancel(roomID)
		notify = append([]string(nil), room.Members...)
		payload = protocol.MustEncode(protocol.RoomEventMessage{
			Type:       protocol.TypeHostReconnected,
			RoomID:     roomID,
			HostPeerID: peerID,
		})
		b.logger.Info("host reconnected", "room", roomID, "peer", peerID)

	case room.HostPeerID != peerID && !room.HasMember(peerID):
		room.AddMember(peerID)
		if err := b.store.PutRoom(ctx, room); err != nil {
			b.metrics.StoreError("put_room")
			b.logger.Warn("re-add member", "room", roomID, "peer", peerID, "err", err)
		}
	}
	b.rooms.unlock(roomID)

	b.send(protocol.TypeHostReconnected, notify, payload)
}

// RegisterHost creates or overwrites roomID with ref as host. It fails with
// ErrHostActive while the recorded host has a live transport; a stale host
// is no host. The overwrite drops any recorded members.
func (b *Broker) RegisterHost(ctx context.Context, ref PeerRef, roomID string) error {
	now := b.clock.Now()

	b.rooms.lock(roomID)
	room, err := b.store.Room(ctx, roomID)
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		b.rooms.unlock(roomID)
		b.metrics.StoreError("get_room")
		return fmt.Errorf("load room: %w", err)
	}
	if err == nil && b.hostLive(room) {
		b.rooms.unlock(roomID)
		return ErrHostActive
	}

	if err := b.store.PutRoom(ctx, state.Room{ID: roomID, HostPeerID: ref.PeerID, CreatedAt: now}); err != nil {
		b.rooms.unlock(roomID)
		b.metrics.StoreError("put_room")
		return fmt.Errorf("store room: %w", err)
	}
	b.timers.cancel(roomID)
	b.rooms.unlock(roomID)

	b.bindRoom(ctx, ref, roomID)
	b.metrics.RoomCreated()
	b.logger.Info("host registered", "room", roomID, "peer", ref.PeerID)
	return nil
}

// ClaimHost takes over roomID's host seat under the same condition as
// RegisterHost. A claim on an existing room keeps its members (minus the
// claimer); a claim on an absent room creates it.
func (b *Broker) ClaimHost(ctx context.Context, ref PeerRef, roomID string) error {
	now := b.clock.Now()

	b.rooms.lock(roomID)
	room, err := b.store.Room(ctx, roomID)
	existed := err == nil
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		b.rooms.unlock(roomID)
		b.metrics.StoreError("get_room")
		return fmt.Errorf("load room: %w", err)
	}
	if existed && b.hostLive(room) {
		b.rooms.unlock(roomID)
		return ErrHostActive
	}

	if !existed {
		room = state.Room{ID: roomID, CreatedAt: now}
	}
	room.HostPeerID = ref.PeerID
	room.RemoveMember(ref.PeerID)
	if err := b.store.PutRoom(ctx, room); err != nil {
		b.rooms.unlock(roomID)
		b.metrics.StoreError("put_room")
		return fmt.Errorf("store room: %w", err)
	}
	b.timers.cancel(roomID)
	b.rooms.unlock(roomID)

	b.bindRoom(ctx, ref, roomID)
	if existed {
		b.metrics.HostMigrated()
		b.logger.Info("host claimed", "room", roomID, "peer", ref.PeerID)
	} else {
		b.metrics.RoomCreated()
		b.logger.Info("host registered via claim", "room", roomID, "peer", ref.PeerID)
	}
	return nil
}

// JoinRoom adds ref to roomID's member set and returns the host identity.
// It fails with ErrRoomNotFound or, when the recorded host has no live
// transport, ErrNoActiveHost. The host is notified of the joiner.
func (b *Broker) JoinRoom(ctx context.Context, ref PeerRef, roomID string) (hostPeerID string, err error) {
	b.rooms.lock(roomID)
	room, err := b.store.Room(ctx, roomID)
	if err != nil {
		b.rooms.unlock(roomID)
		if errors.Is(err, state.ErrNotFound) {
			return "", ErrRoomNotFound
		}
		b.metrics.StoreError("get_room")
		return "", fmt.Errorf("load room: %w", err)
	}
	if !b.hostLive(room) {
		b.rooms.unlock(roomID)
		return "", ErrNoActiveHost
	}

	host := room.HostPeerID
	if ref.PeerID != host && !room.HasMember(ref.PeerID) {
		room.AddMember(ref.PeerID)
		if err := b.store.PutRoom(ctx, room); err != nil {
			b.rooms.unlock(roomID)
			b.metrics.StoreError("put_room")
			return "", fmt.Errorf("store room: %w", err)
		}
	}
	b.rooms.unlock(roomID)

	b.bindRoom(ctx, ref, roomID)
	if ref.PeerID != host {
		b.send(protocol.TypePeerConnecting, []string{host}, protocol.MustEncode(protocol.PeerConnectingMessage{
			Type:   protocol.TypePeerConnecting,
			PeerID: ref.PeerID,
		}))
	}
	b.logger.Info("member joined", "room", roomID, "peer", ref.PeerID)
	return host, nil
}

// LeaveRoom removes ref from its current room, resolved through the
// session. A leaving host vacates the seat and starts the grace period; a
// leaving member shrinks the set. Leaving with no current room is a no-op.
func (b *Broker) LeaveRoom(ctx context.Context, ref PeerRef) error {
	s, err := b.store.Session(ctx, ref.Token)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil
		}
		b.metrics.StoreError("get_session")
		return fmt.Errorf("load session: %w", err)
	}
	if s.RoomID == "" {
		return nil
	}
	roomID := s.RoomID

	var (
		notify  []string
		payload []byte
	)

	b.rooms.lock(roomID)
	room, err := b.store.Room(ctx, roomID)
	switch {
	case errors.Is(err, state.ErrNotFound):
		// Room already gone; still unbind the session below.

	case err != nil:
		b.rooms.unlock(roomID)
		b.metrics.StoreError("get_room")
		return fmt.Errorf("load room: %w", err)

	case room.HostPeerID == ref.PeerID:
		room.HostPeerID = ""
		if len(room.Members) == 0 {
			// Hostless and abandoned: delete now rather than waiting out
			// the grace period with nobody to claim.
			if err := b.store.DeleteRoom(ctx, roomID); err != nil {
				b.rooms.unlock(roomID)
				b.metrics.StoreError("delete_room")
				return fmt.Errorf("delete room: %w", err)
			}
			b.timers.cancel(roomID)
			b.metrics.RoomClosed()
			b.logger.Info("room removed with departing host", "room", roomID)
			break
		}
		if err := b.store.PutRoom(ctx, room); err != nil {
			b.rooms.unlock(roomID)
			b.metrics.StoreError("put_room")
			return fmt.Errorf("store room: %w", err)
		}
		b.armCleanup(roomID)
		notify = append([]string(nil), room.Members...)
		payload = protocol.MustEncode(protocol.RoomEventMessage{
			Type:   protocol.TypeHostDisconnected,
			RoomID: roomID,
		})
		b.logger.Info("host left", "room", roomID, "peer", ref.PeerID)

	case room.HasMember(ref.PeerID):
		room.RemoveMember(ref.PeerID)
		if room.HostPeerID == "" && len(room.Members) == 0 {
			if err := b.store.DeleteRoom(ctx, roomID); err != nil {
				b.rooms.unlock(roomID)
				b.metrics.StoreError("delete_room")
				return fmt.Errorf("delete room: %w", err)
			}
			b.timers.cancel(roomID)
			b.metrics.RoomClosed()
			b.logger.Info("room removed with last member", "room", roomID)
		} else {
			if err := b.store.PutRoom(ctx, room); err != nil {
				b.rooms.unlock(roomID)
				b.metrics.StoreError("put_room")
				return fmt.Errorf("store room: %w", err)
			}
			b.logger.Info("member left", "room", roomID, "peer", ref.PeerID)
		}
	}
	b.rooms.unlock(roomID)

	b.unbindRoom(ctx, ref)
	b.send(protocol.TypeHostDisconnected, notify, payload)
	return nil
}

// RoomInfo is the read-only answer to query-room.
type RoomInfo struct {
	Exists bool

	// HostPeerID is set only while the recorded host has a live transport;
	// a stale host reads as no host.
	HostPeerID string
}

func (b *Broker) QueryRoom(ctx context.Context, roomID string) (RoomInfo, error) {
	room, err := b.store.Room(ctx, roomID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return RoomInfo{}, nil
		}
		b.metrics.StoreError("get_room")
		return RoomInfo{}, fmt.Errorf("load room: %w", err)
	}

	info := RoomInfo{Exists: true}
	if b.hostLive(room) {
		info.HostPeerID = room.HostPeerID
	}
	return info, nil
}

// Relay forwards msg's raw payload to its target with the sender identity
// stamped server-side. A dead target yields ErrTargetNotFound; a send
// failure to a closing target is dropped without retry or error.
func (b *Broker) Relay(ctx context.Context, fromPeerID string, msg protocol.ClientMessage) error {
	conn, ok := b.registry.Get(msg.TargetPeerID)
	if !ok {
		b.metrics.RelayDropped(metrics.ReasonTargetGone)
		return ErrTargetNotFound
	}

	payload, err := protocol.StampRelay(msg.Raw, fromPeerID)
	if err != nil {
		return fmt.Errorf("stamp relay: %w", err)
	}

	if err := conn.Send(payload); err != nil {
		b.metrics.RelayDropped(metrics.ReasonSendFailed)
		b.logger.Debug("relay dropped", "target", msg.TargetPeerID, "err", err)
		return nil
	}
	b.metrics.RelayDelivered()
	b.metrics.MessageOut(string(msg.Type))
	return nil
}

// Disconnect handles a transport close and reports whether conn was still
// the identity's live transport. For an evicted transport this is a no-op;
// otherwise the identity is deregistered and, if it held a host seat, the
// seat is vacated and the grace period starts. Session and membership
// records persist so a reconnect can resume.
func (b *Broker) Disconnect(ctx context.Context, ref PeerRef, conn registry.Conn) (wasLive bool) {
	if !b.registry.Deregister(ref.PeerID, conn) {
		return false
	}

	roomID, err := b.store.PeerRoom(ctx, ref.PeerID)
	if err != nil {
		if !errors.Is(err, state.ErrNotFound) {
			b.metrics.StoreError("get_peer_room")
			b.logger.Warn("resolve room on disconnect", "peer", ref.PeerID, "err", err)
		}
		return true
	}
	if roomID == "" {
		return true
	}

	var (
		notify  []string
		payload []byte
	)

	b.rooms.lock(roomID)
	room, err := b.store.Room(ctx, roomID)
	if err != nil {
		b.rooms.unlock(roomID)
		if !errors.Is(err, state.ErrNotFound) {
			b.metrics.StoreError("get_room")
			b.logger.Warn("load room on disconnect", "room", roomID, "err", err)
		}
		return true
	}
	if room.HostPeerID == ref.PeerID {
		room.HostPeerID = ""
		if err := b.store.PutRoom(ctx, room); err != nil {
			b.rooms.unlock(roomID)
			b.metrics.StoreError("put_room")
			b.logger.Warn("vacate host seat", "room", roomID, "err", err)
			return true
		}
		// Abrupt loss always waits out the grace period, even with no
		// members: the host itself may reconnect and resume the room.
		b.armCleanup(roomID)
		notify = append([]string(nil), room.Members...)
		payload = protocol.MustEncode(protocol.RoomEventMessage{
			Type:   protocol.TypeHostDisconnected,
			RoomID: roomID,
		})
		b.logger.Info("host lost", "room", roomID, "peer", ref.PeerID)
	}
	b.rooms.unlock(roomID)

	b.send(protocol.TypeHostDisconnected, notify, payload)
	return true
}

// Touch refreshes the session's lastSeen; every authenticated message acts
// as a heartbeat. Failures only log: a lapsed session surfaces at the next
// hello.
func (b *Broker) Touch(ctx context.Context, token string) {
	if err := b.store.TouchSession(ctx, token, b.clock.Now()); err != nil {
		b.metrics.StoreError("touch_session")
		b.logger.Debug("touch session", "err", err)
	}
}

func (b *Broker) hostLive(room state.Room) bool {
	return room.HostPeerID != "" && b.registry.Live(room.HostPeerID)
}

func (b *Broker) armCleanup(roomID string) {
	b.timers.arm(roomID, b.cfg.GracePeriod, func() {
		b.expireRoom(roomID)
	})
}

// expireRoom is the cleanup timer body: after the grace period, a room
// still hostless is deleted and its members are told it closed.
func (b *Broker) expireRoom(roomID string) {
	ctx := context.Background()

	b.rooms.lock(roomID)
	if b.timers.armed(roomID) {
		// A newer grace period superseded this one.
		b.rooms.unlock(roomID)
		return
	}
	room, err := b.store.Room(ctx, roomID)
	if err != nil {
		b.rooms.unlock(roomID)
		if !errors.Is(err, state.ErrNotFound) {
			b.metrics.StoreError("get_room")
			b.logger.Warn("load room on expiry", "room", roomID, "err", err)
		}
		return
	}
	if b.hostLive(room) {
		b.rooms.unlock(roomID)
		return
	}
	if err := b.store.DeleteRoom(ctx, roomID); err != nil {
		b.rooms.unlock(roomID)
		b.metrics.StoreError("delete_room")
		b.logger.Warn("delete room on expiry", "room", roomID, "err", err)
		return
	}
	members := append([]string(nil), room.Members...)
	b.rooms.unlock(roomID)

	b.send(protocol.TypeRoomClosed, members, protocol.MustEncode(protocol.RoomEventMessage{
		Type:   protocol.TypeRoomClosed,
		RoomID: roomID,
	}))
	b.metrics.RoomClosed()
	b.logger.Info("room closed after grace period", "room", roomID, "members", len(members))
}

// bindRoom points ref's session and peer marker at roomID. The room write
// already succeeded when this runs, so failures only log; the session will
// re-sync on the next restore.
func (b *Broker) bindRoom(ctx context.Context, ref PeerRef, roomID string) {
	if err := b.store.BindRoom(ctx, ref.Token, roomID); err != nil {
		b.metrics.StoreError("bind_room")
		b.logger.Warn("bind session room", "peer", ref.PeerID, "room", roomID, "err", err)
	}
	if err := b.store.SetPeerRoom(ctx, ref.PeerID, roomID); err != nil {
		b.metrics.StoreError("set_peer_room")
		b.logger.Warn("bind peer room", "peer", ref.PeerID, "room", roomID, "err", err)
	}
}

func (b *Broker) unbindRoom(ctx context.Context, ref PeerRef) {
	b.bindRoom(ctx, ref, "")
}

// send fans payload out to each live peer. Failed sends are dropped; the
// target is tearing down and owns its own cleanup.
func (b *Broker) send(msgType protocol.MessageType, peerIDs []string, payload []byte) {
	if len(peerIDs) == 0 || payload == nil {
		return
	}
	for _, id := range peerIDs {
		if conn, ok := b.registry.Get(id); ok {
			if err := conn.Send(payload); err == nil {
				b.metrics.MessageOut(string(msgType))
			}
		}
	}
}
