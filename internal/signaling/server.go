package signaling

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arcadelab/peerlobby/internal/admission"
	"github.com/arcadelab/peerlobby/internal/broker"
	"github.com/arcadelab/peerlobby/internal/metrics"
	"github.com/arcadelab/peerlobby/internal/origin"
	"github.com/arcadelab/peerlobby/internal/protocol"
)

// Config carries the transport and admission settings for the WebSocket
// endpoint. Zero durations and sizes fall back to serving defaults.
type Config struct {
	AllowedOrigins []string

	// HelloTimeout bounds the unidentified phase; a connection that sends
	// no hello within it is closed.
	HelloTimeout time.Duration

	// The server pings every PingInterval and allows PongTimeout of
	// pong silence before closing an identified connection.
	PingInterval time.Duration
	PongTimeout  time.Duration

	WriteTimeout    time.Duration
	MaxMessageBytes int64

	// MaxConnsPerAddr caps concurrent connections per client address.
	// Zero or negative disables the cap.
	MaxConnsPerAddr int

	// Per-identity fixed-window message budget, applied once identified.
	// Zero disables.
	RateLimitWindow      time.Duration
	RateLimitMaxMessages int
}

func (c Config) withDefaults() Config {
	if c.HelloTimeout <= 0 {
		c.HelloTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 64 * 1024
	}
	return c
}

// Server implements GET /ws.
type Server struct {
	cfg     Config
	broker  *broker.Broker
	metrics *metrics.Metrics
	log     *slog.Logger

	conns   *admission.ConnLimiter
	msgRate *admission.WindowLimiter

	upgrader websocket.Upgrader
}

func NewServer(cfg Config, b *broker.Broker, m *metrics.Metrics, logger *slog.Logger) *Server {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		cfg:     cfg,
		broker:  b,
		metrics: m,
		log:     logger,
		conns:   admission.NewConnLimiter(cfg.MaxConnsPerAddr),
		msgRate: admission.NewWindowLimiter(nil, cfg.RateLimitWindow, cfg.RateLimitMaxMessages),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	originHeader := strings.TrimSpace(r.Header.Get("Origin"))
	if originHeader == "" {
		return true
	}
	normalized, ok := origin.Normalize(originHeader)
	if !ok {
		return false
	}
	return origin.IsAllowed(normalized, s.cfg.AllowedOrigins)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error (403 on a rejected origin).
		return
	}
	defer ws.Close()

	conn := newPeerConn(ws, s.cfg.WriteTimeout)

	addr := clientAddr(r.RemoteAddr)
	if err := s.conns.Acquire(addr); err != nil {
		s.metrics.ConnRejected(metrics.ReasonConnLimit)
		s.log.Info("connection rejected", "addr", addr, "reason", metrics.ReasonConnLimit)
		if err := conn.Send(protocol.MustEncode(protocol.ErrorMessage{
			Type:      protocol.TypeError,
			ErrorType: protocol.ErrorTypeCapacity,
			Reason:    protocol.ReasonConnectionLimit,
		})); err == nil {
			s.metrics.MessageOut(string(protocol.TypeError))
		}
		conn.writeClose(websocket.CloseTryAgainLater, "connection limit")
		return
	}
	defer s.conns.Release(addr)

	s.metrics.ConnAccepted()
	defer s.metrics.ConnClosed()

	sess := &session{srv: s, ws: ws, conn: conn, addr: addr}
	sess.run(r.Context())
}

// clientAddr keys the connection cap by remote IP, so one machine cannot
// widen its budget by varying source ports.
func clientAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// pingLoop emits keepalive pings until the read loop exits or the first
// failed write.
func (s *Server) pingLoop(conn *peerConn, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}

// session is the per-connection dispatcher state. identified flips once and
// is only touched on the read goroutine.
type session struct {
	srv  *Server
	ws   *websocket.Conn
	conn *peerConn
	addr string

	identified bool
	ref        broker.PeerRef
}

func (s *session) run(ctx context.Context) {
	srv := s.srv

	s.ws.SetReadLimit(srv.cfg.MaxMessageBytes)
	_ = s.ws.SetReadDeadline(time.Now().Add(srv.cfg.HelloTimeout))
	s.ws.SetPongHandler(func(string) error {
		// The hello deadline governs until identification.
		if s.identified {
			_ = s.ws.SetReadDeadline(time.Now().Add(srv.cfg.PongTimeout))
		}
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go srv.pingLoop(s.conn, done)

	defer func() {
		if !s.identified {
			return
		}
		// Fresh context: the request context is unwinding with us. Only a
		// transport that was still live releases the identity's rate
		// window; an evicted one must not reset the successor's budget.
		if srv.broker.Disconnect(context.Background(), s.ref, s.conn) {
			srv.msgRate.Forget(s.ref.Token)
		}
		srv.log.Info("peer disconnected", "peer", s.ref.PeerID, "addr", s.addr)
	}()

	for {
		msgType, data, err := s.ws.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				if s.identified {
					s.conn.writeClose(websocket.CloseNormalClosure, "idle timeout")
				} else {
					s.conn.writeClose(websocket.ClosePolicyViolation, "hello timeout")
				}
			}
			return
		}
		if msgType != websocket.TextMessage {
			s.conn.writeClose(websocket.CloseUnsupportedData, "expected text frames")
			return
		}

		msg, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.sendWireError(err)
			continue
		}
		if msg.Type.IsClientType() {
			srv.metrics.MessageIn(string(msg.Type))
		}

		if !s.identified {
			if !s.handleHello(ctx, msg) {
				return
			}
			continue
		}

		if !srv.msgRate.Allow(s.ref.Token) {
			srv.metrics.MessageDropped(metrics.ReasonRateLimited)
			s.sendError(protocol.ErrorTypeCapacity, protocol.ReasonRateLimited)
			continue
		}
		srv.broker.Touch(ctx, s.ref.Token)
		s.dispatch(ctx, msg)
	}
}

// handleHello processes a frame in the unidentified phase. Only hello is
// accepted; anything else draws a protocol error and the connection stays
// open. The return value is false when the connection must close.
func (s *session) handleHello(ctx context.Context, msg protocol.ClientMessage) bool {
	srv := s.srv

	if msg.Type != protocol.TypeHello {
		s.sendError(protocol.ErrorTypeProtocol, protocol.ReasonHelloRequired)
		return true
	}
	if err := msg.Validate(); err != nil {
		s.sendWireError(err)
		var we *protocol.WireError
		if errors.As(err, &we) && we.Reason == protocol.ReasonMalformedToken {
			// A malformed token cannot succeed on retry; cut the connection.
			srv.metrics.ConnRejected(metrics.ReasonBadHello)
			s.conn.writeClose(websocket.ClosePolicyViolation, "malformed session token")
			return false
		}
		return true
	}

	res, err := srv.broker.Hello(ctx, msg.SessionToken, s.conn)
	if err != nil {
		srv.log.Warn("hello failed", "addr", s.addr, "err", err)
		s.sendError(protocol.ErrorTypeBackend, protocol.ReasonStoreUnavailable)
		return true
	}

	s.identified = true
	s.ref = broker.PeerRef{Token: msg.SessionToken, PeerID: res.PeerID}
	_ = s.ws.SetReadDeadline(time.Now().Add(srv.cfg.PongTimeout))

	s.reply(protocol.TypePeerID, protocol.PeerIDMessage{
		Type:     protocol.TypePeerID,
		PeerID:   res.PeerID,
		Restored: res.Restored,
		RoomID:   res.RoomID,
	})
	srv.log.Info("peer identified", "peer", res.PeerID, "restored", res.Restored, "addr", s.addr)
	return true
}

func (s *session) dispatch(ctx context.Context, msg protocol.ClientMessage) {
	srv := s.srv

	if err := msg.Validate(); err != nil {
		s.sendWireError(err)
		return
	}

	switch msg.Type {
	case protocol.TypeHello:
		s.sendError(protocol.ErrorTypeProtocol, protocol.ReasonAlreadyIdentified)

	case protocol.TypeHeartbeat:
		s.reply(protocol.TypeHeartbeatAck, protocol.HeartbeatAckMessage{Type: protocol.TypeHeartbeatAck})

	case protocol.TypeQueryRoom:
		info, err := srv.broker.QueryRoom(ctx, msg.RoomID)
		if err != nil {
			s.sendError(protocol.ErrorTypeBackend, protocol.ReasonStoreUnavailable)
			return
		}
		s.reply(protocol.TypeRoomInfo, protocol.RoomInfoMessage{
			Type:       protocol.TypeRoomInfo,
			RoomID:     msg.RoomID,
			Exists:     info.Exists,
			HostPeerID: info.HostPeerID,
		})

	case protocol.TypeRegisterHost:
		err := srv.broker.RegisterHost(ctx, s.ref, msg.RoomID)
		s.replyRoomResult(msg.RoomID, protocol.TypeRegisterHostSuccess, protocol.TypeRegisterHostFailed, "", err)

	case protocol.TypeClaimHost:
		err := srv.broker.ClaimHost(ctx, s.ref, msg.RoomID)
		s.replyRoomResult(msg.RoomID, protocol.TypeClaimHostSuccess, protocol.TypeClaimHostFailed, "", err)

	case protocol.TypeJoinRoom:
		host, err := srv.broker.JoinRoom(ctx, s.ref, msg.RoomID)
		s.replyRoomResult(msg.RoomID, protocol.TypeJoinRoomSuccess, protocol.TypeJoinRoomFailed, host, err)

	case protocol.TypeLeaveRoom:
		// No direct reply; room members learn through host-disconnected.
		if err := srv.broker.LeaveRoom(ctx, s.ref); err != nil {
			s.sendError(protocol.ErrorTypeBackend, protocol.ReasonStoreUnavailable)
		}

	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICECandidate:
		err := srv.broker.Relay(ctx, s.ref.PeerID, msg)
		switch {
		case errors.Is(err, broker.ErrTargetNotFound):
			s.sendError(protocol.ErrorTypeNotFound, protocol.ReasonUnknownTargetPeer)
		case err != nil:
			srv.log.Warn("relay failed", "peer", s.ref.PeerID, "err", err)
		}

	default:
		// Unrecognized types are dropped without a reply, so garbage cannot
		// amplify traffic.
		srv.metrics.MessageDropped(metrics.ReasonUnknownType)
	}
}

// replyRoomResult maps a host/join outcome onto its wire reply. Scoped
// failures become failed replies with a reason token; backend failures
// become error replies.
func (s *session) replyRoomResult(roomID string, successType, failedType protocol.MessageType, hostPeerID string, err error) {
	result := protocol.RoomResultMessage{Type: successType, RoomID: roomID, HostPeerID: hostPeerID}
	switch {
	case err == nil:
	case errors.Is(err, broker.ErrHostActive):
		result = protocol.RoomResultMessage{Type: failedType, RoomID: roomID, Reason: protocol.FailReasonHostActive}
	case errors.Is(err, broker.ErrRoomNotFound):
		result = protocol.RoomResultMessage{Type: failedType, RoomID: roomID, Reason: protocol.FailReasonRoomNotFound}
	case errors.Is(err, broker.ErrNoActiveHost):
		result = protocol.RoomResultMessage{Type: failedType, RoomID: roomID, Reason: protocol.FailReasonNoActiveHost}
	default:
		s.sendError(protocol.ErrorTypeBackend, protocol.ReasonStoreUnavailable)
		return
	}
	s.reply(result.Type, result)
}

// reply sends one server message and counts it on success.
func (s *session) reply(msgType protocol.MessageType, v any) {
	if err := s.conn.Send(protocol.MustEncode(v)); err == nil {
		s.srv.metrics.MessageOut(string(msgType))
	}
}

func (s *session) sendWireError(err error) {
	var we *protocol.WireError
	if !errors.As(err, &we) {
		we = &protocol.WireError{Kind: protocol.ErrorTypeValidation, Reason: protocol.ReasonMalformedJSON}
	}
	s.sendError(we.Kind, we.Reason)
}

func (s *session) sendError(kind protocol.ErrorType, reason string) {
	s.reply(protocol.TypeError, protocol.ErrorMessage{
		Type:      protocol.TypeError,
		ErrorType: kind,
		Reason:    reason,
	})
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
