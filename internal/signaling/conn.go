package signaling

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Close frames and pings get a short deadline of their own; data writes use
// the configured write timeout.
const controlWriteWait = 1 * time.Second

// peerConn wraps a WebSocket connection as a registry transport. Send is
// called from other connections' goroutines on relay delivery; Close is
// called by the broker when a newer transport for the same identity evicts
// this one.
type peerConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

func newPeerConn(ws *websocket.Conn, writeTimeout time.Duration) *peerConn {
	return &peerConn{ws: ws, writeTimeout: writeTimeout}
}

func (c *peerConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close announces the eviction and tears the socket down; the read loop
// observes the closed socket and unwinds without deregistering the new
// transport.
func (c *peerConn) Close() {
	c.writeClose(websocket.CloseNormalClosure, "superseded by newer connection")
	_ = c.ws.Close()
}

// writeClose sends a close control frame. Control writes don't take the
// write lock; gorilla serializes them internally.
func (c *peerConn) writeClose(code int, reason string) {
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(controlWriteWait))
}

func (c *peerConn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteWait))
}
