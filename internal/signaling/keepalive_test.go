package signaling

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestServer_HelloTimeoutCloses(t *testing.T) {
	ts := newTestServer(t, Config{HelloTimeout: 100 * time.Millisecond})
	c := dial(t, ts)

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.ReadMessage()
	if err == nil {
		t.Fatalf("expected server to close the silent connection")
	}
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestServer_IdleTimeoutClosesWithoutPong(t *testing.T) {
	pongTimeout := 500 * time.Millisecond
	pingInterval := 50 * time.Millisecond

	ts := newTestServer(t, Config{PingInterval: pingInterval, PongTimeout: pongTimeout})
	c := dial(t, ts)

	pingSeen := make(chan struct{}, 1)
	c.SetPingHandler(func(string) error {
		select {
		case pingSeen <- struct{}{}:
		default:
		}
		// Intentionally do not respond with pong.
		return nil
	})

	identify(t, c, "keepalive-tok-001")

	errCh := make(chan error, 1)
	go func() {
		_, _, err := c.ReadMessage()
		errCh <- err
	}()

	select {
	case <-pingSeen:
	case err := <-errCh:
		t.Fatalf("connection closed before receiving ping: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for server ping")
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected server to close the websocket")
		}
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Fatalf("expected close normal closure, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for server to close idle websocket")
	}
}

func TestServer_PongKeepsConnectionOpenBeyondIdleTimeout(t *testing.T) {
	pongTimeout := 500 * time.Millisecond
	pingInterval := 50 * time.Millisecond

	ts := newTestServer(t, Config{PingInterval: pingInterval, PongTimeout: pongTimeout})
	c := dial(t, ts)

	pingSeen := make(chan struct{}, 1)
	c.SetPingHandler(func(appData string) error {
		select {
		case pingSeen <- struct{}{}:
		default:
		}
		// Respond with pong so the server extends the read deadline.
		return c.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(1*time.Second))
	})

	identify(t, c, "keepalive-tok-002")

	errCh := make(chan error, 1)
	go func() {
		_, _, err := c.ReadMessage()
		errCh <- err
	}()

	select {
	case <-pingSeen:
	case err := <-errCh:
		t.Fatalf("connection closed before receiving ping: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for server ping")
	}

	// Wait longer than the pong timeout. The read goroutine keeps answering
	// pings, so the server must not close.
	time.Sleep(pongTimeout + 2*pingInterval)

	select {
	case err := <-errCh:
		t.Fatalf("unexpected close before pong timeout elapsed: %v", err)
	default:
	}

	_ = c.Close()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for read goroutine to exit")
	}
}
