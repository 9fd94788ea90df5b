package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler_ExposesCounters(t *testing.T) {
	m := New()
	m.ConnAccepted()
	m.ConnRejected(ReasonConnLimit)
	m.MessageIn("hello")
	m.MessageOut("peer-id")
	m.RelayDropped(ReasonTargetGone)
	m.SessionsSwept(3)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusOK)
	}

	body := rr.Body.String()
	for _, want := range []string{
		`peerlobby_broker_connections_accepted_total 1`,
		`peerlobby_broker_connections_rejected_total{reason="connection_limit"} 1`,
		`peerlobby_broker_connections_active 1`,
		`peerlobby_broker_messages_in_total{type="hello"} 1`,
		`peerlobby_broker_messages_out_total{type="peer-id"} 1`,
		`peerlobby_broker_relays_dropped_total{reason="target_gone"} 1`,
		`peerlobby_broker_sessions_swept_total 3`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in exposition:\n%s", want, body)
		}
	}
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics

	// Must not panic; packages treat metrics as optional.
	m.ConnAccepted()
	m.ConnClosed()
	m.ConnRejected(ReasonRateLimited)
	m.MessageIn("offer")
	m.MessageDropped(ReasonRateLimited)
	m.RelayDelivered()
	m.RelayDropped(ReasonSendFailed)
	m.RoomCreated()
	m.RoomClosed()
	m.HostMigrated()
	m.SessionCreated()
	m.SessionRestored()
	m.SessionsSwept(1)
	m.StoreError("put_session")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("nil handler status=%d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestMetrics_InstancesAreIndependent(t *testing.T) {
	// Two instances must not collide in a shared global registry.
	a := New()
	b := New()
	a.RoomCreated()

	rr := httptest.NewRecorder()
	b.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if strings.Contains(rr.Body.String(), "peerlobby_broker_rooms_created_total 1") {
		t.Fatalf("instance b observed instance a's counter")
	}
}
