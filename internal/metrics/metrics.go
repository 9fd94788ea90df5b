// Package metrics exposes the broker's Prometheus collectors.
//
// Every Metrics method is safe on a nil receiver so packages can take an
// optional *Metrics without guarding each call site.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reject and drop reasons used as label values. Stable strings; dashboards
// key on them.
const (
	ReasonConnLimit   = "connection_limit"
	ReasonRateLimited = "rate_limited"
	ReasonBadHello    = "bad_hello"
	ReasonTargetGone  = "target_gone"
	ReasonSendFailed  = "send_failed"
	ReasonStoreError  = "store_error"
	ReasonUnknownType = "unknown_type"
)

// Metrics is the collector bundle for one broker instance. Each instance
// owns its registry so several brokers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	connectionsAccepted prometheus.Counter
	connectionsRejected *prometheus.CounterVec
	connectionsActive   prometheus.Gauge

	messagesIn      *prometheus.CounterVec
	messagesOut     *prometheus.CounterVec
	messagesDropped *prometheus.CounterVec

	relaysDelivered prometheus.Counter
	relaysDropped   *prometheus.CounterVec

	roomsCreated   prometheus.Counter
	roomsClosed    prometheus.Counter
	hostMigrations prometheus.Counter

	sessionsCreated  prometheus.Counter
	sessionsRestored prometheus.Counter
	sessionsSwept    prometheus.Counter

	storeErrors *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "peerlobby",
			Subsystem: "broker",
			Name:      "connections_accepted_total",
			Help:      "Websocket connections accepted after admission checks.",
		}),
		connectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerlobby",
			Subsystem: "broker",
			Name:      "connections_rejected_total",
			Help:      "Websocket connections rejected, segmented by reason.",
		}, []string{"reason"}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "peerlobby",
			Subsystem: "broker",
			Name:      "connections_active",
			Help:      "Currently open websocket connections.",
		}),
		messagesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerlobby",
			Subsystem: "broker",
			Name:      "messages_in_total",
			Help:      "Client messages received, segmented by message type.",
		}, []string{"type"}),
		messagesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerlobby",
			Subsystem: "broker",
			Name:      "messages_out_total",
			Help:      "Server messages delivered to clients, segmented by message type.",
		}, []string{"type"}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerlobby",
			Subsystem: "broker",
			Name:      "messages_dropped_total",
			Help:      "Client messages rejected or ignored, segmented by reason.",
		}, []string{"reason"}),
		relaysDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "peerlobby",
			Subsystem: "broker",
			Name:      "relays_delivered_total",
			Help:      "Signaling payloads forwarded to their target peer.",
		}),
		relaysDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerlobby",
			Subsystem: "broker",
			Name:      "relays_dropped_total",
			Help:      "Signaling payloads not delivered, segmented by reason.",
		}, []string{"reason"}),
		roomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "peerlobby",
			Subsystem: "broker",
			Name:      "rooms_created_total",
			Help:      "Rooms created by register-host or claim-host.",
		}),
		roomsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "peerlobby",
			Subsystem: "broker",
			Name:      "rooms_closed_total",
			Help:      "Rooms deleted after the host-loss grace period or on last leave.",
		}),
		hostMigrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "peerlobby",
			Subsystem: "broker",
			Name:      "host_migrations_total",
			Help:      "Host seats taken over by claim-host on a hostless room.",
		}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "peerlobby",
			Subsystem: "broker",
			Name:      "sessions_created_total",
			Help:      "Fresh identities minted on hello.",
		}),
		sessionsRestored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "peerlobby",
			Subsystem: "broker",
			Name:      "sessions_restored_total",
			Help:      "Identities restored from a presented session token.",
		}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "peerlobby",
			Subsystem: "broker",
			Name:      "sessions_swept_total",
			Help:      "Stale sessions removed by the periodic sweep.",
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerlobby",
			Subsystem: "broker",
			Name:      "store_errors_total",
			Help:      "State store operation failures, segmented by operation.",
		}, []string{"op"}),
	}

	m.registry.MustRegister(
		m.connectionsAccepted,
		m.connectionsRejected,
		m.connectionsActive,
		m.messagesIn,
		m.messagesOut,
		m.messagesDropped,
		m.relaysDelivered,
		m.relaysDropped,
		m.roomsCreated,
		m.roomsClosed,
		m.hostMigrations,
		m.sessionsCreated,
		m.sessionsRestored,
		m.sessionsSwept,
		m.storeErrors,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
	m.connectionsActive.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

func (m *Metrics) ConnRejected(reason string) {
	if m == nil {
		return
	}
	m.connectionsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) MessageIn(msgType string) {
	if m == nil {
		return
	}
	if msgType == "" {
		msgType = "unknown"
	}
	m.messagesIn.WithLabelValues(msgType).Inc()
}

func (m *Metrics) MessageOut(msgType string) {
	if m == nil {
		return
	}
	if msgType == "" {
		msgType = "unknown"
	}
	m.messagesOut.WithLabelValues(msgType).Inc()
}

func (m *Metrics) MessageDropped(reason string) {
	if m == nil {
		return
	}
	m.messagesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RelayDelivered() {
	if m == nil {
		return
	}
	m.relaysDelivered.Inc()
}

func (m *Metrics) RelayDropped(reason string) {
	if m == nil {
		return
	}
	m.relaysDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RoomCreated() {
	if m == nil {
		return
	}
	m.roomsCreated.Inc()
}

func (m *Metrics) RoomClosed() {
	if m == nil {
		return
	}
	m.roomsClosed.Inc()
}

func (m *Metrics) HostMigrated() {
	if m == nil {
		return
	}
	m.hostMigrations.Inc()
}

func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
}

func (m *Metrics) SessionRestored() {
	if m == nil {
		return
	}
	m.sessionsRestored.Inc()
}

func (m *Metrics) SessionsSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsSwept.Add(float64(n))
}

func (m *Metrics) StoreError(op string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.storeErrors.WithLabelValues(op).Inc()
}
