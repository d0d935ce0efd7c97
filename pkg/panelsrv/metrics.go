package panelsrv

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the small set of counters a deployment scrapes to watch
// the accept loop and the sessions it spawns. nil is a valid *Metrics
// receiver everywhere below: every method no-ops when m is nil, so a
// Server built without metrics pays no registration cost.
type Metrics struct {
	connectionsAccepted prometheus.Counter
	handshakeFailures   prometheus.Counter
	sessionsActive      prometheus.Gauge
	notificationsRouted prometheus.Counter
}

// NewMetrics registers the panelsrv counters on reg and returns a
// Metrics handle for them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "itv2paneld_connections_accepted_total",
			Help: "TCP connections accepted by the panel server.",
		}),
		handshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "itv2paneld_handshake_failures_total",
			Help: "Connections that failed the ITv2 handshake.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "itv2paneld_sessions_active",
			Help: "Sessions currently past the handshake and registered.",
		}),
		notificationsRouted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "itv2paneld_notifications_routed_total",
			Help: "Unmatched inbound messages handed to the server's notification handler.",
		}),
	}
	reg.MustRegister(m.connectionsAccepted, m.handshakeFailures, m.sessionsActive, m.notificationsRouted)
	return m
}

func (m *Metrics) acceptedConnection() {
	if m != nil {
		m.connectionsAccepted.Inc()
	}
}

func (m *Metrics) handshakeFailed() {
	if m != nil {
		m.handshakeFailures.Inc()
	}
}

func (m *Metrics) sessionRegistered() {
	if m != nil {
		m.sessionsActive.Inc()
	}
}

func (m *Metrics) sessionUnregistered() {
	if m != nil {
		m.sessionsActive.Dec()
	}
}

func (m *Metrics) notificationRouted() {
	if m != nil {
		m.notificationsRouted.Inc()
	}
}
