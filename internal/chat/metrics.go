package chat

import "github.com/prometheus/client_golang/prometheus"

// Metrics instruments the engine. A nil *Metrics disables instrumentation,
// so the engine never checks for wiring.
type Metrics struct {
	activeSessions    prometheus.Gauge
	sessionTotal      prometheus.Counter
	messagesTotal     *prometheus.CounterVec
	nameClaims        *prometheus.CounterVec
	deliveryFailures  prometheus.Counter
	malformedEvents   prometheus.Counter
	historyReplaySize prometheus.Histogram
}

// NewMetrics registers the engine's collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nova_sessions_active",
			Help: "Current number of live connections.",
		}),
		sessionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nova_sessions_total",
			Help: "Total connections accepted since start.",
		}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nova_messages_total",
			Help: "Messages routed, grouped by kind.",
		}, []string{"kind"}),
		nameClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nova_name_claims_total",
			Help: "Name claim attempts grouped by result.",
		}, []string{"result"}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nova_delivery_failures_total",
			Help: "Pushes to individual connections that failed and were dropped.",
		}),
		malformedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nova_malformed_events_total",
			Help: "Inbound frames dropped because they did not parse.",
		}),
		historyReplaySize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nova_history_replay_messages",
			Help:    "Broadcast log length at replay time.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}

	reg.MustRegister(
		m.activeSessions,
		m.sessionTotal,
		m.messagesTotal,
		m.nameClaims,
		m.deliveryFailures,
		m.malformedEvents,
		m.historyReplaySize,
	)
	return m
}

func (m *Metrics) incSession() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
	m.sessionTotal.Inc()
}

func (m *Metrics) decSession() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) recordMessage(kind string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) recordClaim(result string) {
	if m == nil {
		return
	}
	m.nameClaims.WithLabelValues(result).Inc()
}

func (m *Metrics) recordDeliveryFailure() {
	if m == nil {
		return
	}
	m.deliveryFailures.Inc()
}

func (m *Metrics) recordMalformed() {
	if m == nil {
		return
	}
	m.malformedEvents.Inc()
}

func (m *Metrics) observeReplay(broadcastLen int) {
	if m == nil {
		return
	}
	m.historyReplaySize.Observe(float64(broadcastLen))
}
