package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "jarvis"

func register(reg prometheus.Registerer, cs ...prometheus.Collector) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(cs...)
}

// MessagingMetrics exposes counters/histograms for the webhook transport.
type MessagingMetrics struct {
	inboundTotal   *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewMessagingMetrics(reg prometheus.Registerer) *MessagingMetrics {
	m := &MessagingMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "inbound_total",
			Help:      "Total inbound messages by source and outcome",
		}, []string{"source", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of inbound message processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
	}
	register(reg, m.inboundTotal, m.webhookLatency)
	return m
}

func (m *MessagingMetrics) ObserveInbound(source, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(source, status).Inc()
}

func (m *MessagingMetrics) ObserveWebhookLatency(source string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(source).Observe(seconds)
}

// ConversationMetrics tracks classifications, state transitions and calendar calls.
type ConversationMetrics struct {
	intents       *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	calendarCalls *prometheus.CounterVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "intent_total",
			Help:      "Classified inbound messages by intent and classifier source",
		}, []string{"intent", "source"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "transition_total",
			Help:      "Conversation state transitions",
		}, []string{"from", "to"}),
		calendarCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calendar",
			Name:      "calls_total",
			Help:      "Calendar collaborator calls by operation and status",
		}, []string{"operation", "status"}),
	}
	register(reg, m.intents, m.transitions, m.calendarCalls)
	return m
}

func (m *ConversationMetrics) ObserveIntent(intent, source string) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(intent, source).Inc()
}

func (m *ConversationMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *ConversationMetrics) ObserveCalendarCall(operation, status string) {
	if m == nil {
		return
	}
	m.calendarCalls.WithLabelValues(operation, status).Inc()
}

// AIMetrics tracks fallback chain attempts per backend.
type AIMetrics struct {
	attempts *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewAIMetrics(reg prometheus.Registerer) *AIMetrics {
	m := &AIMetrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "attempts_total",
			Help:      "Inference attempts by backend and outcome",
		}, []string{"backend", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "attempt_latency_seconds",
			Help:      "Latency of inference attempts",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"backend"}),
	}
	register(reg, m.attempts, m.latency)
	return m
}

func (m *AIMetrics) ObserveAttempt(backend, status string, seconds float64) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(backend, status).Inc()
	m.latency.WithLabelValues(backend).Observe(seconds)
}

// MonitorMetrics exposes the monitoring loop cadence.
type MonitorMetrics struct {
	activeMode          prometheus.Gauge
	activeConversations prometheus.Gauge
	snapshotErrors      prometheus.Counter
}

func NewMonitorMetrics(reg prometheus.Registerer) *MonitorMetrics {
	m := &MonitorMetrics{
		activeMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "active_mode",
			Help:      "1 while the monitor polls at the active cadence",
		}),
		activeConversations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "active_conversations",
			Help:      "Conversations awaiting a near-term reply at the last snapshot",
		}),
		snapshotErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "snapshot_errors_total",
			Help:      "Failed conversation snapshots",
		}),
	}
	register(reg, m.activeMode, m.activeConversations, m.snapshotErrors)
	return m
}

func (m *MonitorMetrics) ObserveSnapshot(active int, activeMode bool) {
	if m == nil {
		return
	}
	m.activeConversations.Set(float64(active))
	if activeMode {
		m.activeMode.Set(1)
	} else {
		m.activeMode.Set(0)
	}
}

func (m *MonitorMetrics) ObserveSnapshotError() {
	if m == nil {
		return
	}
	m.snapshotErrors.Inc()
}
