package metrics

import "github.com/prometheus/client_golang/prometheus"

// IngestMetrics exposes counters/histograms for webhook ingestion.
type IngestMetrics struct {
	eventsTotal    *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
	firstReply     prometheus.Histogram
}

func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	m := &IngestMetrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boltcall",
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Total lead events received, by source and outcome",
		}, []string{"source", "outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "boltcall",
			Subsystem: "ingest",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of lead webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		firstReply: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "boltcall",
			Subsystem: "ingest",
			Name:      "time_to_first_dispatch_seconds",
			Help:      "Time from event receipt to the first outbound dispatch",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 10, 30, 60, 120},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.eventsTotal, m.webhookLatency, m.firstReply)
	return m
}

func (m *IngestMetrics) ObserveEvent(source, outcome string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(source, outcome).Inc()
}

func (m *IngestMetrics) ObserveWebhookLatency(source string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(source).Observe(seconds)
}

func (m *IngestMetrics) ObserveTimeToFirstDispatch(seconds float64) {
	if m == nil {
		return
	}
	m.firstReply.Observe(seconds)
}

// DispatchMetrics tracks outbound channel delivery.
type DispatchMetrics struct {
	messagesTotal *prometheus.CounterVec
	attemptsTotal *prometheus.CounterVec
}

func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	m := &DispatchMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boltcall",
			Subsystem: "dispatch",
			Name:      "messages_total",
			Help:      "Total outbound messages, by channel and terminal status",
		}, []string{"channel", "status"}),
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boltcall",
			Subsystem: "dispatch",
			Name:      "attempts_total",
			Help:      "Total delivery attempts, by channel and result",
		}, []string{"channel", "result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.attemptsTotal)
	return m
}

func (m *DispatchMetrics) ObserveMessage(channel, status string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(channel, status).Inc()
}

func (m *DispatchMetrics) ObserveAttempt(channel, result string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(channel, result).Inc()
}

// ConversationMetrics tracks state machine activity.
type ConversationMetrics struct {
	transitionsTotal *prometheus.CounterVec
	fallbackTotal    prometheus.Counter
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boltcall",
			Subsystem: "conversation",
			Name:      "transitions_total",
			Help:      "Conversation state transitions applied",
		}, []string{"from", "to"}),
		fallbackTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "boltcall",
			Subsystem: "conversation",
			Name:      "fallback_replies_total",
			Help:      "Replies served from the deterministic fallback template",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.fallbackTotal)
	return m
}

func (m *ConversationMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *ConversationMetrics) ObserveFallback() {
	if m == nil {
		return
	}
	m.fallbackTotal.Inc()
}
