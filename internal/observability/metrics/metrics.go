package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for the WhatsApp conversation flow.
type ConversationMetrics struct {
	inboundTotal     *prometheus.CounterVec
	routedTotal      *prometheus.CounterVec
	outboundTotal    *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	generationTime   *prometheus.HistogramVec
	storeDegraded    *prometheus.CounterVec
	webhookTotal     *prometheus.CounterVec
	webhookLatency   *prometheus.HistogramVec
	ledgerResetTotal prometheus.Counter
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whatsapp",
			Subsystem: "conversation",
			Name:      "inbound_total",
			Help:      "Inbound messages by handling outcome",
		}, []string{"outcome"}),
		routedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whatsapp",
			Subsystem: "conversation",
			Name:      "routed_total",
			Help:      "Turns by tenant and routing branch",
		}, []string{"tenant", "route"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whatsapp",
			Subsystem: "conversation",
			Name:      "outbound_total",
			Help:      "Outbound replies by dispatch status",
		}, []string{"tenant", "status"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whatsapp",
			Subsystem: "conversation",
			Name:      "errors_total",
			Help:      "Per-message errors by kind",
		}, []string{"kind"}),
		generationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "whatsapp",
			Subsystem: "conversation",
			Name:      "generation_seconds",
			Help:      "Latency of generative fallback calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "status"}),
		storeDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whatsapp",
			Subsystem: "conversation",
			Name:      "store_degraded_total",
			Help:      "Durable store calls that fell back to memory",
		}, []string{"backend", "op"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whatsapp",
			Subsystem: "webhook",
			Name:      "requests_total",
			Help:      "Webhook deliveries by result",
		}, []string{"status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "whatsapp",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Time to acknowledge webhook deliveries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		ledgerResetTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whatsapp",
			Subsystem: "conversation",
			Name:      "dedupe_resets_total",
			Help:      "Times the dedupe ledger was cleared at capacity",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.inboundTotal, m.routedTotal, m.outboundTotal, m.errorsTotal,
		m.generationTime, m.storeDegraded, m.webhookTotal, m.webhookLatency,
		m.ledgerResetTotal,
	)
	return m
}

func (m *ConversationMetrics) ObserveInbound(outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(outcome).Inc()
}

func (m *ConversationMetrics) ObserveRoute(tenant, route string) {
	if m == nil {
		return
	}
	m.routedTotal.WithLabelValues(tenant, route).Inc()
}

func (m *ConversationMetrics) ObserveOutbound(tenant, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(tenant, status).Inc()
}

func (m *ConversationMetrics) ObserveError(kind string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(kind).Inc()
}

func (m *ConversationMetrics) ObserveGeneration(provider, status string, seconds float64) {
	if m == nil {
		return
	}
	m.generationTime.WithLabelValues(provider, status).Observe(seconds)
}

func (m *ConversationMetrics) ObserveStoreDegraded(backend, op string) {
	if m == nil {
		return
	}
	m.storeDegraded.WithLabelValues(backend, op).Inc()
}

func (m *ConversationMetrics) ObserveWebhook(status string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(status).Inc()
	m.webhookLatency.WithLabelValues(status).Observe(seconds)
}

func (m *ConversationMetrics) ObserveLedgerReset() {
	if m == nil {
		return
	}
	m.ledgerResetTotal.Inc()
}
