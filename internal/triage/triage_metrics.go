package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	TriagesTotal      *prometheus.CounterVec
	TriageDuration    *prometheus.HistogramVec
	FallbacksTotal    *prometheus.CounterVec
	LLMCallsTotal     *prometheus.CounterVec
	LLMDuration       prometheus.Histogram
	SeverityScore     prometheus.Histogram
	EscalationsTotal  prometheus.Counter
	SessionsActive    prometheus.Gauge
	TransitionsTotal  *prometheus.CounterVec
	BusPublishedTotal *prometheus.CounterVec
	BusDroppedTotal   *prometheus.CounterVec
	StoreWritesTotal  *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TriagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rapid_triages_total",
			Help: "Total triage runs by backend and resulting kind.",
		}, []string{"backend", "kind"}),
		TriageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rapid_triage_duration_seconds",
			Help:    "Duration of triage runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms .. ~8s
		}, []string{"backend"}),
		FallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rapid_triage_fallbacks_total",
			Help: "Backend fallbacks by reason (llm_error, degraded).",
		}, []string{"reason"}),
		LLMCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rapid_llm_calls_total",
			Help: "Total model calls by result.",
		}, []string{"result"}),
		LLMDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rapid_llm_call_duration_seconds",
			Help:    "Duration of individual model calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}),
		SeverityScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rapid_severity_score",
			Help:    "Distribution of computed severity scores.",
			Buckets: prometheus.LinearBuckets(0, 10, 11), // 0 .. 100
		}),
		EscalationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rapid_escalations_total",
			Help: "Conversations escalated to critical by follow-up answers.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rapid_sessions_active",
			Help: "Conversation sessions currently tracked.",
		}),
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rapid_session_transitions_total",
			Help: "Session state transitions by target state.",
		}, []string{"to"}),
		BusPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rapid_bus_published_total",
			Help: "Events published to the broadcast bus by topic.",
		}, []string{"topic"}),
		BusDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rapid_bus_dropped_total",
			Help: "Events dropped because a subscriber buffer was full.",
		}, []string{"topic"}),
		StoreWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rapid_store_writes_total",
			Help: "Persistence writes by operation and result.",
		}, []string{"op", "result"}),
	}

	reg.MustRegister(
		m.TriagesTotal,
		m.TriageDuration,
		m.FallbacksTotal,
		m.LLMCallsTotal,
		m.LLMDuration,
		m.SeverityScore,
		m.EscalationsTotal,
		m.SessionsActive,
		m.TransitionsTotal,
		m.BusPublishedTotal,
		m.BusDroppedTotal,
		m.StoreWritesTotal,
	)

	return m
}
