package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Pipeline metrics
	DecisionsTotal *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	StageFailures  *prometheus.CounterVec

	// Lockout metrics
	FailedAttemptsTotal prometheus.Counter
	LockoutsTotal       prometheus.Counter

	// Permission cache metrics
	CacheLookupsTotal *prometheus.CounterVec

	// Audit metrics
	AuditEventsDropped prometheus.Counter

	// Reaper metrics
	SessionsReapedTotal prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all metrics on registry. A nil registry
// gets a fresh one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_decisions_total",
				Help: "Pipeline outcomes by route and result",
			},
			[]string{"route", "outcome"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_stage_duration_seconds",
				Help:    "Time spent in each pipeline stage",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
			},
			[]string{"stage"},
		),
		StageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_stage_failures_total",
				Help: "Requests rejected by each pipeline stage",
			},
			[]string{"stage", "kind"},
		),
		FailedAttemptsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatekeeper_failed_attempts_total",
				Help: "Authentication failures recorded against lockout identities",
			},
		),
		LockoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatekeeper_lockouts_total",
				Help: "Lockouts written",
			},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_permission_cache_lookups_total",
				Help: "Permission decision cache lookups by result",
			},
			[]string{"result"},
		),
		AuditEventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatekeeper_audit_events_dropped_total",
				Help: "Security events dropped because the audit buffer was full",
			},
		),
		SessionsReapedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatekeeper_sessions_reaped_total",
				Help: "Stale session ids removed from active-session sets",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.DecisionsTotal,
		m.StageDuration,
		m.StageFailures,
		m.FailedAttemptsTotal,
		m.LockoutsTotal,
		m.CacheLookupsTotal,
		m.AuditEventsDropped,
		m.SessionsReapedTotal,
	)

	return m
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStage records how long a stage took
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordStageFailure counts a rejection by stage and error kind
func (m *Metrics) RecordStageFailure(stage, kind string) {
	if m == nil {
		return
	}
	m.StageFailures.WithLabelValues(stage, kind).Inc()
}

// RecordDecision counts a pipeline outcome
func (m *Metrics) RecordDecision(route, outcome string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unnamed"
	}
	m.DecisionsTotal.WithLabelValues(route, outcome).Inc()
}

// RecordFailedAttempt counts an authentication failure, and a lockout if one was written
func (m *Metrics) RecordFailedAttempt(locked bool) {
	if m == nil {
		return
	}
	m.FailedAttemptsTotal.Inc()
	if locked {
		m.LockoutsTotal.Inc()
	}
}

// RecordCacheLookup counts a permission cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordAuditDrop counts a dropped security event
func (m *Metrics) RecordAuditDrop() {
	if m == nil {
		return
	}
	m.AuditEventsDropped.Inc()
}

// RecordReaped counts stale session ids removed by the reaper
func (m *Metrics) RecordReaped(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsReapedTotal.Add(float64(n))
}
