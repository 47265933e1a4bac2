// Package metrics provides Prometheus instrumentation for the gatekeepd
// server.
//
// All metrics are registered in a custom [prometheus.Registry] (not the
// global default) so that only gatekeep metrics appear on the /metrics
// endpoint. Metrics implements [gatekeep.Hook], so a registry wired with
// it reports every evaluation, load, and rollback.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gatekeep/gatekeep"
	"github.com/gatekeep/gatekeep/shadow"
)

// Metrics holds all Prometheus collectors used by the gatekeepd server.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	EvaluationsTotal   *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	SnapshotLoadsTotal *prometheus.CounterVec
	RollbacksTotal     *prometheus.CounterVec
	FlagCount          *prometheus.GaugeVec
	ShadowMismatches   prometheus.Counter
	AuthFailuresTotal  prometheus.Counter
}

// New creates and registers all gatekeep metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeep_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatekeep_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeep_flag_evaluations_total",
			Help: "Total number of flag evaluations.",
		}, []string{"namespace", "decision"}),

		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekeep_flag_evaluation_duration_seconds",
			Help:    "Flag evaluation latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(1e-7, 4, 10),
		}),

		SnapshotLoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeep_snapshot_loads_total",
			Help: "Total number of configuration snapshot loads.",
		}, []string{"namespace"}),

		RollbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeep_rollbacks_total",
			Help: "Total number of configuration rollback attempts.",
		}, []string{"namespace", "success"}),

		FlagCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gatekeep_active_flags",
			Help: "Number of flags in the active snapshot.",
		}, []string{"namespace"}),

		ShadowMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeep_shadow_mismatches_total",
			Help: "Total number of shadow evaluation mismatches.",
		}),

		AuthFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeep_auth_failures_total",
			Help: "Total number of failed authentication attempts.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EvaluationsTotal,
		m.EvaluationDuration,
		m.SnapshotLoadsTotal,
		m.RollbacksTotal,
		m.FlagCount,
		m.ShadowMismatches,
		m.AuthFailuresTotal,
	)

	return m
}

// Handler returns an [http.Handler] that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Evaluation implements [gatekeep.Hook].
func (m *Metrics) Evaluation(e gatekeep.EvaluationEvent) {
	m.EvaluationsTotal.WithLabelValues(e.Namespace, string(e.Kind)).Inc()
	m.EvaluationDuration.Observe(e.Duration.Seconds())
}

// ConfigLoad implements [gatekeep.Hook].
func (m *Metrics) ConfigLoad(e gatekeep.ConfigLoadEvent) {
	m.SnapshotLoadsTotal.WithLabelValues(e.Namespace).Inc()
	m.FlagCount.WithLabelValues(e.Namespace).Set(float64(e.FeatureCount))
}

// ConfigRollback implements [gatekeep.Hook].
func (m *Metrics) ConfigRollback(e gatekeep.ConfigRollbackEvent) {
	m.RollbacksTotal.WithLabelValues(e.Namespace, strconv.FormatBool(e.Success)).Inc()
}

// ShadowMismatch counts one shadow comparison divergence. Pass it to
// [shadow.WithMismatchHandler] when building a comparator.
func (m *Metrics) ShadowMismatch(shadow.Mismatch) {
	m.ShadowMismatches.Inc()
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, route, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route, code).Observe(duration.Seconds())
}
