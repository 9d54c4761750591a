// Package metrics holds the prometheus collectors for upstream calls, credential
// renewals and reservation outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cabinbooking"

type Metrics struct {
	registry *prometheus.Registry

	UpstreamAttempts    *prometheus.CounterVec
	UpstreamRetries     *prometheus.CounterVec
	CredentialRenewals  *prometheus.CounterVec
	ReservationOutcomes *prometheus.CounterVec
	SideEffectFailures  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		UpstreamAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_attempts_total",
			Help:      "Upstream booking API attempts by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		UpstreamRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_retries_total",
			Help:      "Upstream retries by reason.",
		}, []string{"endpoint", "reason"}),
		CredentialRenewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_lookups_total",
			Help:      "Credential lookups that left the in-process cache, by source.",
		}, []string{"source"}),
		ReservationOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_outcomes_total",
			Help:      "Reservation attempts by outcome kind.",
		}, []string{"kind"}),
		SideEffectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_side_effect_failures_total",
			Help:      "Post-confirmation side effects that failed.",
		}, []string{"effect"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.UpstreamAttempts,
		m.UpstreamRetries,
		m.CredentialRenewals,
		m.ReservationOutcomes,
		m.SideEffectFailures,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// The helpers below accept a nil receiver so components can run without metrics.

func (m *Metrics) ObserveAttempt(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.UpstreamAttempts.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) ObserveRetry(endpoint, reason string) {
	if m == nil {
		return
	}
	m.UpstreamRetries.WithLabelValues(endpoint, reason).Inc()
}

func (m *Metrics) ObserveCredential(source string) {
	if m == nil {
		return
	}
	m.CredentialRenewals.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveReservation(kind string) {
	if m == nil {
		return
	}
	m.ReservationOutcomes.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveSideEffectFailure(effect string) {
	if m == nil {
		return
	}
	m.SideEffectFailures.WithLabelValues(effect).Inc()
}
