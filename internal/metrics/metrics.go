// Package metrics exposes Prometheus counters for the payment workflow.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delivery outcomes.
const (
	OutcomeDelivered     = "delivered"
	OutcomeNotPaid       = "not_paid"
	OutcomeMissing       = "missing_document"
	OutcomeAnalysisError = "analysis_error"
	OutcomeProviderError = "provider_error"
)

// Metrics groups the collectors registered for one process.
type Metrics struct {
	registry         *prometheus.Registry
	PaymentsCreated  prometheus.Counter
	PaymentsFailed   *prometheus.CounterVec
	StatusLookups    *prometheus.CounterVec
	Deliveries       *prometheus.CounterVec
	WebhooksReceived prometheus.Counter
	Previews         *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		PaymentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auditoria",
			Name:      "payments_created_total",
			Help:      "Checkouts successfully registered at the payment provider.",
		}),
		PaymentsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auditoria",
			Name:      "payments_failed_total",
			Help:      "Checkout creations that failed, by reason.",
		}, []string{"reason"}),
		StatusLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auditoria",
			Name:      "status_lookups_total",
			Help:      "Payment status lookups by provider status code.",
		}, []string{"status"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auditoria",
			Name:      "deliveries_total",
			Help:      "Verify-and-deliver attempts by outcome.",
		}, []string{"outcome"}),
		WebhooksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auditoria",
			Name:      "webhooks_received_total",
			Help:      "Confirmation callbacks received from the payment provider.",
		}),
		Previews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auditoria",
			Name:      "previews_total",
			Help:      "Free preview analyses by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.PaymentsCreated,
		m.PaymentsFailed,
		m.StatusLookups,
		m.Deliveries,
		m.WebhooksReceived,
		m.Previews,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveStatus counts one status lookup.
func (m *Metrics) ObserveStatus(code int) {
	m.StatusLookups.WithLabelValues(strconv.Itoa(code)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
