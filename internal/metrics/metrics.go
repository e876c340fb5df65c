// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	Bookings        *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	SlotsReconciled *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(service string, reg prometheus.Registerer) *Metrics {
	constLabels := prometheus.Labels{"service": service}

	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "HTTP requests by route and status code.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "appointment_bookings_total",
			Help:        "Booking attempts by outcome.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "appointment_transitions_total",
			Help:        "Appointment status transitions by action and outcome.",
			ConstLabels: constLabels,
		}, []string{"action", "result"}),
		SlotsReconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "slot_reconcile_total",
			Help:        "Appointments inspected by the reconcile worker by outcome.",
			ConstLabels: constLabels,
		}, []string{"result"}),
	}

	reg.MustRegister(m.HTTPRequests, m.HTTPDuration, m.Bookings, m.Transitions, m.SlotsReconciled)
	return m
}

// The helpers below accept a nil receiver so callers can run without metrics.

func (m *Metrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.Bookings.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveTransition(action, result string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) ObserveReconcile(result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.SlotsReconciled.WithLabelValues(result).Add(float64(n))
}
