package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("booking-test", reg)

	m.ObserveBooking("created")
	m.ObserveBooking("created")
	m.ObserveBooking("slot_unavailable")
	m.ObserveTransition("CONFIRM", "ok")
	m.ObserveReconcile("repaired", 3)
	m.ObserveReconcile("failed", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Bookings.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Bookings.WithLabelValues("slot_unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("CONFIRM", "ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SlotsReconciled.WithLabelValues("repaired")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SlotsReconciled))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBooking("created")
		m.ObserveTransition("CANCEL", "ok")
		m.ObserveReconcile("repaired", 1)
	})
}
