package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveBooking(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveBooking("booked")
	m.ObserveBooking("booked")
	m.ObserveBooking("already_booked")

	if got := testutil.ToFloat64(m.bookingsTotal.WithLabelValues("booked")); got != 2 {
		t.Errorf("booked count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.bookingsTotal.WithLabelValues("already_booked")); got != 1 {
		t.Errorf("already_booked count = %v, want 1", got)
	}
}

func TestNilReceiverSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveBooking("booked")
	m.ObserveHold("held")
	m.ObservePlannerStage("stage1", 0.5)
	m.SessionStarted()
	m.SessionEnded()
}

func TestActiveSessionsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded()

	if got := testutil.ToFloat64(m.activeSessions); got != 1 {
		t.Errorf("active_sessions = %v, want 1", got)
	}
}
