package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the scheduling core.
type BookingMetrics struct {
	bookingsTotal   *prometheus.CounterVec
	holdsTotal      *prometheus.CounterVec
	plannerDuration *prometheus.HistogramVec
	activeSessions  prometheus.Gauge
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiosk",
			Subsystem: "booking",
			Name:      "bookings_total",
			Help:      "Total booking insert attempts by outcome",
		}, []string{"outcome"}),
		holdsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiosk",
			Subsystem: "booking",
			Name:      "holds_total",
			Help:      "Total soft-hold attempts by outcome",
		}, []string{"outcome"}),
		plannerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kiosk",
			Subsystem: "planner",
			Name:      "stage_duration_seconds",
			Help:      "Duration of planner stages",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kiosk",
			Subsystem: "session",
			Name:      "active_sessions",
			Help:      "Number of live kiosk sessions",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.holdsTotal, m.plannerDuration, m.activeSessions)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveHold(outcome string) {
	if m == nil {
		return
	}
	m.holdsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObservePlannerStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.plannerDuration.WithLabelValues(stage).Observe(seconds)
}

func (m *BookingMetrics) SessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *BookingMetrics) SessionEnded() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
