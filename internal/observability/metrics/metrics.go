package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking widget.
type BookingMetrics struct {
	negotiationsTotal *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	calendarTotal     *prometheus.CounterVec
	calendarLatency   *prometheus.HistogramVec
	activeSessions    prometheus.Gauge
	rateLimited       prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		negotiationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "widget",
			Subsystem: "booking",
			Name:      "negotiations_total",
			Help:      "Booking negotiations by final status",
		}, []string{"status"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "widget",
			Subsystem: "booking",
			Name:      "state_transitions_total",
			Help:      "Negotiator state transitions",
		}, []string{"from", "to"}),
		calendarTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "widget",
			Subsystem: "calendar",
			Name:      "requests_total",
			Help:      "Calls to the remote calendar API",
		}, []string{"operation", "outcome"}),
		calendarLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "widget",
			Subsystem: "calendar",
			Name:      "request_latency_seconds",
			Help:      "Latency of remote calendar API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "widget",
			Subsystem: "chat",
			Name:      "active_sessions",
			Help:      "Open widget sessions",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "widget",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.negotiationsTotal, m.transitionsTotal, m.calendarTotal, m.calendarLatency, m.activeSessions, m.rateLimited)
	return m
}

func (m *BookingMetrics) ObserveNegotiation(status string) {
	if m == nil {
		return
	}
	m.negotiationsTotal.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *BookingMetrics) ObserveCalendarCall(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.calendarTotal.WithLabelValues(operation, outcome).Inc()
	m.calendarLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *BookingMetrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *BookingMetrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *BookingMetrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
