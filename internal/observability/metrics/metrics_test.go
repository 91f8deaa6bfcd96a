package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveNegotiation("booked")
	m.ObserveTransition("collecting_purpose", "awaiting_confirmation")
	m.ObserveCalendarCall("book", "ok", 0.2)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.ObserveRateLimited()

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[f.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[f.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, values["widget_booking_negotiations_total"])
	assert.Equal(t, 1.0, values["widget_booking_state_transitions_total"])
	assert.Equal(t, 1.0, values["widget_calendar_requests_total"])
	assert.Equal(t, 1.0, values["widget_chat_active_sessions"])
	assert.Equal(t, 1.0, values["widget_http_rate_limited_total"])
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveNegotiation("booked")
	m.ObserveTransition("a", "b")
	m.ObserveCalendarCall("availability", "error", 0.1)
	m.SessionOpened()
	m.SessionClosed()
	m.ObserveRateLimited()
}
