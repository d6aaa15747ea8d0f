package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDecision(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordDecision("entry", "ok", "http", 3*time.Millisecond)
	m.RecordDecision("entry", "ok", "http", time.Millisecond)
	m.RecordDecision("exit", "no_active_session", "bus", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GateDecisions.WithLabelValues("entry", "ok", "http")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GateDecisions.WithLabelValues("exit", "no_active_session", "bus")))
}

func TestOccupancyAndBus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SetOccupancy(3, 8)
	m.RecordBusMessage("parking.slots", "malformed")
	m.RecordPublish(true)
	m.RecordPayment("ok")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.OccupiedSlots))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.SlotCapacity))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BusMessages.WithLabelValues("parking.slots", "malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BusPublishes.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Payments.WithLabelValues("ok")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDecision("entry", "ok", "http", time.Millisecond)
		m.RecordBusMessage("parking.rfid", "ok")
		m.RecordPublish(false)
		m.SetOccupancy(1, 8)
		m.RecordPayment("already_paid")
	})
}

func TestExposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.SetOccupancy(5, 8)

	rec := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "parking_slots_occupied 5"))
}
