package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue reads the current value of a CounterVec for the given labels.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := cv.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

func histogramCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, h.Write(m))
	return m.GetHistogram().GetSampleCount()
}

func TestNewMetrics_NilRegistry(t *testing.T) {
	assert.Nil(t, NewMetrics(nil))
}

func TestNilMetrics_NoPanic(t *testing.T) {
	var m *Metrics
	m.ObserveExecution(OutcomeSuccess, time.Second)
	m.Reject(ReasonBusy)
	m.Started()()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestObserveExecution(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveExecution(OutcomeSuccess, 100*time.Millisecond)
	m.ObserveExecution(OutcomeSuccess, 200*time.Millisecond)
	m.ObserveExecution(OutcomeKilled, 120*time.Second)

	assert.Equal(t, 2.0, counterValue(t, m.Executions, OutcomeSuccess))
	assert.Equal(t, 1.0, counterValue(t, m.Executions, OutcomeKilled))
	assert.Equal(t, 0.0, counterValue(t, m.Executions, OutcomeFailure))
	assert.Equal(t, uint64(3), histogramCount(t, m.Duration))
}

func TestReject(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.Reject(ReasonRateLimited)
	m.Reject(ReasonRateLimited)
	m.Reject(ReasonTooLarge)

	assert.Equal(t, 2.0, counterValue(t, m.Rejections, ReasonRateLimited))
	assert.Equal(t, 1.0, counterValue(t, m.Rejections, ReasonTooLarge))
}

func TestStarted_TracksInFlight(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	done1 := m.Started()
	done2 := m.Started()
	assert.Equal(t, 2.0, gaugeValue(t, m.InFlight))

	done1()
	assert.Equal(t, 1.0, gaugeValue(t, m.InFlight))
	done2()
	assert.Equal(t, 0.0, gaugeValue(t, m.InFlight))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveExecution(OutcomeFailure, time.Second)
	m.Reject(ReasonBusy)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	for _, name := range []string{
		`magma_calc_executions_total{outcome="failure"} 1`,
		`magma_calc_rejections_total{reason="busy"} 1`,
		"magma_calc_execution_duration_seconds_bucket",
		"magma_calc_executions_in_flight 0",
		"go_goroutines",
	} {
		assert.True(t, strings.Contains(text, name), "missing %q", name)
	}
}
