package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetSessions(3)
		m.SessionCreated()
		m.SessionReaped()
		m.RecordExecution(ModeCapture, OutcomeSucceeded, time.Second)
		m.RecordCancel()
	})
}

func TestRecordExecution(t *testing.T) {
	m := New()
	m.RecordExecution(ModeCapture, OutcomeSucceeded, 20*time.Millisecond)
	m.RecordExecution(ModeCapture, OutcomeTimeout, time.Minute)
	m.RecordExecution(ModeSend, OutcomeSucceeded, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExecutionsTotal.WithLabelValues(ModeCapture, OutcomeSucceeded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExecutionsTotal.WithLabelValues(ModeSend, OutcomeSucceeded)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.ExecutionDuration))
}

func TestHandlerServesCollectors(t *testing.T) {
	m := New()
	m.SetSessions(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "termtools_sessions_active 2")
}
