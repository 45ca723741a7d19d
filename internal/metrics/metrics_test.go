package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New("")

	m.ObserveRequest("markets", "ok", 20*time.Millisecond)
	m.ObserveRequest("markets", "429", 5*time.Millisecond)
	m.RecordAttempt("error")
	m.RecordAttempt("ok")
	m.RecordStale()
	m.RecordCycle("fallback", time.Second, true, 100)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("markets", "429")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchAttempts.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StaleResults))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UsingMockData))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.SeriesPoints))

	m.RecordCycle("success", time.Second, false, 42)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.UsingMockData))
	assert.Greater(t, testutil.ToFloat64(m.LastLiveUpdate), 0.0)
}

func TestMetrics_Handler(t *testing.T) {
	m := New("test")
	m.RecordAttempt("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `test_dashboard_fetch_attempts_total{result="ok"} 1`))
}
