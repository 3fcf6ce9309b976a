package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *MetricsService) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Code, rec.Body.String()
}

func TestMetricsServiceExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/courses", http.StatusOK, 20*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordTransition("course", "publish")
	m.RecordDelivery("email", true, 3)
	m.RecordDelivery("email", false, 0)
	m.RecordDeadLetter()
	m.RecordDispatched(2)

	code, body := scrape(t, m)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `http_requests_total{method="GET",path="/api/v1/courses",status="200"} 1`)
	assert.Contains(t, body, `list_cache_lookups_total{result="hit"} 1`)
	assert.Contains(t, body, `list_cache_lookups_total{result="miss"} 1`)
	assert.Contains(t, body, `lifecycle_transitions_total{action="publish",kind="course"} 1`)
	assert.Contains(t, body, `broadcast_messages_total{channel="email",result="sent"} 3`)
	assert.NotContains(t, body, `result="failed"`)
	assert.Contains(t, body, "broadcast_delivery_dead_letters_total 1")
	assert.Contains(t, body, "broadcast_scheduled_dispatched_total 2")
	assert.Contains(t, body, "goroutines_total")
}

func TestMetricsServiceNilIsSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	m.RecordTransition("course", "publish")
	m.RecordDeadLetter()
	assert.Nil(t, m.Registry())

	code, _ := scrape(t, m)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
