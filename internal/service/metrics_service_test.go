package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceRecordsFeedsAndExports(t *testing.T) {
	m := NewMetricsService()

	m.ObserveFeed(FeedResultOK, 12)
	m.ObserveFeed(FeedResultOK, 3)
	m.ObserveFeed(FeedResultFallback, 0)
	m.RecordTokenStored()
	m.RecordExport("success", 7)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `ical_feeds_total{result="ok"} 2`)
	assert.Contains(t, body, `ical_feeds_total{result="fallback"} 1`)
	assert.Contains(t, body, "ical_tokens_stored_total 1")
	assert.Contains(t, body, `caldav_exports_total{state="success"} 1`)
	assert.Contains(t, body, "caldav_events_written_total 7")
	assert.Contains(t, body, "cache_hit_ratio 0.5")
	assert.Contains(t, body, "ical_feed_events_count 2")
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveFeed(FeedResultOK, 1)
	m.ObserveHTTPRequest(http.MethodGet, "/api/exams", 200, time.Millisecond)
	m.RecordExport("error", 0)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
