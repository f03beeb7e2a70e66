package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/exam-calendar-api/internal/service"
)

func TestMetricsHandlerPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordTokenStored()
	h := NewMetricsHandler(metrics, nil)

	c, w := newRequestContext(http.MethodGet, "/metrics", nil)
	h.Prometheus(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ical_tokens_stored_total 1")

	c, w = newRequestContext(http.MethodGet, "/metrics", nil)
	NewMetricsHandler(nil, nil).Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsHandlerReadiness(t *testing.T) {
	healthy := NewMetricsHandler(nil, map[string]ReadinessCheck{
		"exams": func(ctx context.Context) error { return nil },
	})
	c, w := newRequestContext(http.MethodGet, "/ready", nil)
	healthy.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready"}`, w.Body.String())

	failing := NewMetricsHandler(nil, map[string]ReadinessCheck{
		"exams": func(ctx context.Context) error { return nil },
		"redis": func(ctx context.Context) error { return errors.New("connection refused") },
	})
	c, w = newRequestContext(http.MethodGet, "/ready", nil)
	failing.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unavailable","checks":{"redis":"connection refused"}}`, w.Body.String())

	c, w = newRequestContext(http.MethodGet, "/health", nil)
	healthy.Health(c)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
