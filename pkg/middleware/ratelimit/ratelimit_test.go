package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newRouter(cfg Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(cfg))
	r.GET("/feed", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.OPTIONS("/feed", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func doRequest(r http.Handler, method, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/feed", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitRejectsAfterBurst(t *testing.T) {
	r := newRouter(Config{Enabled: true, RPS: 0.5, Burst: 2})

	require.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "10.0.0.1:1000").Code)
	require.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "10.0.0.1:1001").Code)

	w := doRequest(r, http.MethodGet, "10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "too many requests", w.Body.String())

	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "10.0.0.2:1000").Code)
}

func TestRateLimitSkipsPreflightAndWhitelist(t *testing.T) {
	r := newRouter(Config{Enabled: true, RPS: 0.1, Burst: 1, Whitelist: []string{"192.168.1.10", "172.16.0.0/12", "bogus"}})

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "192.168.1.10:9000").Code)
		assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "172.20.1.1:9000").Code)
		assert.Equal(t, http.StatusNoContent, doRequest(r, http.MethodOptions, "10.1.1.1:9000").Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	r := newRouter(Config{Enabled: false, RPS: 0.1, Burst: 1})
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "10.0.0.1:1000").Code)
	}
}

func TestRateLimitCustomRejection(t *testing.T) {
	r := newRouter(Config{Enabled: true, RPS: 1, Burst: 1, OnLimited: func(c *gin.Context) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "slow down"})
	}})

	doRequest(r, http.MethodGet, "10.0.0.1:1000")
	w := doRequest(r, http.MethodGet, "10.0.0.1:1000")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"slow down"}`, w.Body.String())
}

func TestStoreDropsStaleEntries(t *testing.T) {
	s := newStore(rate.Limit(1), 1, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	s.lastCleanup = now

	first := s.get("ip:a")
	assert.Same(t, first, s.get("ip:a"))
	s.get("ip:b")
	require.Equal(t, 2, s.size())

	now = now.Add(30 * time.Second)
	s.get("ip:b")
	now = now.Add(45 * time.Second)
	s.get("ip:c")

	assert.Equal(t, 2, s.size())
	assert.NotSame(t, first, s.get("ip:a"))
}
