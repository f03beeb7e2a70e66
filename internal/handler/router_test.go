package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-calendar-api/internal/models"
	"github.com/noah-isme/exam-calendar-api/internal/service"
	appErrors "github.com/noah-isme/exam-calendar-api/pkg/errors"
)

type staticValidator struct{}

func (staticValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "valid" {
		return nil, appErrors.ErrUnauthorized
	}
	return &models.JWTClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}, nil
}

func newTestRouter(exports *ExportHandler, limiter gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, RouterConfig{Auth: staticValidator{}, FeedLimiter: limiter}, Handlers{
		Exams:     NewExamHandler(&examResolverStub{result: service.ExamQueryResult{Exams: sampleExams()}}, nil),
		Filters:   NewFilterHandler(&facetResolverStub{values: service.FacetValuesResult{Values: []string{"ETSINF"}}}),
		ICal:      NewICalHandler(&feedRendererStub{feed: finalsFeed()}, time.Hour, nil),
		Calendars: NewCalendarHandler(&savedCalendarsStub{}),
		Exports:   exports,
		Metrics:   NewMetricsHandler(service.NewMetricsService(), nil),
	})
	return r
}

func TestRouterMountsPublicRoutes(t *testing.T) {
	r := newTestRouter(nil, nil)

	for _, tc := range []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/exams?school=ETSINF", http.StatusOK},
		{http.MethodGet, "/api/filters/schools", http.StatusOK},
		{http.MethodGet, "/api/filters/options?changed=school", http.StatusOK},
		{http.MethodGet, "/api/ical?school=ETSINF", http.StatusOK},
		{http.MethodHead, "/api/ical?school=ETSINF", http.StatusOK},
		{http.MethodGet, "/api/ical/tok123", http.StatusOK},
		{http.MethodHead, "/api/ical/tok123", http.StatusOK},
		{http.MethodDelete, "/api/ical/tok123", http.StatusNoContent},
		{http.MethodGet, "/api/calendars", http.StatusUnauthorized},
		{http.MethodPost, "/api/exports/caldav", http.StatusNotFound},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, tc.status, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestRouterSecuredRoutes(t *testing.T) {
	stub := &exportJobsStub{job: &models.ExportJob{ID: "job-1"}}
	r := newTestRouter(NewExportHandler(stub), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/calendars", nil)
	req.Header.Set("Authorization", "Bearer valid")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/exports/job-1", nil)
	req.Header.Set("Authorization", "Bearer valid")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", stub.owner)
	assert.Equal(t, "job-1", stub.id)
}

func TestRouterLimitsOnlyFeeds(t *testing.T) {
	limited := func(c *gin.Context) {
		c.AbortWithStatus(http.StatusTooManyRequests)
	}
	r := newTestRouter(nil, limited)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ical/tok123", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/filters/schools", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
