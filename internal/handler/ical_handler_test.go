package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-calendar-api/internal/dto"
	"github.com/noah-isme/exam-calendar-api/internal/models"
	"github.com/noah-isme/exam-calendar-api/internal/service"
	appErrors "github.com/noah-isme/exam-calendar-api/pkg/errors"
)

const placeholderBody = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR\r\n"

type feedRendererStub struct {
	feed      *service.ICalFeed
	err       error
	lastQuery url.Values
	lastToken string
	stored    dto.StoreTokenRequest
	links     dto.ICalLinksRequest
	revoked   string
}

func (s *feedRendererStub) FeedFromQuery(ctx context.Context, q url.Values) (*service.ICalFeed, error) {
	s.lastQuery = q
	return s.feed, s.err
}

func (s *feedRendererStub) FeedFromToken(ctx context.Context, token string) (*service.ICalFeed, error) {
	s.lastToken = token
	return s.feed, s.err
}

func (s *feedRendererStub) PlaceholderFromQuery(q url.Values) *service.ICalFeed {
	return &service.ICalFeed{Body: []byte(placeholderBody), Name: "Exams", FileName: "Exams.ics"}
}

func (s *feedRendererStub) PlaceholderFromToken(ctx context.Context, token string) (*service.ICalFeed, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &service.ICalFeed{Body: []byte(placeholderBody), Name: "Finals", FileName: "Finals.ics"}, nil
}

func (s *feedRendererStub) StoreToken(ctx context.Context, req dto.StoreTokenRequest) (*models.ExportToken, error) {
	s.stored = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.ExportToken{Token: req.Token, QueryString: req.QueryString}, nil
}

func (s *feedRendererStub) Links(ctx context.Context, req dto.ICalLinksRequest) (*dto.ICalLinksResponse, error) {
	s.links = req
	if s.err != nil {
		return nil, s.err
	}
	return &dto.ICalLinksResponse{Token: "AAECAwQFBgcI", CalendarName: req.Name}, nil
}

func (s *feedRendererStub) RevokeToken(ctx context.Context, token string) error {
	s.revoked = token
	return s.err
}

func finalsFeed() *service.ICalFeed {
	return &service.ICalFeed{Body: []byte("BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"), Name: "Finals", FileName: "Finals.ics", Events: 1}
}

func TestICalHandlerFeedByToken(t *testing.T) {
	stub := &feedRendererStub{feed: finalsFeed()}
	h := NewICalHandler(stub, time.Hour, nil)

	c, w := newRequestContext(http.MethodGet, "/api/ical/tok123", nil)
	c.Params = []gin.Param{{Key: "token", Value: "tok123"}}
	h.FeedByToken(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tok123", stub.lastToken)
	assert.Equal(t, "text/calendar; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=3600", w.Header().Get("Cache-Control"))
	assert.Equal(t, `inline; filename="Finals.ics"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, string(finalsFeed().Body), w.Body.String())
}

func TestICalHandlerTokenErrorsArePlainText(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
	}{
		"unknown":     {err: appErrors.ErrTokenNotFound, status: http.StatusNotFound},
		"malformed":   {err: appErrors.ErrTokenInvalid, status: http.StatusUnauthorized},
		"unavailable": {err: appErrors.ErrUnavailable, status: http.StatusServiceUnavailable},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := NewICalHandler(&feedRendererStub{err: tc.err}, 0, nil)

			c, w := newRequestContext(http.MethodGet, "/api/ical/x", nil)
			h.FeedByToken(c)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Equal(t, appErrors.FromError(tc.err).Message, w.Body.String())

			c, w = newRequestContext(http.MethodHead, "/api/ical/x", nil)
			h.HeadByToken(c)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestICalHandlerFeedByQueryDownload(t *testing.T) {
	stub := &feedRendererStub{feed: finalsFeed()}
	h := NewICalHandler(stub, 30*time.Minute, nil)

	c, w := newRequestContext(http.MethodGet, "/api/ical?name=Finals&school=ETSINF&download=1", nil)
	h.FeedByQuery(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="Finals.ics"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "public, max-age=1800", w.Header().Get("Cache-Control"))
	assert.Equal(t, "ETSINF", stub.lastQuery.Get("school"))
}

func TestICalHandlerNonASCIIFileName(t *testing.T) {
	feed := finalsFeed()
	feed.FileName = "Exámenes-ETSINF.ics"
	h := NewICalHandler(&feedRendererStub{feed: feed}, time.Hour, nil)

	c, w := newRequestContext(http.MethodGet, "/api/ical?name=Ex%C3%A1menes+ETSINF", nil)
	h.FeedByQuery(c)

	require.Equal(t, http.StatusOK, w.Code)
	header := w.Header().Get("Content-Disposition")
	assert.Equal(t, `inline; filename="Examenes-ETSINF.ics"; filename*=UTF-8''Ex%C3%A1menes-ETSINF.ics`, header)
	for i := 0; i < len(header); i++ {
		assert.Less(t, header[i], byte(0x80))
	}
}

func TestICalHandlerRevokeByToken(t *testing.T) {
	stub := &feedRendererStub{}
	h := NewICalHandler(stub, time.Hour, nil)

	c, w := newRequestContext(http.MethodDelete, "/api/ical/tok123", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok123"}}
	h.RevokeByToken(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "tok123", stub.revoked)

	stub.err = appErrors.ErrTokenInvalid
	c, w = newRequestContext(http.MethodDelete, "/api/ical/x", nil)
	c.Params = gin.Params{{Key: "token", Value: "x"}}
	h.RevokeByToken(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestICalHandlerHead(t *testing.T) {
	h := NewICalHandler(&feedRendererStub{}, time.Hour, nil)

	c, w := newRequestContext(http.MethodHead, "/api/ical/tok123", nil)
	h.HeadByToken(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, strconv.Itoa(len(placeholderBody)), w.Header().Get("Content-Length"))
	assert.Equal(t, `inline; filename="Finals.ics"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/calendar; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Empty(t, w.Body.String())

	c, w = newRequestContext(http.MethodHead, "/api/ical?school=ETSINF", nil)
	h.HeadByQuery(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `inline; filename="Exams.ics"`, w.Header().Get("Content-Disposition"))
	assert.Empty(t, w.Body.String())
}

func TestICalHandlerStoreToken(t *testing.T) {
	stub := &feedRendererStub{}
	h := NewICalHandler(stub, time.Hour, nil)

	c, w := newRequestContext(http.MethodPost, "/api/ical/store-token", []byte(`{"token":"abcdef","queryString":"school=ETSINF"}`))
	h.StoreToken(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "school=ETSINF", stub.stored.QueryString)

	var stored models.ExportToken
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &stored))
	assert.Equal(t, "abcdef", stored.Token)

	c, w = newRequestContext(http.MethodPost, "/api/ical/store-token", []byte(`{"token":`))
	h.StoreToken(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	stub.err = appErrors.Clone(appErrors.ErrInternal, "could not store calendar link")
	c, w = newRequestContext(http.MethodPost, "/api/ical/store-token", []byte(`{"token":"abcdef"}`))
	h.StoreToken(c)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestICalHandlerLinks(t *testing.T) {
	stub := &feedRendererStub{}
	h := NewICalHandler(stub, time.Hour, nil)

	payload := mustJSON(t, map[string]interface{}{
		"name":      "Finals",
		"filters":   map[string]interface{}{"school": "ETSINF", "year": []int{1}},
		"reminders": []string{"-PT1H"},
	})
	c, w := newRequestContext(http.MethodPost, "/api/ical/links", payload)
	h.Links(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"ETSINF"}, stub.links.Filters.Values(models.FacetSchool))
	assert.Equal(t, []string{"1"}, stub.links.Filters.Values(models.FacetYear))

	var links dto.ICalLinksResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &links))
	assert.Equal(t, "Finals", links.CalendarName)

	c, w = newRequestContext(http.MethodPost, "/api/ical/links", []byte(`{"filters":{"colour":"red"}}`))
	h.Links(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
