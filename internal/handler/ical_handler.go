package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-calendar-api/internal/dto"
	"github.com/noah-isme/exam-calendar-api/internal/models"
	"github.com/noah-isme/exam-calendar-api/internal/service"
	appErrors "github.com/noah-isme/exam-calendar-api/pkg/errors"
	"github.com/noah-isme/exam-calendar-api/pkg/ical"
	"github.com/noah-isme/exam-calendar-api/pkg/response"
)

const (
	calendarContentType = "text/calendar; charset=utf-8"
	defaultFeedMaxAge   = time.Hour
)

type feedRenderer interface {
	FeedFromQuery(ctx context.Context, q url.Values) (*service.ICalFeed, error)
	FeedFromToken(ctx context.Context, token string) (*service.ICalFeed, error)
	PlaceholderFromQuery(q url.Values) *service.ICalFeed
	PlaceholderFromToken(ctx context.Context, token string) (*service.ICalFeed, error)
	StoreToken(ctx context.Context, req dto.StoreTokenRequest) (*models.ExportToken, error)
	Links(ctx context.Context, req dto.ICalLinksRequest) (*dto.ICalLinksResponse, error)
	RevokeToken(ctx context.Context, token string) error
}

// ICalHandler serves subscribable exam calendars.
type ICalHandler struct {
	feeds        feedRenderer
	cacheControl string
	logger       *zap.Logger
}

// NewICalHandler constructs handler. maxAge drives the Cache-Control header.
func NewICalHandler(feeds feedRenderer, maxAge time.Duration, logger *zap.Logger) *ICalHandler {
	if maxAge <= 0 {
		maxAge = defaultFeedMaxAge
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ICalHandler{
		feeds:        feeds,
		cacheControl: fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())),
		logger:       logger,
	}
}

// FeedByToken godoc
// @Summary Calendar feed for a stored link
// @Tags iCal
// @Produce text/calendar
// @Param token path string true "Link token"
// @Param download query string false "1 to download instead of subscribe"
// @Success 200 {string} string "VCALENDAR document"
// @Failure 401 {string} string
// @Failure 404 {string} string
// @Failure 503 {string} string
// @Router /ical/{token} [get]
func (h *ICalHandler) FeedByToken(c *gin.Context) {
	feed, err := h.feeds.FeedFromToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.serve(c, feed)
}

// HeadByToken answers HEAD with the headers a GET would send.
func (h *ICalHandler) HeadByToken(c *gin.Context) {
	feed, err := h.feeds.PlaceholderFromToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.serveHead(c, feed)
}

// FeedByQuery godoc
// @Summary Calendar feed for an inline selection
// @Tags iCal
// @Produce text/calendar
// @Param name query string false "Calendar name"
// @Param school query []string false "School" collectionFormat(multi)
// @Param degree query []string false "Degree" collectionFormat(multi)
// @Param semester query []string false "Semester" collectionFormat(multi)
// @Param year query []string false "Year" collectionFormat(multi)
// @Param subject query []string false "Subject" collectionFormat(multi)
// @Param reminder query []string false "ISO-8601 trigger such as -PT1H" collectionFormat(multi)
// @Param download query string false "1 to download instead of subscribe"
// @Success 200 {string} string "VCALENDAR document"
// @Failure 503 {string} string
// @Router /ical [get]
func (h *ICalHandler) FeedByQuery(c *gin.Context) {
	feed, err := h.feeds.FeedFromQuery(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.serve(c, feed)
}

// HeadByQuery answers HEAD for the inline variant.
func (h *ICalHandler) HeadByQuery(c *gin.Context) {
	h.serveHead(c, h.feeds.PlaceholderFromQuery(c.Request.URL.Query()))
}

// StoreToken godoc
// @Summary Register a link token
// @Tags iCal
// @Accept json
// @Produce json
// @Param payload body dto.StoreTokenRequest true "Token and feed query string"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /ical/store-token [post]
func (h *ICalHandler) StoreToken(c *gin.Context) {
	var req dto.StoreTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	stored, err := h.feeds.StoreToken(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stored, nil)
}

// Links godoc
// @Summary Build subscription links
// @Description Issues a token for the selection and returns webcal, https, Google and download links.
// @Tags iCal
// @Accept json
// @Produce json
// @Param payload body dto.ICalLinksRequest true "Selection"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /ical/links [post]
func (h *ICalHandler) Links(c *gin.Context) {
	var req dto.ICalLinksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	links, err := h.feeds.Links(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, links, nil)
}

// RevokeByToken godoc
// @Summary Revoke a stored link
// @Tags iCal
// @Param token path string true "Link token"
// @Success 204
// @Failure 401 {object} response.Envelope
// @Router /ical/{token} [delete]
func (h *ICalHandler) RevokeByToken(c *gin.Context) {
	if err := h.feeds.RevokeToken(c.Request.Context(), c.Param("token")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *ICalHandler) writeHeaders(c *gin.Context, feed *service.ICalFeed) {
	disposition := "inline"
	if c.Query("download") == "1" {
		disposition = "attachment"
	}
	c.Header("Content-Type", calendarContentType)
	c.Header("Cache-Control", h.cacheControl)
	c.Header("Content-Disposition", ical.ContentDisposition(disposition, feed.FileName))
}

func (h *ICalHandler) serve(c *gin.Context, feed *service.ICalFeed) {
	h.writeHeaders(c, feed)
	c.Data(http.StatusOK, calendarContentType, feed.Body)
}

func (h *ICalHandler) serveHead(c *gin.Context, feed *service.ICalFeed) {
	h.writeHeaders(c, feed)
	c.Header("Content-Length", strconv.Itoa(len(feed.Body)))
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
}

func (h *ICalHandler) fail(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Warn("calendar feed unavailable", zap.String("route", c.FullPath()), zap.Error(err))
	}
	response.Text(c, appErr)
}
