package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/exam-calendar-api/internal/middleware"
)

// Handlers groups the HTTP surfaces. Exports may be nil when push export is disabled.
type Handlers struct {
	Exams     *ExamHandler
	Filters   *FilterHandler
	ICal      *ICalHandler
	Calendars *CalendarHandler
	Exports   *ExportHandler
	Metrics   *MetricsHandler
}

// RouterConfig carries the cross-cutting pieces the routes need.
type RouterConfig struct {
	APIPrefix string
	Auth      middleware.TokenValidator
	// FeedLimiter guards the public calendar feeds. Nil disables it.
	FeedLimiter gin.HandlerFunc
}

// RegisterRoutes mounts every endpoint on r.
func RegisterRoutes(r *gin.Engine, cfg RouterConfig, h Handlers) {
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api"
	}
	limiter := cfg.FeedLimiter
	if limiter == nil {
		limiter = func(c *gin.Context) { c.Next() }
	}

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(cfg.APIPrefix)
	api.GET("/exams", h.Exams.List)

	filters := api.Group("/filters")
	filters.GET("/schools", h.Filters.Schools)
	filters.GET("/degrees", h.Filters.Degrees)
	filters.GET("/semesters", h.Filters.Semesters)
	filters.GET("/years", h.Filters.Years)
	filters.GET("/subjects", h.Filters.Subjects)
	filters.GET("/options", h.Filters.Options)

	feeds := api.Group("/ical")
	feeds.GET("", limiter, h.ICal.FeedByQuery)
	feeds.HEAD("", limiter, h.ICal.HeadByQuery)
	feeds.GET("/:token", limiter, h.ICal.FeedByToken)
	feeds.HEAD("/:token", limiter, h.ICal.HeadByToken)
	feeds.DELETE("/:token", limiter, h.ICal.RevokeByToken)
	feeds.POST("/store-token", h.ICal.StoreToken)
	feeds.POST("/links", h.ICal.Links)

	secured := api.Group("", middleware.JWT(cfg.Auth))
	secured.GET("/calendars", h.Calendars.List)
	secured.POST("/calendars", h.Calendars.Save)
	secured.DELETE("/calendars/:id", h.Calendars.Delete)

	if h.Exports != nil {
		secured.POST("/exports/caldav", h.Exports.StartCalDAV)
		secured.GET("/exports/:id", h.Exports.Status)
		secured.POST("/exports/:id/retry", h.Exports.Retry)
	}
}
