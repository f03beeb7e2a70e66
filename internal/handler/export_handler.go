package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/exam-calendar-api/internal/dto"
	"github.com/noah-isme/exam-calendar-api/internal/models"
	appErrors "github.com/noah-isme/exam-calendar-api/pkg/errors"
	"github.com/noah-isme/exam-calendar-api/pkg/response"
)

type exportJobs interface {
	Start(ctx context.Context, owner string, req dto.CalDAVExportRequest) (*models.ExportJob, error)
	Get(ctx context.Context, owner, id string) (*models.ExportJob, error)
	Retry(ctx context.Context, owner, id string) (*models.ExportJob, error)
}

// ExportHandler drives CalDAV push exports.
type ExportHandler struct {
	exports exportJobs
}

// NewExportHandler constructs handler.
func NewExportHandler(exports exportJobs) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// StartCalDAV godoc
// @Summary Push exams to a CalDAV calendar
// @Description Queues a job that signs in with an app-specific password and writes one event per exam.
// @Tags Exports
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.CalDAVExportRequest true "Server, credentials and selection"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /exports/caldav [post]
func (h *ExportHandler) StartCalDAV(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CalDAVExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	job, err := h.exports.Start(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Status godoc
// @Summary Export job state
// @Tags Exports
// @Security BearerAuth
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/{id} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	job, err := h.exports.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Retry godoc
// @Summary Retry a failed export
// @Tags Exports
// @Security BearerAuth
// @Produce json
// @Param id path string true "Job ID"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /exports/{id}/retry [post]
func (h *ExportHandler) Retry(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	job, err := h.exports.Retry(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}
