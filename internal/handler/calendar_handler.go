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

type savedCalendars interface {
	List(ctx context.Context, userID string) ([]models.UserCalendar, error)
	Save(ctx context.Context, req dto.SaveCalendarRequest, userID string) (*models.UserCalendar, error)
	Delete(ctx context.Context, id, userID string) error
}

// CalendarHandler manages a user's saved filter selections.
type CalendarHandler struct {
	calendars savedCalendars
}

// NewCalendarHandler constructs handler.
func NewCalendarHandler(calendars savedCalendars) *CalendarHandler {
	return &CalendarHandler{calendars: calendars}
}

// List godoc
// @Summary List saved calendars
// @Tags Calendars
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /calendars [get]
func (h *CalendarHandler) List(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	calendars, err := h.calendars.List(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, calendars, nil, map[string]interface{}{"count": len(calendars)})
}

// Save godoc
// @Summary Save a calendar
// @Tags Calendars
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.SaveCalendarRequest true "Calendar"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /calendars [post]
func (h *CalendarHandler) Save(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SaveCalendarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	saved, err := h.calendars.Save(c.Request.Context(), req, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, saved)
}

// Delete godoc
// @Summary Delete a saved calendar
// @Tags Calendars
// @Security BearerAuth
// @Param id path string true "Calendar ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /calendars/{id} [delete]
func (h *CalendarHandler) Delete(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.calendars.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
