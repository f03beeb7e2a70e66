package dto

import "github.com/noah-isme/exam-calendar-api/internal/models"

// SaveCalendarRequest stores a named filter selection for the current user.
type SaveCalendarRequest struct {
	Name    string                 `json:"name" validate:"required,min=1,max=100"`
	Filters models.FilterSelection `json:"filters"`
}
