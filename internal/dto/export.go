package dto

import "github.com/noah-isme/exam-calendar-api/internal/models"

// CalDAVExportRequest starts a push of filtered exams to a CalDAV calendar.
// The password is an app-specific password and is never echoed back.
type CalDAVExportRequest struct {
	ServerURL    string                 `json:"server_url" validate:"omitempty,url,startswith=https://"`
	Username     string                 `json:"username" validate:"required"`
	Password     string                 `json:"password" validate:"required"`
	CalendarName string                 `json:"calendar_name" validate:"max=100"`
	Filters      models.FilterSelection `json:"filters"`
	Reminders    []string               `json:"reminders" validate:"max=5"`
}
