package dto

import (
	"time"

	"github.com/noah-isme/exam-calendar-api/internal/models"
)

// StoreTokenRequest registers a client-chosen token for a feed query string.
type StoreTokenRequest struct {
	Token       string `json:"token" validate:"required,min=6,max=64"`
	QueryString string `json:"queryString"`
}

// ICalLinksRequest describes the feed a user wants to subscribe to.
// ReminderMinutes is an alternative to ISO-8601 reminders, counted in
// minutes before the exam.
type ICalLinksRequest struct {
	Name            string                 `json:"name" validate:"max=100"`
	Filters         models.FilterSelection `json:"filters"`
	Reminders       []string               `json:"reminders" validate:"max=5"`
	ReminderMinutes []int                  `json:"reminder_minutes" validate:"max=5,dive,min=1,max=40320"`
}

// ICalLinksResponse lists every way to consume the feed.
type ICalLinksResponse struct {
	Token        string    `json:"token"`
	FeedURL      string    `json:"https_url"`
	WebcalURL    string    `json:"webcal_url"`
	GoogleURL    string    `json:"google_url"`
	DownloadURL  string    `json:"download_url"`
	DirectURL    string    `json:"direct_webcal_url"`
	QueryString  string    `json:"query_string"`
	ExpiresAt    time.Time `json:"expires_at"`
	CalendarName string    `json:"calendar_name"`
}
