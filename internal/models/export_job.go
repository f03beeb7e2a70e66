package models

import (
	"errors"
	"fmt"
	"time"
)

// ExportState tracks the lifecycle of a push export.
type ExportState string

const (
	ExportStateIdle        ExportState = "idle"
	ExportStateAuthorizing ExportState = "authorizing"
	ExportStateExporting   ExportState = "exporting"
	ExportStateSuccess     ExportState = "success"
	ExportStateError       ExportState = "error"
)

// ErrInvalidTransition is returned when a state change is not allowed.
var ErrInvalidTransition = errors.New("invalid export state transition")

var exportTransitions = map[ExportState][]ExportState{
	ExportStateIdle:        {ExportStateAuthorizing},
	ExportStateAuthorizing: {ExportStateExporting, ExportStateError},
	ExportStateExporting:   {ExportStateSuccess, ExportStateError},
	ExportStateError:       {ExportStateIdle},
}

// CanTransition reports whether s may move to next.
func (s ExportState) CanTransition(next ExportState) bool {
	for _, allowed := range exportTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further work happens without a retry.
func (s ExportState) Terminal() bool {
	return s == ExportStateSuccess || s == ExportStateError
}

// ExportJob describes a push of a filtered exam list to a CalDAV calendar.
// Credentials are never part of the job.
type ExportJob struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"owner_id"`
	State        ExportState     `json:"state"`
	CalendarName string          `json:"calendar_name"`
	ServerURL    string          `json:"server_url"`
	Filters      FilterSelection `json:"filters"`
	Reminders    []string        `json:"reminders,omitempty"`
	Total        int             `json:"total"`
	Written      int             `json:"written"`
	Attempts     int             `json:"attempts"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// Transition moves the job to next, stamping times and clearing stale
// progress when returning to idle.
func (j *ExportJob) Transition(next ExportState, now time.Time) error {
	if !j.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, next)
	}
	j.State = next
	j.UpdatedAt = now
	switch next {
	case ExportStateIdle:
		j.ErrorMessage = nil
		j.FinishedAt = nil
		j.Written = 0
	case ExportStateAuthorizing:
		j.Attempts++
	case ExportStateSuccess, ExportStateError:
		finished := now
		j.FinishedAt = &finished
	}
	return nil
}

// Fail moves the job to the error state with a client-safe message.
func (j *ExportJob) Fail(message string, now time.Time) error {
	if err := j.Transition(ExportStateError, now); err != nil {
		return err
	}
	j.ErrorMessage = &message
	return nil
}
