package models

import "time"

// UserCalendar is a named, saved filter selection owned by a user.
type UserCalendar struct {
	ID        string          `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Filters   FilterSelection `db:"filters" json:"filters"`
	OwnerID   string          `db:"owner_id" json:"owner_id"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
