package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/exam-calendar-api/internal/models"
)

// ErrDuplicateCalendarName signals a unique constraint violation on (owner, name).
var ErrDuplicateCalendarName = errors.New("calendar name already exists")

// UserCalendarStore persists saved calendars.
type UserCalendarStore interface {
	ListByOwner(ctx context.Context, ownerID string) ([]models.UserCalendar, error)
	ExistsByName(ctx context.Context, ownerID, name string) (bool, error)
	FindByID(ctx context.Context, id string) (*models.UserCalendar, error)
	Create(ctx context.Context, calendar *models.UserCalendar) error
	Delete(ctx context.Context, id string) error
}

var (
	_ UserCalendarStore = (*UserCalendarRepository)(nil)
	_ UserCalendarStore = (*MemoryUserCalendarRepository)(nil)
)

const userCalendarColumns = "id, name, filters, owner_id, created_at"

// UserCalendarRepository persists saved filter calendars.
type UserCalendarRepository struct {
	db *sqlx.DB
}

// NewUserCalendarRepository creates the repository.
func NewUserCalendarRepository(db *sqlx.DB) *UserCalendarRepository {
	return &UserCalendarRepository{db: db}
}

// ListByOwner returns the owner's calendars, newest first.
func (r *UserCalendarRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.UserCalendar, error) {
	query := fmt.Sprintf("SELECT %s FROM user_calendars WHERE owner_id = $1 ORDER BY created_at DESC", userCalendarColumns)
	var calendars []models.UserCalendar
	if err := r.db.SelectContext(ctx, &calendars, query, ownerID); err != nil {
		return nil, fmt.Errorf("list user calendars: %w", err)
	}
	return calendars, nil
}

// ExistsByName reports whether the owner already has a calendar with name, ignoring case.
func (r *UserCalendarRepository) ExistsByName(ctx context.Context, ownerID, name string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM user_calendars WHERE owner_id = $1 AND LOWER(name) = LOWER($2))`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, ownerID, name); err != nil {
		return false, fmt.Errorf("check user calendar name: %w", err)
	}
	return exists, nil
}

// FindByID fetches a calendar. It returns sql.ErrNoRows when absent.
func (r *UserCalendarRepository) FindByID(ctx context.Context, id string) (*models.UserCalendar, error) {
	query := fmt.Sprintf("SELECT %s FROM user_calendars WHERE id = $1", userCalendarColumns)
	var calendar models.UserCalendar
	if err := r.db.GetContext(ctx, &calendar, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find user calendar: %w", err)
	}
	return &calendar, nil
}

// Create inserts a calendar, assigning id and creation time when unset.
func (r *UserCalendarRepository) Create(ctx context.Context, calendar *models.UserCalendar) error {
	if calendar.ID == "" {
		calendar.ID = uuid.NewString()
	}
	if calendar.CreatedAt.IsZero() {
		calendar.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO user_calendars (id, name, filters, owner_id, created_at)
VALUES (:id, :name, :filters, :owner_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, calendar); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateCalendarName
		}
		return fmt.Errorf("create user calendar: %w", err)
	}
	return nil
}

// Delete removes a calendar.
func (r *UserCalendarRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM user_calendars WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete user calendar: %w", err)
	}
	return nil
}
