package repository

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/exam-calendar-api/internal/models"
)

// MemoryUserCalendarRepository keeps saved calendars in process. It backs the
// memory exam store where no database is configured.
type MemoryUserCalendarRepository struct {
	mu        sync.RWMutex
	calendars map[string]models.UserCalendar
	now       func() time.Time
}

// NewMemoryUserCalendarRepository creates an empty repository.
func NewMemoryUserCalendarRepository() *MemoryUserCalendarRepository {
	return &MemoryUserCalendarRepository{
		calendars: map[string]models.UserCalendar{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ListByOwner returns the owner's calendars, newest first.
func (r *MemoryUserCalendarRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.UserCalendar, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.UserCalendar{}
	for _, c := range r.calendars {
		if c.OwnerID == ownerID {
			out = append(out, copyCalendar(c))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ExistsByName reports whether the owner already has a calendar with name, ignoring case.
func (r *MemoryUserCalendarRepository) ExistsByName(ctx context.Context, ownerID, name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.existsLocked(ownerID, name), nil
}

// FindByID fetches a calendar. It returns sql.ErrNoRows when absent.
func (r *MemoryUserCalendarRepository) FindByID(ctx context.Context, id string) (*models.UserCalendar, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calendars[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	found := copyCalendar(c)
	return &found, nil
}

// Create stores a calendar, enforcing the per-owner unique name.
func (r *MemoryUserCalendarRepository) Create(ctx context.Context, calendar *models.UserCalendar) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.existsLocked(calendar.OwnerID, calendar.Name) {
		return ErrDuplicateCalendarName
	}
	if calendar.ID == "" {
		calendar.ID = uuid.NewString()
	}
	if calendar.CreatedAt.IsZero() {
		calendar.CreatedAt = r.now()
	}
	r.calendars[calendar.ID] = copyCalendar(*calendar)
	return nil
}

// Delete removes a calendar.
func (r *MemoryUserCalendarRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.calendars, id)
	return nil
}

func (r *MemoryUserCalendarRepository) existsLocked(ownerID, name string) bool {
	for _, c := range r.calendars {
		if c.OwnerID == ownerID && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func copyCalendar(c models.UserCalendar) models.UserCalendar {
	c.Filters = c.Filters.Clone()
	return c
}
