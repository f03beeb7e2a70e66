package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-calendar-api/internal/dto"
	"github.com/noah-isme/exam-calendar-api/internal/models"
	"github.com/noah-isme/exam-calendar-api/internal/repository"
	appErrors "github.com/noah-isme/exam-calendar-api/pkg/errors"
)

type userCalendarRepository interface {
	ListByOwner(ctx context.Context, ownerID string) ([]models.UserCalendar, error)
	ExistsByName(ctx context.Context, ownerID, name string) (bool, error)
	FindByID(ctx context.Context, id string) (*models.UserCalendar, error)
	Create(ctx context.Context, calendar *models.UserCalendar) error
	Delete(ctx context.Context, id string) error
}

// UserCalendarService manages saved filter calendars.
type UserCalendarService struct {
	repo      userCalendarRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserCalendarService constructs the service.
func NewUserCalendarService(repo userCalendarRepository, validate *validator.Validate, logger *zap.Logger) *UserCalendarService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserCalendarService{repo: repo, validator: validate, logger: logger}
}

// List returns the user's calendars, newest first.
func (s *UserCalendarService) List(ctx context.Context, userID string) ([]models.UserCalendar, error) {
	calendars, err := s.repo.ListByOwner(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load calendars")
	}
	if calendars == nil {
		calendars = []models.UserCalendar{}
	}
	return calendars, nil
}

// Save stores a named selection. Names are unique per user, ignoring case.
func (s *UserCalendarService) Save(ctx context.Context, req dto.SaveCalendarRequest, userID string) (*models.UserCalendar, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid calendar payload")
	}

	exists, err := s.repo.ExistsByName(ctx, userID, req.Name)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save calendar")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a calendar with this name already exists")
	}

	calendar := &models.UserCalendar{
		Name:    req.Name,
		Filters: req.Filters.Normalize(),
		OwnerID: userID,
	}
	if err := s.repo.Create(ctx, calendar); err != nil {
		if errors.Is(err, repository.ErrDuplicateCalendarName) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a calendar with this name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save calendar")
	}
	s.logger.Info("calendar saved", zap.String("calendar_id", calendar.ID), zap.String("owner_id", userID))
	return calendar, nil
}

// Delete removes a calendar owned by userID. Ids that are not UUIDs cannot
// name a stored calendar and are reported as not found.
func (s *UserCalendarService) Delete(ctx context.Context, id, userID string) error {
	if _, err := uuid.Parse(id); err != nil {
		return appErrors.Clone(appErrors.ErrNotFound, "calendar not found")
	}
	calendar, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "calendar not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete calendar")
	}
	if calendar.OwnerID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "calendar belongs to another user")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete calendar")
	}
	return nil
}
