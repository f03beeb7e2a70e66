package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-calendar-api/internal/models"
)

var userCalendarRowColumns = []string{"id", "name", "filters", "owner_id", "created_at"}

func TestUserCalendarRepositoryListByOwner(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUserCalendarRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows(userCalendarRowColumns).
		AddRow("c2", "Second", []byte(`{"school":["ETSINF"],"year":[1]}`), "user-1", now).
		AddRow("c1", "First", []byte(`{}`), "user-1", now.Add(-time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("FROM user_calendars WHERE owner_id = $1 ORDER BY created_at DESC")).
		WithArgs("user-1").
		WillReturnRows(rows)

	calendars, err := repo.ListByOwner(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, calendars, 2)
	assert.Equal(t, "Second", calendars[0].Name)
	assert.Equal(t, []string{"1"}, calendars[0].Filters[models.FacetYear])
	assert.True(t, calendars[1].Filters.IsEmpty())
}

func TestUserCalendarRepositoryExistsByName(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUserCalendarRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("LOWER(name) = LOWER($2)")).
		WithArgs("user-1", "my exams").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByName(context.Background(), "user-1", "my exams")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUserCalendarRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUserCalendarRepository(db)
	mock.ExpectQuery("FROM user_calendars WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUserCalendarRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUserCalendarRepository(db)
	mock.ExpectExec("INSERT INTO user_calendars").
		WithArgs(sqlmock.AnyArg(), "My Exams", sqlmock.AnyArg(), "user-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	calendar := &models.UserCalendar{Name: "My Exams", OwnerID: "user-1", Filters: models.FilterSelection{models.FacetSchool: {"ETSINF"}}}
	require.NoError(t, repo.Create(context.Background(), calendar))
	assert.NotEmpty(t, calendar.ID)
	assert.False(t, calendar.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCalendarRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUserCalendarRepository(db)
	mock.ExpectExec("INSERT INTO user_calendars").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.UserCalendar{Name: "Dup", OwnerID: "user-1"})
	assert.ErrorIs(t, err, ErrDuplicateCalendarName)
}

func TestUserCalendarRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUserCalendarRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM user_calendars WHERE id = $1")).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "c1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
