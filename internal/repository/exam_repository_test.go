package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-calendar-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

var examRowColumns = []string{"id", "exam_date", "exam_time", "duration_minutes", "subject", "acronym", "school", "degree", "year", "semester", "location"}

func TestExamRepositoryListBuildsFacetConditions(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewExamRepository(db, 50)
	rows := sqlmock.NewRows(examRowColumns).
		AddRow("e1", "2024-01-20", "10:00", nil, "Algebra", "ALG", "ETSINF", "GII", "1", "A", "Aula 1").
		AddRow("e2", "2024-01-22", "16:00", 90, "Fisica", "FIS", "ETSINF", "GII", "1", "A", "")

	mock.ExpectQuery(regexp.QuoteMeta("FROM exams WHERE TRIM(school) = ANY($1) AND regexp_replace(UPPER(TRIM(year))")).
		WithArgs(pq.Array([]string{"ETSINF"}), pq.Array([]string{"1"}), pq.Array([]string{"%al\\_g%"})).
		WillReturnRows(rows)

	filter := models.FilterSelection{
		models.FacetSchool:  {"ETSINF"},
		models.FacetYear:    {"1.0"},
		models.FacetSubject: {"AL_G"},
	}
	exams, err := repo.List(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, exams, 2)
	assert.Equal(t, "2024-01-20", exams[0].Date)
	assert.Nil(t, exams[0].DurationMinutes)
	require.NotNil(t, exams[1].DurationMinutes)
	assert.Equal(t, 90, *exams[1].DurationMinutes)
	assert.Equal(t, models.FacetValue("1"), exams[0].Year)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryListWithoutFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewExamRepository(db, 0)
	mock.ExpectQuery(regexp.QuoteMeta("FROM exams ORDER BY exam_date ASC, exam_time ASC LIMIT 1000")).
		WillReturnRows(sqlmock.NewRows(examRowColumns))

	exams, err := repo.List(context.Background(), models.FilterSelection{})
	require.NoError(t, err)
	assert.Empty(t, exams)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryListUsesCaseInsensitiveAcronym(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewExamRepository(db, 10)
	mock.ExpectQuery(regexp.QuoteMeta("LOWER(TRIM(acronym)) = ANY($1)")).
		WithArgs(pq.Array([]string{"alg"})).
		WillReturnRows(sqlmock.NewRows(examRowColumns))

	_, err := repo.List(context.Background(), models.FilterSelection{models.FacetAcronym: {"ALG"}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryListPropagatesErrors(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewExamRepository(db, 10)
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection refused"))

	_, err := repo.List(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list exams")
}

func TestExamRepositoryDistinctValues(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewExamRepository(db, 10)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT TRIM(degree) AS value FROM exams WHERE TRIM(school) = ANY($1) AND TRIM(degree) <> '' ORDER BY value")).
		WithArgs(pq.Array([]string{"ETSINF"})).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("GII").AddRow("GIINF"))

	values, err := repo.DistinctValues(context.Background(), models.FacetDegree, models.FilterSelection{models.FacetSchool: {"ETSINF"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"GII", "GIINF"}, values)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryDistinctValuesWithoutConstraints(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewExamRepository(db, 10)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT TRIM(school) AS value FROM exams WHERE TRIM(school) <> ''")).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("ETSINF"))

	values, err := repo.DistinctValues(context.Background(), models.FacetSchool, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ETSINF"}, values)
}

func TestExamRepositoryDistinctValuesRejectsUnknownFacet(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()

	_, err := NewExamRepository(db, 10).DistinctValues(context.Background(), models.Facet("room"), nil)
	assert.Error(t, err)
}
