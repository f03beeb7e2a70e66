package repository

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-calendar-api/internal/models"
)

const seedYAML = `
exams:
  - id: "e3"
    date: "2024-06-10"
    time: "09:00"
    duration_minutes: "abc"
    subject: Redes
    acronym: RED
    school: ETSINF
    degree: GII
    year: 2
    semester: B
  - id: "e1"
    date: "2024-01-20"
    time: "10:00"
    duration_minutes: 90
    subject: Algebra
    acronym: ALG
    school: ETSINF
    degree: GII
    year: 1
    semester: a
    location: Aula 1.1
  - id: "e2"
    date: "2024-01-22"
    time: "16:00"
    subject: Mecanica
    acronym: MEC
    school: ETSID
    degree: GIA
    year: "1.0"
    semester: A
`

func seededRepo(t *testing.T) *MemoryExamRepository {
	exams, err := ParseExamSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	return NewMemoryExamRepository(exams, 0)
}

func TestParseExamSeed(t *testing.T) {
	exams, err := ParseExamSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	require.Len(t, exams, 3)

	assert.Nil(t, exams[0].DurationMinutes)
	require.NotNil(t, exams[1].DurationMinutes)
	assert.Equal(t, 90, *exams[1].DurationMinutes)
	assert.Equal(t, models.FacetValue("A"), exams[1].Semester)
	assert.Equal(t, models.FacetValue("1"), exams[2].Year)
}

func TestParseExamSeedRejectsDuplicates(t *testing.T) {
	_, err := ParseExamSeed(strings.NewReader("exams:\n  - id: a\n  - id: a\n"))
	assert.Error(t, err)

	_, err = ParseExamSeed(strings.NewReader("exams:\n  - subject: x\n"))
	assert.Error(t, err)
}

func TestMemoryExamRepositoryListSortsAndFilters(t *testing.T) {
	repo := seededRepo(t)

	all, err := repo.List(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"e1", "e2", "e3"}, []string{all[0].ID, all[1].ID, all[2].ID})

	etsinf, err := repo.List(context.Background(), models.FilterSelection{models.FacetSchool: {"ETSINF"}, models.FacetYear: {"1"}})
	require.NoError(t, err)
	require.Len(t, etsinf, 1)
	assert.Equal(t, "e1", etsinf[0].ID)
}

func TestMemoryExamRepositoryRespectsLimit(t *testing.T) {
	exams, err := ParseExamSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)

	got, err := NewMemoryExamRepository(exams, 2).List(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMemoryExamRepositoryDistinctValues(t *testing.T) {
	repo := seededRepo(t)

	schools, err := repo.DistinctValues(context.Background(), models.FacetSchool, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ETSID", "ETSINF"}, schools)

	subjects, err := repo.DistinctValues(context.Background(), models.FacetSubject, models.FilterSelection{models.FacetSchool: {"ETSINF"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Algebra (ALG)", "Redes (RED)"}, subjects)

	years, err := repo.DistinctValues(context.Background(), models.FacetYear, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, years)

	_, err = repo.DistinctValues(context.Background(), models.Facet("room"), nil)
	assert.Error(t, err)
}

func TestMemoryExamRepositoryHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := seededRepo(t).List(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadMemoryExamRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exams.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	repo, err := LoadMemoryExamRepository(path, 0)
	require.NoError(t, err)
	exams, err := repo.List(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, exams, 3)

	_, err = LoadMemoryExamRepository(filepath.Join(t.TempDir(), "missing.yaml"), 0)
	assert.Error(t, err)
}
