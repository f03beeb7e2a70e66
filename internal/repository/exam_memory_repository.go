package repository

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/exam-calendar-api/internal/models"
)

// MemoryExamRepository serves exams from an in-memory snapshot, typically
// loaded from a YAML seed file.
type MemoryExamRepository struct {
	mu    sync.RWMutex
	exams []models.Exam
	limit int
}

type examSeed struct {
	Exams []seedExam `yaml:"exams"`
}

type seedExam struct {
	models.Exam `yaml:",inline"`
	Duration    interface{} `yaml:"duration_minutes"`
}

// NewMemoryExamRepository wraps exams. limit bounds every list query.
func NewMemoryExamRepository(exams []models.Exam, limit int) *MemoryExamRepository {
	if limit <= 0 {
		limit = defaultExamLimit
	}
	r := &MemoryExamRepository{limit: limit}
	r.Replace(exams)
	return r
}

// LoadMemoryExamRepository reads the YAML seed at path.
func LoadMemoryExamRepository(path string, limit int) (*MemoryExamRepository, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open exam seed: %w", err)
	}
	defer f.Close()

	exams, err := ParseExamSeed(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewMemoryExamRepository(exams, limit), nil
}

// ParseExamSeed decodes a YAML document of the form {exams: [...]}.
func ParseExamSeed(r io.Reader) ([]models.Exam, error) {
	var seed examSeed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode exam seed: %w", err)
	}

	seen := make(map[string]bool, len(seed.Exams))
	exams := make([]models.Exam, 0, len(seed.Exams))
	for i, row := range seed.Exams {
		exam := row.Exam
		exam.ID = strings.TrimSpace(exam.ID)
		if exam.ID == "" {
			return nil, fmt.Errorf("exam %d: missing id", i)
		}
		if seen[exam.ID] {
			return nil, fmt.Errorf("exam %d: duplicate id %q", i, exam.ID)
		}
		seen[exam.ID] = true
		exam.DurationMinutes = models.ParseDurationMinutes(row.Duration)
		exams = append(exams, exam)
	}
	return exams, nil
}

// Replace swaps the served snapshot.
func (r *MemoryExamRepository) Replace(exams []models.Exam) {
	sorted := append([]models.Exam(nil), exams...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Date != sorted[j].Date {
			return sorted[i].Date < sorted[j].Date
		}
		return sorted[i].Time < sorted[j].Time
	})
	r.mu.Lock()
	r.exams = sorted
	r.mu.Unlock()
}

// List returns exams matching filter ordered by date and time.
func (r *MemoryExamRepository) List(ctx context.Context, filter models.FilterSelection) ([]models.Exam, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter = filter.Normalize()

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Exam, 0)
	for _, exam := range r.exams {
		if !filter.Matches(exam) {
			continue
		}
		out = append(out, exam)
		if len(out) == r.limit {
			break
		}
	}
	return out, nil
}

// DistinctValues returns the sorted non-empty values of facet among exams matching constraints.
func (r *MemoryExamRepository) DistinctValues(ctx context.Context, facet models.Facet, constraints models.FilterSelection) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := models.ParseFacet(string(facet)); !ok {
		return nil, fmt.Errorf("unknown facet %q", facet)
	}
	constraints = constraints.Normalize()

	r.mu.RLock()
	defer r.mu.RUnlock()
	set := map[string]struct{}{}
	for _, exam := range r.exams {
		if !constraints.Matches(exam) {
			continue
		}
		if v := models.FacetOf(facet, exam); v != "" {
			set[v] = struct{}{}
		}
	}
	values := make([]string, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	sort.Strings(values)
	return values, nil
}
