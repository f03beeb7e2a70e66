package service

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/exam-calendar-api/internal/models"
)

type examRepository interface {
	List(ctx context.Context, filter models.FilterSelection) ([]models.Exam, error)
	DistinctValues(ctx context.Context, facet models.Facet, constraints models.FilterSelection) ([]string, error)
}

// ExamQueryResult is a resolved exam list. Failed distinguishes a store
// failure from a selection that matches nothing.
type ExamQueryResult struct {
	Exams  []models.Exam
	Failed bool
}

// FacetValuesResult holds the distinct values offered for a facet.
type FacetValuesResult struct {
	Values []string
	Failed bool
}

// FacetOptions is the outcome of a cascading recompute.
type FacetOptions struct {
	Options   map[models.Facet][]string
	Selection models.FilterSelection
	Removed   map[models.Facet][]string
	Failed    bool
}

// ExamService resolves filter selections against the exam store.
type ExamService struct {
	repo     examRepository
	cache    *CacheService
	metrics  *MetricsService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewExamService constructs the resolver. cache and metrics may be nil.
func NewExamService(repo examRepository, cache *CacheService, metrics *MetricsService, cacheTTL time.Duration, logger *zap.Logger) *ExamService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExamService{repo: repo, cache: cache, metrics: metrics, cacheTTL: cacheTTL, logger: logger}
}

// GetExams returns exams matching filters sorted by date then time. Store
// failures are logged and reported through Failed; they never surface as errors.
func (s *ExamService) GetExams(ctx context.Context, filters models.FilterSelection) ExamQueryResult {
	filters = filters.Normalize()

	start := time.Now()
	exams, err := s.repo.List(ctx, filters)
	s.metrics.ObserveDBQuery("exams_list", time.Since(start))
	if err != nil {
		s.logger.Error("exam query failed", zap.String("filters", filters.Key()), zap.Error(err))
		return ExamQueryResult{Exams: []models.Exam{}, Failed: true}
	}
	if exams == nil {
		exams = []models.Exam{}
	}
	sortExams(exams)
	return ExamQueryResult{Exams: exams}
}

// ResetFacetCache drops every cached facet value. It runs at startup so a
// reloaded exam store is not answered from the previous dataset.
func (s *ExamService) ResetFacetCache(ctx context.Context) error {
	return s.cache.Invalidate(ctx, "facets:*")
}

// DistinctValues returns the values offered for facet given the upstream
// selections it depends on. Other facets in constraints are ignored.
func (s *ExamService) DistinctValues(ctx context.Context, facet models.Facet, constraints models.FilterSelection) FacetValuesResult {
	scoped := constraints.Normalize().Restrict(models.Dependencies(facet)...)
	key := CacheKey("facets", string(facet), scoped.Key())

	var cached []string
	if s.cache.Get(ctx, key, &cached) {
		return FacetValuesResult{Values: cached}
	}

	start := time.Now()
	values, err := s.repo.DistinctValues(ctx, facet, scoped)
	s.metrics.ObserveDBQuery("facet_"+string(facet), time.Since(start))
	if err != nil {
		s.logger.Error("facet query failed", zap.String("facet", string(facet)), zap.String("constraints", scoped.Key()), zap.Error(err))
		return FacetValuesResult{Values: []string{}, Failed: true}
	}
	if values == nil {
		values = []string{}
	}
	s.cache.Set(ctx, key, values, s.cacheTTL)
	return FacetValuesResult{Values: values}
}

// GetSchools lists every school.
func (s *ExamService) GetSchools(ctx context.Context) FacetValuesResult {
	return s.DistinctValues(ctx, models.FacetSchool, nil)
}

// GetDegrees lists degrees within schools.
func (s *ExamService) GetDegrees(ctx context.Context, schools []string) FacetValuesResult {
	return s.DistinctValues(ctx, models.FacetDegree, models.FilterSelection{models.FacetSchool: schools})
}

// GetSemesters lists semesters within schools and degrees.
func (s *ExamService) GetSemesters(ctx context.Context, schools, degrees []string) FacetValuesResult {
	return s.DistinctValues(ctx, models.FacetSemester, models.FilterSelection{
		models.FacetSchool: schools,
		models.FacetDegree: degrees,
	})
}

// GetYears lists years within schools, degrees and semesters.
func (s *ExamService) GetYears(ctx context.Context, schools, degrees, semesters []string) FacetValuesResult {
	return s.DistinctValues(ctx, models.FacetYear, models.FilterSelection{
		models.FacetSchool:   schools,
		models.FacetDegree:   degrees,
		models.FacetSemester: semesters,
	})
}

// GetSubjects lists subject labels within schools, degrees, semesters and years.
func (s *ExamService) GetSubjects(ctx context.Context, schools, degrees, semesters, years []string) FacetValuesResult {
	return s.DistinctValues(ctx, models.FacetSubject, models.FilterSelection{
		models.FacetSchool:   schools,
		models.FacetDegree:   degrees,
		models.FacetSemester: semesters,
		models.FacetYear:     years,
	})
}

// Options recomputes the selectors downstream of changed in dependency order.
// Selected values no longer offered are dropped before the next selector is
// computed. A failed lookup leaves that facet's selection untouched.
func (s *ExamService) Options(ctx context.Context, selection models.FilterSelection, changed models.Facet) FacetOptions {
	sel := selection.Normalize()
	out := FacetOptions{
		Options: map[models.Facet][]string{},
		Removed: map[models.Facet][]string{},
	}

	for _, facet := range models.Downstream(changed) {
		res := s.DistinctValues(ctx, facet, sel)
		out.Options[facet] = res.Values
		if res.Failed {
			out.Failed = true
			continue
		}
		current := sel.Values(facet)
		if len(current) == 0 {
			continue
		}
		kept, removed := pruneSelection(facet, current, res.Values)
		if len(removed) > 0 {
			out.Removed[facet] = removed
		}
		if len(kept) == 0 {
			delete(sel, facet)
		} else {
			sel[facet] = kept
		}
	}

	out.Selection = sel
	return out
}

func pruneSelection(facet models.Facet, selected, offered []string) (kept, removed []string) {
	for _, value := range selected {
		if offeredContains(facet, offered, value) {
			kept = append(kept, value)
		} else {
			removed = append(removed, value)
		}
	}
	return kept, removed
}

func offeredContains(facet models.Facet, offered []string, value string) bool {
	for _, candidate := range offered {
		if facet == models.FacetSubject {
			if strings.Contains(strings.ToLower(candidate), strings.ToLower(value)) {
				return true
			}
			continue
		}
		if candidate == value {
			return true
		}
	}
	return false
}

func sortExams(exams []models.Exam) {
	sort.SliceStable(exams, func(i, j int) bool {
		if exams[i].Date != exams[j].Date {
			return exams[i].Date < exams[j].Date
		}
		return clockMinutes(exams[i].Time) < clockMinutes(exams[j].Time)
	})
}

// clockMinutes orders "9:00" before "10:00"; unparsable times sort last.
func clockMinutes(hhmm string) int {
	const unknown = 24 * 60
	h, rest, ok := strings.Cut(strings.TrimSpace(hhmm), ":")
	if !ok || len(rest) < 2 {
		return unknown
	}
	hours, err := strconv.Atoi(h)
	if err != nil {
		return unknown
	}
	minutes, err := strconv.Atoi(rest[:2])
	if err != nil {
		return unknown
	}
	return hours*60 + minutes
}
