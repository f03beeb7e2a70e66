package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/exam-calendar-api/internal/models"
)

const defaultExamLimit = 1000

const (
	examColumns = "id, to_char(exam_date, 'YYYY-MM-DD') AS exam_date, exam_time, duration_minutes, subject, acronym, school, degree, year, semester, location"

	subjectLabelExpr = "CASE WHEN TRIM(acronym) = '' THEN TRIM(subject) ELSE TRIM(subject) || ' (' || TRIM(acronym) || ')' END"
	// integral numbers stored as "1.0" compare equal to "1"
	yearExpr     = `regexp_replace(UPPER(TRIM(year)), '\.0+$', '')`
	semesterExpr = `regexp_replace(UPPER(TRIM(semester)), '\.0+$', '')`
)

var facetExpressions = map[models.Facet]string{
	models.FacetSchool:   "TRIM(school)",
	models.FacetDegree:   "TRIM(degree)",
	models.FacetSemester: semesterExpr,
	models.FacetYear:     yearExpr,
	models.FacetSubject:  subjectLabelExpr,
	models.FacetAcronym:  "TRIM(acronym)",
}

// ExamStore is the read surface shared by the PostgreSQL and in-memory backends.
type ExamStore interface {
	List(ctx context.Context, filter models.FilterSelection) ([]models.Exam, error)
	DistinctValues(ctx context.Context, facet models.Facet, constraints models.FilterSelection) ([]string, error)
}

var (
	_ ExamStore = (*ExamRepository)(nil)
	_ ExamStore = (*MemoryExamRepository)(nil)
)

// ExamRepository reads exam records from PostgreSQL.
type ExamRepository struct {
	db    *sqlx.DB
	limit int
}

// NewExamRepository creates the repository. limit bounds every list query.
func NewExamRepository(db *sqlx.DB, limit int) *ExamRepository {
	if limit <= 0 {
		limit = defaultExamLimit
	}
	return &ExamRepository{db: db, limit: limit}
}

// List returns exams matching filter ordered by date and time.
func (r *ExamRepository) List(ctx context.Context, filter models.FilterSelection) ([]models.Exam, error) {
	where, args := buildExamWhere(filter)
	query := fmt.Sprintf("SELECT %s FROM exams%s ORDER BY exam_date ASC, exam_time ASC LIMIT %d", examColumns, where, r.limit)

	var exams []models.Exam
	if err := r.db.SelectContext(ctx, &exams, query, args...); err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	return exams, nil
}

// DistinctValues returns the sorted non-empty values of facet among exams matching constraints.
func (r *ExamRepository) DistinctValues(ctx context.Context, facet models.Facet, constraints models.FilterSelection) ([]string, error) {
	expr, ok := facetExpressions[facet]
	if !ok {
		return nil, fmt.Errorf("unknown facet %q", facet)
	}
	where, args := buildExamWhere(constraints)
	if where == "" {
		where = " WHERE "
	} else {
		where += " AND "
	}
	query := fmt.Sprintf("SELECT DISTINCT %s AS value FROM exams%s%s <> '' ORDER BY value", expr, where, expr)

	var values []string
	if err := r.db.SelectContext(ctx, &values, query, args...); err != nil {
		return nil, fmt.Errorf("distinct %s: %w", facet, err)
	}
	return values, nil
}

func buildExamWhere(filter models.FilterSelection) (string, []interface{}) {
	filter = filter.Normalize()
	var conditions []string
	var args []interface{}

	for _, facet := range models.AllFacets() {
		values := filter.Values(facet)
		if len(values) == 0 {
			continue
		}
		placeholder := len(args) + 1
		switch facet {
		case models.FacetSubject:
			patterns := make([]string, len(values))
			for i, v := range values {
				patterns[i] = "%" + escapeLike(strings.ToLower(v)) + "%"
			}
			conditions = append(conditions, fmt.Sprintf("LOWER(%s) LIKE ANY($%d)", subjectLabelExpr, placeholder))
			args = append(args, pq.Array(patterns))
		case models.FacetAcronym:
			lowered := make([]string, len(values))
			for i, v := range values {
				lowered[i] = strings.ToLower(v)
			}
			conditions = append(conditions, fmt.Sprintf("LOWER(TRIM(acronym)) = ANY($%d)", placeholder))
			args = append(args, pq.Array(lowered))
		default:
			conditions = append(conditions, fmt.Sprintf("%s = ANY($%d)", facetExpressions[facet], placeholder))
			args = append(args, pq.Array(values))
		}
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}
