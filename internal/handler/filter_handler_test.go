package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-calendar-api/internal/dto"
	"github.com/noah-isme/exam-calendar-api/internal/models"
	"github.com/noah-isme/exam-calendar-api/internal/service"
)

type facetResolverStub struct {
	values  service.FacetValuesResult
	options service.FacetOptions
	args    [][]string
	changed models.Facet
}

func (s *facetResolverStub) record(args ...[]string) service.FacetValuesResult {
	s.args = args
	return s.values
}

func (s *facetResolverStub) GetSchools(ctx context.Context) service.FacetValuesResult {
	return s.record()
}

func (s *facetResolverStub) GetDegrees(ctx context.Context, schools []string) service.FacetValuesResult {
	return s.record(schools)
}

func (s *facetResolverStub) GetSemesters(ctx context.Context, schools, degrees []string) service.FacetValuesResult {
	return s.record(schools, degrees)
}

func (s *facetResolverStub) GetYears(ctx context.Context, schools, degrees, semesters []string) service.FacetValuesResult {
	return s.record(schools, degrees, semesters)
}

func (s *facetResolverStub) GetSubjects(ctx context.Context, schools, degrees, semesters, years []string) service.FacetValuesResult {
	return s.record(schools, degrees, semesters, years)
}

func (s *facetResolverStub) Options(ctx context.Context, selection models.FilterSelection, changed models.Facet) service.FacetOptions {
	s.changed = changed
	return s.options
}

func TestFilterHandlerFacetEndpoints(t *testing.T) {
	stub := &facetResolverStub{values: service.FacetValuesResult{Values: []string{"GCD", "GII"}}}
	h := NewFilterHandler(stub)

	c, w := newRequestContext(http.MethodGet, "/api/filters/degrees?school=ETSINF", nil)
	h.Degrees(c)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	var values []string
	require.NoError(t, json.Unmarshal(env.Data, &values))
	assert.Equal(t, []string{"GCD", "GII"}, values)
	assert.Equal(t, [][]string{{"ETSINF"}}, stub.args)

	c, _ = newRequestContext(http.MethodGet, "/api/filters/subjects?school=ETSINF&degree=GII&semester=a&year=1", nil)
	h.Subjects(c)
	assert.Equal(t, [][]string{{"ETSINF"}, {"GII"}, {"A"}, {"1"}}, stub.args)

	c, _ = newRequestContext(http.MethodGet, "/api/filters/years?degree=GII", nil)
	h.Years(c)
	require.Len(t, stub.args, 3)
	assert.Empty(t, stub.args[0])
	assert.Equal(t, []string{"GII"}, stub.args[1])
}

func TestFilterHandlerReportsFetchFailure(t *testing.T) {
	h := NewFilterHandler(&facetResolverStub{values: service.FacetValuesResult{Values: []string{}, Failed: true}})

	c, w := newRequestContext(http.MethodGet, "/api/filters/schools", nil)
	h.Schools(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, true, env.Meta["fetch_failed"])
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestFilterHandlerOptions(t *testing.T) {
	stub := &facetResolverStub{options: service.FacetOptions{
		Options:   map[models.Facet][]string{models.FacetSemester: {"A"}},
		Selection: models.FilterSelection{models.FacetDegree: {"GII"}},
		Removed:   map[models.Facet][]string{models.FacetSemester: {"B"}},
	}}
	h := NewFilterHandler(stub)

	c, w := newRequestContext(http.MethodGet, "/api/filters/options?changed=Degree&degree=GII&semester=B", nil)
	h.Options(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.FacetDegree, stub.changed)
	env := decodeEnvelope(t, w)
	var resp dto.FacetOptionsResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, []string{"A"}, resp.Options[models.FacetSemester])
	assert.Equal(t, []string{"B"}, resp.Removed[models.FacetSemester])
	assert.Equal(t, false, env.Meta["fetch_failed"])

	c, w = newRequestContext(http.MethodGet, "/api/filters/options?changed=colour", nil)
	h.Options(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
