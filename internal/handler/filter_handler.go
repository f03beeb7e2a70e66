package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/exam-calendar-api/internal/dto"
	"github.com/noah-isme/exam-calendar-api/internal/models"
	"github.com/noah-isme/exam-calendar-api/internal/service"
	appErrors "github.com/noah-isme/exam-calendar-api/pkg/errors"
	"github.com/noah-isme/exam-calendar-api/pkg/response"
)

type facetResolver interface {
	GetSchools(ctx context.Context) service.FacetValuesResult
	GetDegrees(ctx context.Context, schools []string) service.FacetValuesResult
	GetSemesters(ctx context.Context, schools, degrees []string) service.FacetValuesResult
	GetYears(ctx context.Context, schools, degrees, semesters []string) service.FacetValuesResult
	GetSubjects(ctx context.Context, schools, degrees, semesters, years []string) service.FacetValuesResult
	Options(ctx context.Context, selection models.FilterSelection, changed models.Facet) service.FacetOptions
}

// FilterHandler serves the cascading selector options.
type FilterHandler struct {
	facets facetResolver
}

// NewFilterHandler constructs handler.
func NewFilterHandler(facets facetResolver) *FilterHandler {
	return &FilterHandler{facets: facets}
}

// Schools godoc
// @Summary List schools
// @Tags Filters
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /filters/schools [get]
func (h *FilterHandler) Schools(c *gin.Context) {
	writeFacetValues(c, h.facets.GetSchools(c.Request.Context()))
}

// Degrees godoc
// @Summary List degrees offered by the selected schools
// @Tags Filters
// @Produce json
// @Param school query []string false "School" collectionFormat(multi)
// @Success 200 {object} response.Envelope
// @Router /filters/degrees [get]
func (h *FilterHandler) Degrees(c *gin.Context) {
	sel := selectionFromRequest(c)
	writeFacetValues(c, h.facets.GetDegrees(c.Request.Context(), sel.Values(models.FacetSchool)))
}

// Semesters godoc
// @Summary List semesters
// @Tags Filters
// @Produce json
// @Param school query []string false "School" collectionFormat(multi)
// @Param degree query []string false "Degree" collectionFormat(multi)
// @Success 200 {object} response.Envelope
// @Router /filters/semesters [get]
func (h *FilterHandler) Semesters(c *gin.Context) {
	sel := selectionFromRequest(c)
	writeFacetValues(c, h.facets.GetSemesters(c.Request.Context(),
		sel.Values(models.FacetSchool), sel.Values(models.FacetDegree)))
}

// Years godoc
// @Summary List course years
// @Tags Filters
// @Produce json
// @Param school query []string false "School" collectionFormat(multi)
// @Param degree query []string false "Degree" collectionFormat(multi)
// @Param semester query []string false "Semester" collectionFormat(multi)
// @Success 200 {object} response.Envelope
// @Router /filters/years [get]
func (h *FilterHandler) Years(c *gin.Context) {
	sel := selectionFromRequest(c)
	writeFacetValues(c, h.facets.GetYears(c.Request.Context(),
		sel.Values(models.FacetSchool), sel.Values(models.FacetDegree), sel.Values(models.FacetSemester)))
}

// Subjects godoc
// @Summary List subject labels
// @Tags Filters
// @Produce json
// @Param school query []string false "School" collectionFormat(multi)
// @Param degree query []string false "Degree" collectionFormat(multi)
// @Param semester query []string false "Semester" collectionFormat(multi)
// @Param year query []string false "Year" collectionFormat(multi)
// @Success 200 {object} response.Envelope
// @Router /filters/subjects [get]
func (h *FilterHandler) Subjects(c *gin.Context) {
	sel := selectionFromRequest(c)
	writeFacetValues(c, h.facets.GetSubjects(c.Request.Context(),
		sel.Values(models.FacetSchool), sel.Values(models.FacetDegree),
		sel.Values(models.FacetSemester), sel.Values(models.FacetYear)))
}

// Options godoc
// @Summary Recompute selectors after a change
// @Description Recomputes every selector downstream of changed and drops selected values that are no longer offered.
// @Tags Filters
// @Produce json
// @Param changed query string false "Facet that changed; omit to recompute all"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /filters/options [get]
func (h *FilterHandler) Options(c *gin.Context) {
	var changed models.Facet
	if raw := c.Query("changed"); raw != "" {
		facet, ok := models.ParseFacet(raw)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown facet: "+raw))
			return
		}
		changed = facet
	}

	out := h.facets.Options(c.Request.Context(), selectionFromRequest(c), changed)
	resp := dto.FacetOptionsResponse{Options: out.Options, Selection: out.Selection}
	if len(out.Removed) > 0 {
		resp.Removed = out.Removed
	}
	response.JSON(c, http.StatusOK, resp, nil, map[string]interface{}{"fetch_failed": out.Failed})
}

func selectionFromRequest(c *gin.Context) models.FilterSelection {
	return models.FilterSelectionFromQuery(c.Request.URL.Query())
}

func writeFacetValues(c *gin.Context, res service.FacetValuesResult) {
	response.JSON(c, http.StatusOK, res.Values, nil, map[string]interface{}{
		"count":        len(res.Values),
		"fetch_failed": res.Failed,
	})
}
