package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-calendar-api/internal/models"
	"github.com/noah-isme/exam-calendar-api/internal/service"
	appErrors "github.com/noah-isme/exam-calendar-api/pkg/errors"
	"github.com/noah-isme/exam-calendar-api/pkg/export"
	"github.com/noah-isme/exam-calendar-api/pkg/response"
)

type examResolver interface {
	GetExams(ctx context.Context, filters models.FilterSelection) service.ExamQueryResult
}

// ExamHandler lists exams matching a filter selection.
type ExamHandler struct {
	exams  examResolver
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
}

// NewExamHandler constructs handler.
func NewExamHandler(exams examResolver, logger *zap.Logger) *ExamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExamHandler{
		exams:  exams,
		csv:    export.NewCSVExporter(export.WithBOM()),
		pdf:    export.NewPDFExporter(export.WithLandscape(), export.WithColumnWeights(service.ExamPDFColumnWeights)),
		logger: logger,
	}
}

// List godoc
// @Summary List exams
// @Description Facets are repeated query keys. An empty store reply and a failed lookup both yield an empty list; meta.fetch_failed tells them apart.
// @Tags Exams
// @Produce json
// @Produce text/csv
// @Produce application/pdf
// @Param school query []string false "School" collectionFormat(multi)
// @Param degree query []string false "Degree" collectionFormat(multi)
// @Param semester query []string false "Semester" collectionFormat(multi)
// @Param year query []string false "Year" collectionFormat(multi)
// @Param subject query []string false "Subject (substring match)" collectionFormat(multi)
// @Param acronym query []string false "Subject acronym" collectionFormat(multi)
// @Param format query string false "json, csv or pdf"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /exams [get]
func (h *ExamHandler) List(c *gin.Context) {
	format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", service.ExamFormatJSON)))
	if format != service.ExamFormatJSON && format != service.ExamFormatCSV && format != service.ExamFormatPDF {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be json, csv or pdf"))
		return
	}

	filters := models.FilterSelectionFromQuery(c.Request.URL.Query())
	result := h.exams.GetExams(c.Request.Context(), filters)

	if format == service.ExamFormatJSON {
		response.JSON(c, http.StatusOK, result.Exams, nil, map[string]interface{}{
			"count":        len(result.Exams),
			"fetch_failed": result.Failed,
		})
		return
	}

	if result.Failed {
		response.Error(c, appErrors.ErrUnavailable)
		return
	}

	dataset := service.ExamDataset(result.Exams)
	var (
		body        []byte
		err         error
		contentType string
	)
	switch format {
	case service.ExamFormatCSV:
		body, err = h.csv.Render(dataset)
		contentType = "text/csv; charset=utf-8"
	default:
		body, err = h.pdf.Render(dataset, service.ExamListTitle(filters))
		contentType = "application/pdf"
	}
	if err != nil {
		h.logger.Error("exam export failed", zap.String("format", format), zap.Error(err))
		response.Error(c, appErrors.ErrInternal)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="exams.%s"`, format))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, contentType, body)
}
