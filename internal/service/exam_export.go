package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/exam-calendar-api/internal/models"
	"github.com/noah-isme/exam-calendar-api/pkg/export"
)

// Exam list export formats.
const (
	ExamFormatJSON = "json"
	ExamFormatCSV  = "csv"
	ExamFormatPDF  = "pdf"
)

var examExportHeaders = []string{"Date", "Time", "Duration (min)", "Subject", "School", "Degree", "Year", "Semester", "Location"}

// ExamPDFColumnWeights widens the subject and location columns.
var ExamPDFColumnWeights = map[string]float64{"Subject": 3, "Location": 1.5, "Duration (min)": 0.8}

// ExamDataset lays exams out as an export table.
func ExamDataset(exams []models.Exam) export.Dataset {
	rows := make([]map[string]string, 0, len(exams))
	for _, e := range exams {
		rows = append(rows, map[string]string{
			"Date":           e.Date,
			"Time":           e.Time,
			"Duration (min)": strconv.Itoa(e.DurationOrDefault()),
			"Subject":        e.SubjectLabel(),
			"School":         e.School,
			"Degree":         e.Degree,
			"Year":           string(e.Year),
			"Semester":       string(e.Semester),
			"Location":       e.Location,
		})
	}
	return export.Dataset{Headers: examExportHeaders, Rows: rows}
}

// ExamListTitle summarises the selection for a document heading.
func ExamListTitle(filters models.FilterSelection) string {
	filters = filters.Normalize()
	var parts []string
	for _, f := range models.AllFacets() {
		if values := filters.Values(f); len(values) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", f, strings.Join(values, ", ")))
		}
	}
	if len(parts) == 0 {
		return "Exams"
	}
	return "Exams - " + strings.Join(parts, "; ")
}
