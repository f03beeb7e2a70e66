package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultExamDurationMinutes applies when an exam has no usable duration.
const DefaultExamDurationMinutes = 120

// Exam is a read-only scheduled exam record. Date and Time are wall-clock
// values in Europe/Madrid.
type Exam struct {
	ID              string     `db:"id" json:"id" yaml:"id"`
	Date            string     `db:"exam_date" json:"date" yaml:"date"`
	Time            string     `db:"exam_time" json:"time" yaml:"time"`
	DurationMinutes *int       `db:"duration_minutes" json:"duration_minutes,omitempty" yaml:"-"`
	Subject         string     `db:"subject" json:"subject" yaml:"subject"`
	Acronym         string     `db:"acronym" json:"acronym" yaml:"acronym"`
	School          string     `db:"school" json:"school" yaml:"school"`
	Degree          string     `db:"degree" json:"degree" yaml:"degree"`
	Year            FacetValue `db:"year" json:"year" yaml:"year"`
	Semester        FacetValue `db:"semester" json:"semester" yaml:"semester"`
	Location        string     `db:"location" json:"location" yaml:"location"`
}

// SubjectLabel renders "subject (acronym)", or the bare subject without an acronym.
func (e Exam) SubjectLabel() string {
	subject := strings.TrimSpace(e.Subject)
	acronym := strings.TrimSpace(e.Acronym)
	if acronym == "" {
		return subject
	}
	return fmt.Sprintf("%s (%s)", subject, acronym)
}

// DurationOrDefault returns the exam duration in minutes, falling back to the default.
func (e Exam) DurationOrDefault() int {
	if e.DurationMinutes == nil || *e.DurationMinutes <= 0 {
		return DefaultExamDurationMinutes
	}
	return *e.DurationMinutes
}

// Describe composes a multi-line description, skipping empty parts.
func (e Exam) Describe() string {
	parts := []struct{ label, value string }{
		{"Subject", e.SubjectLabel()},
		{"School", e.School},
		{"Degree", e.Degree},
		{"Year", string(e.Year)},
		{"Semester", string(e.Semester)},
	}
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p.value); v != "" {
			lines = append(lines, p.label+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}

// ParseDurationMinutes accepts ints, floats and numeric strings. Anything else
// yields nil so the default duration applies.
func ParseDurationMinutes(raw interface{}) *int {
	var minutes int
	switch v := raw.(type) {
	case int:
		minutes = v
	case int64:
		minutes = int(v)
	case float64:
		minutes = int(v)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		minutes = int(n)
	default:
		return nil
	}
	if minutes <= 0 {
		return nil
	}
	return &minutes
}

// FacetValue holds year and semester values that upstream data encodes
// either as numbers or strings.
type FacetValue string

// NormalizeFacetValue renders integral numbers without a fraction and upper-cases the rest.
func NormalizeFacetValue(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strings.ToUpper(value)
}

// UnmarshalJSON accepts JSON strings and numbers.
func (v *FacetValue) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = FacetValue(NormalizeFacetValue(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("facet value must be a string or number: %w", err)
	}
	*v = FacetValue(NormalizeFacetValue(n.String()))
	return nil
}

// UnmarshalYAML accepts YAML scalars of any type.
func (v *FacetValue) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	if raw == nil {
		*v = ""
		return nil
	}
	*v = FacetValue(NormalizeFacetValue(fmt.Sprint(raw)))
	return nil
}

func (v FacetValue) String() string {
	return string(v)
}
