package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Facet is a filterable exam dimension.
type Facet string

const (
	FacetSchool   Facet = "school"
	FacetDegree   Facet = "degree"
	FacetSemester Facet = "semester"
	FacetYear     Facet = "year"
	FacetSubject  Facet = "subject"
	FacetAcronym  Facet = "acronym"
)

var allFacets = []Facet{FacetSchool, FacetDegree, FacetSemester, FacetYear, FacetSubject, FacetAcronym}

// facetDependencies declares which upstream selections narrow each selector.
var facetDependencies = map[Facet][]Facet{
	FacetSchool:   {},
	FacetDegree:   {FacetSchool},
	FacetSemester: {FacetSchool, FacetDegree},
	FacetYear:     {FacetSchool, FacetDegree, FacetSemester},
	FacetSubject:  {FacetSchool, FacetDegree, FacetSemester, FacetYear},
}

var optionOrder = []Facet{FacetSchool, FacetDegree, FacetSemester, FacetYear, FacetSubject}

// AllFacets lists every facet accepted in a selection.
func AllFacets() []Facet {
	return append([]Facet(nil), allFacets...)
}

// ParseFacet resolves a facet name case-insensitively.
func ParseFacet(raw string) (Facet, bool) {
	f := Facet(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range allFacets {
		if known == f {
			return f, true
		}
	}
	return "", false
}

// Dependencies returns the facets constraining f's option list.
func Dependencies(f Facet) []Facet {
	return append([]Facet(nil), facetDependencies[f]...)
}

// OptionOrder returns the cascading selectors in dependency order.
func OptionOrder() []Facet {
	return append([]Facet(nil), optionOrder...)
}

// Downstream lists, in dependency order, the selectors whose options depend on
// changed. An empty changed facet selects the whole order.
func Downstream(changed Facet) []Facet {
	if changed == "" {
		return OptionOrder()
	}
	affected := map[Facet]bool{changed: true}
	var out []Facet
	for _, f := range optionOrder {
		if f == changed {
			continue
		}
		for _, dep := range facetDependencies[f] {
			if affected[dep] {
				affected[f] = true
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// FilterSelection maps facets to the accepted values. A missing or empty
// facet does not constrain results.
type FilterSelection map[Facet][]string

// Values returns the selected values for f.
func (s FilterSelection) Values(f Facet) []string {
	return s[f]
}

// IsEmpty reports whether no facet constrains the selection.
func (s FilterSelection) IsEmpty() bool {
	for _, values := range s {
		if len(values) > 0 {
			return false
		}
	}
	return true
}

// Normalize trims, drops empty and duplicate values, canonicalizes year and
// semester values, and sorts each facet's values.
func (s FilterSelection) Normalize() FilterSelection {
	out := FilterSelection{}
	for f, values := range s {
		if _, ok := ParseFacet(string(f)); !ok {
			continue
		}
		seen := map[string]bool{}
		var kept []string
		for _, raw := range values {
			value := normalizeFacetInput(f, raw)
			if value == "" {
				continue
			}
			key := value
			if f == FacetSubject || f == FacetAcronym {
				key = strings.ToLower(value)
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			kept = append(kept, value)
		}
		if len(kept) == 0 {
			continue
		}
		sort.Strings(kept)
		out[f] = kept
	}
	return out
}

func normalizeFacetInput(f Facet, raw string) string {
	switch f {
	case FacetYear, FacetSemester:
		return NormalizeFacetValue(raw)
	default:
		return strings.TrimSpace(raw)
	}
}

// Restrict keeps only the listed facets.
func (s FilterSelection) Restrict(facets ...Facet) FilterSelection {
	out := FilterSelection{}
	for _, f := range facets {
		if values := s[f]; len(values) > 0 {
			out[f] = append([]string(nil), values...)
		}
	}
	return out
}

// Clone deep-copies the selection.
func (s FilterSelection) Clone() FilterSelection {
	out := make(FilterSelection, len(s))
	for f, values := range s {
		out[f] = append([]string(nil), values...)
	}
	return out
}

// Matches applies AND across facets and OR within a facet. The selection
// should be normalized first.
func (s FilterSelection) Matches(e Exam) bool {
	for f, values := range s {
		if len(values) == 0 {
			continue
		}
		if !matchAny(f, values, e) {
			return false
		}
	}
	return true
}

func matchAny(f Facet, values []string, e Exam) bool {
	for _, value := range values {
		switch f {
		case FacetSchool:
			if strings.TrimSpace(e.School) == value {
				return true
			}
		case FacetDegree:
			if strings.TrimSpace(e.Degree) == value {
				return true
			}
		case FacetYear:
			if NormalizeFacetValue(string(e.Year)) == value {
				return true
			}
		case FacetSemester:
			if NormalizeFacetValue(string(e.Semester)) == value {
				return true
			}
		case FacetSubject:
			if strings.Contains(strings.ToLower(e.SubjectLabel()), strings.ToLower(value)) {
				return true
			}
		case FacetAcronym:
			if strings.EqualFold(strings.TrimSpace(e.Acronym), value) {
				return true
			}
		default:
			return true
		}
	}
	return false
}

// FacetOf returns the exam's value for f as offered in option lists.
func FacetOf(f Facet, e Exam) string {
	switch f {
	case FacetSchool:
		return strings.TrimSpace(e.School)
	case FacetDegree:
		return strings.TrimSpace(e.Degree)
	case FacetYear:
		return NormalizeFacetValue(string(e.Year))
	case FacetSemester:
		return NormalizeFacetValue(string(e.Semester))
	case FacetSubject:
		return e.SubjectLabel()
	case FacetAcronym:
		return strings.TrimSpace(e.Acronym)
	default:
		return ""
	}
}

// FilterSelectionFromQuery reads one repeated key per facet.
func FilterSelectionFromQuery(q url.Values) FilterSelection {
	out := FilterSelection{}
	for _, f := range allFacets {
		out[f] = append(out[f], q[string(f)]...)
	}
	return out.Normalize()
}

// Query renders the selection as repeated query keys.
func (s FilterSelection) Query() url.Values {
	q := url.Values{}
	for _, f := range allFacets {
		for _, value := range s[f] {
			q.Add(string(f), value)
		}
	}
	return q
}

// Key is a canonical string form, stable across equivalent selections.
func (s FilterSelection) Key() string {
	return s.Normalize().Query().Encode()
}

// UnmarshalJSON accepts a value list or a single scalar per facet, where
// values may be strings or numbers.
func (s *FilterSelection) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("filters must be an object: %w", err)
	}
	out := FilterSelection{}
	for key, msg := range raw {
		f, ok := ParseFacet(key)
		if !ok {
			return fmt.Errorf("unknown filter %q", key)
		}
		var list []flexString
		if err := json.Unmarshal(msg, &list); err != nil {
			var single flexString
			if err := json.Unmarshal(msg, &single); err != nil {
				return fmt.Errorf("filter %q: %w", key, err)
			}
			list = []flexString{single}
		}
		for _, v := range list {
			out[f] = append(out[f], string(v))
		}
	}
	*s = out.Normalize()
	return nil
}

// Value stores the selection as JSON.
func (s FilterSelection) Value() (driver.Value, error) {
	if s == nil {
		s = FilterSelection{}
	}
	data, err := json.Marshal(map[Facet][]string(s))
	if err != nil {
		return nil, fmt.Errorf("marshal filter selection: %w", err)
	}
	return data, nil
}

// Scan loads a JSON selection.
func (s *FilterSelection) Scan(value interface{}) error {
	if value == nil {
		*s = FilterSelection{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for FilterSelection", value)
	}
	if len(data) == 0 {
		*s = FilterSelection{}
		return nil
	}
	return s.UnmarshalJSON(data)
}

type flexString string

func (v *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("value must be a string or number")
	}
	*v = flexString(n.String())
	return nil
}
