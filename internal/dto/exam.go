package dto

import "github.com/noah-isme/exam-calendar-api/internal/models"

// FacetOptionsResponse carries recomputed selector options and the pruned selection.
type FacetOptionsResponse struct {
	Options   map[models.Facet][]string `json:"options"`
	Selection models.FilterSelection    `json:"selection"`
	Removed   map[models.Facet][]string `json:"removed,omitempty"`
}
