package voting

import (
	"fmt"

	"whiteboardAPI/internal/apperr"
)

// FilterSpec is one entry of the session-wide filter catalog.
type FilterSpec struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Strength float64 `json:"strength"`
}

// DefaultCatalog is offered to every session unless configured otherwise.
var DefaultCatalog = []FilterSpec{
	{ID: "sepia", Name: "Sepia", Strength: 0.8},
	{ID: "grayscale", Name: "Grayscale", Strength: 1},
	{ID: "contrast", Name: "High contrast", Strength: 0.6},
	{ID: "blur", Name: "Soft blur", Strength: 0.4},
	{ID: "vintage", Name: "Vintage", Strength: 0.7},
}

const DefaultThreshold = 0.5

// Stream is an opaque per-participant media handle. The engine never looks inside it.
type Stream any

// MediaEffects applies filters to participant streams. RemoveFilters must fully
// undo whatever was applied before, so that filters never stack.
type MediaEffects interface {
	ApplyFilter(stream Stream, filterID string, strength float64) error
	RemoveFilters(stream Stream) error
}

// NoEffects is used when a session has no media attached.
type NoEffects struct{}

func (NoEffects) ApplyFilter(Stream, string, float64) error { return nil }
func (NoEffects) RemoveFilters(Stream) error               { return nil }

func validateCatalog(catalog []FilterSpec) error {
	if len(catalog) == 0 {
		return fmt.Errorf("%w: empty filter catalog", apperr.ErrValidation)
	}
	seen := make(map[string]struct{}, len(catalog))
	for _, f := range catalog {
		if f.ID == "" {
			return fmt.Errorf("%w: filter without id", apperr.ErrValidation)
		}
		if _, dup := seen[f.ID]; dup {
			return fmt.Errorf("%w: duplicate filter %q", apperr.ErrValidation, f.ID)
		}
		if f.Strength < 0 || f.Strength > 1 {
			return fmt.Errorf("%w: filter %q strength %.2f outside 0..1", apperr.ErrValidation, f.ID, f.Strength)
		}
		seen[f.ID] = struct{}{}
	}
	return nil
}
