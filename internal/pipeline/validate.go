package pipeline

import (
	"fmt"

	"subhalo-pipeline/internal/model"
)

// ValidateWorkList checks the root's work list before anything is
// distributed: it must be non-empty, with non-negative ids, each listed once.
func ValidateWorkList(ids []model.SubhaloID) error {
	if len(ids) == 0 {
		return model.ErrEmptyWorkList
	}

	seen := make(map[model.SubhaloID]int, len(ids))
	for i, id := range ids {
		if id < 0 {
			return fmt.Errorf("%w: %d at position %d", model.ErrNegativeID, id, i)
		}
		if first, dup := seen[id]; dup {
			return fmt.Errorf("%w: %d at positions %d and %d", model.ErrDuplicateID, id, first, i)
		}
		seen[id] = i
	}
	return nil
}
