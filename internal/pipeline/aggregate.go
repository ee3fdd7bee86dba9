package pipeline

import (
	"cmp"
	"fmt"
	"slices"

	"subhalo-pipeline/internal/model"
)

// Merge combines the partials gathered from every rank into one table sorted
// by id. A subhalo reported twice is a collision; a table whose size differs
// from the unpadded work list length is a row mismatch. Both are fatal.
func Merge(columns []string, parts []model.Partial, expected int) (*model.Table, error) {
	owner := make(map[model.SubhaloID]int)
	rows := make([]model.Row, 0, expected)

	for _, part := range parts {
		for id, res := range part.Results {
			if prev, exists := owner[id]; exists {
				return nil, fmt.Errorf("%w: subhalo %d from ranks %d and %d", model.ErrCollision, id, prev, part.Rank)
			}
			if len(res.Values) != len(columns) {
				return nil, fmt.Errorf("subhalo %d from rank %d has %d values for %d columns", id, part.Rank, len(res.Values), len(columns))
			}
			owner[id] = part.Rank
			rows = append(rows, model.Row{ID: id, Status: res.Status, Values: res.Values})
		}
	}

	if len(rows) != expected {
		return nil, fmt.Errorf("%w: got %d rows, want %d", model.ErrRowMismatch, len(rows), expected)
	}

	slices.SortFunc(rows, func(a, b model.Row) int { return cmp.Compare(a.ID, b.ID) })
	return &model.Table{Columns: columns, Rows: rows}, nil
}

// CountStatuses tallies rows per status name.
func CountStatuses(t *model.Table) map[string]int {
	counts := make(map[string]int)
	for _, row := range t.Rows {
		counts[row.Status.String()]++
	}
	return counts
}

// ItemErrors lists the failures recorded in the partials, ordered by id.
func ItemErrors(runID string, parts []model.Partial) []model.ItemError {
	var errs []model.ItemError
	for _, part := range parts {
		for id, res := range part.Results {
			if res.Status == model.StatusOK {
				continue
			}
			errs = append(errs, model.ItemError{
				RunID:     runID,
				SubhaloID: id,
				Kind:      res.Status.String(),
				Message:   res.Err,
			})
		}
	}
	slices.SortFunc(errs, func(a, b model.ItemError) int { return cmp.Compare(a.SubhaloID, b.SubhaloID) })
	return errs
}
