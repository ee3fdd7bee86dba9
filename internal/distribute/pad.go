// Package distribute splits a work list across a fixed pool of ranks and
// moves chunks and partial results between them.
package distribute

import (
	"fmt"

	"subhalo-pipeline/internal/model"
)

// PaddedLen returns the smallest multiple of size that is >= n.
func PaddedLen(n, size int) int {
	if size <= 0 || n <= 0 {
		return 0
	}
	return (n + size - 1) / size * size
}

// Pad wraps ids in slots and appends padding until the length divides evenly
// by size. Padding always goes at the end, so the last ranks are the ones that
// receive empty slots.
func Pad(ids []model.SubhaloID, size int) ([]model.Slot, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", model.ErrInvalidSize, size)
	}
	if len(ids) == 0 {
		return nil, model.ErrEmptyWorkList
	}

	total := PaddedLen(len(ids), size)
	slots := make([]model.Slot, total)
	for i, id := range ids {
		slots[i] = model.Item(id)
	}
	return slots, nil
}

// Split cuts padded slots into size contiguous chunks of equal length.
func Split(slots []model.Slot, size int) ([][]model.Slot, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", model.ErrInvalidSize, size)
	}
	if len(slots)%size != 0 {
		return nil, fmt.Errorf("%w: %d slots cannot be split across %d ranks", model.ErrInvalidSize, len(slots), size)
	}

	per := len(slots) / size
	chunks := make([][]model.Slot, size)
	for r := range chunks {
		chunks[r] = slots[r*per : (r+1)*per : (r+1)*per]
	}
	return chunks, nil
}

// CountPadding returns how many slots carry no item.
func CountPadding(slots []model.Slot) int {
	n := 0
	for _, s := range slots {
		if !s.Valid {
			n++
		}
	}
	return n
}
