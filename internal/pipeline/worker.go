package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"subhalo-pipeline/internal/analysis"
	"subhalo-pipeline/internal/model"
)

// Classify maps a processor error onto an item status.
func Classify(err error) model.Status {
	switch {
	case err == nil:
		return model.StatusOK
	case errors.Is(err, model.ErrMissingData):
		return model.StatusMissing
	case errors.Is(err, model.ErrTransient):
		return model.StatusTransient
	default:
		return model.StatusFailed
	}
}

// ProcessChunk runs proc over the valid slots of chunk, one at a time. An item
// failure becomes a NaN row; only cancellation of ctx stops the loop.
func ProcessChunk(ctx context.Context, rank int, proc analysis.Processor, chunk []model.Slot, logger *zap.Logger) (model.Partial, error) {
	ncol := len(proc.Columns())
	part := model.Partial{Rank: rank, Results: make(map[model.SubhaloID]model.ItemResult, len(chunk))}

	for _, slot := range chunk {
		if !slot.Valid {
			continue
		}
		if err := ctx.Err(); err != nil {
			return part, err
		}

		vals, err := proc.Process(ctx, slot.ID)
		if err == nil && len(vals) != ncol {
			err = fmt.Errorf("%s returned %d values for %d columns", proc.Name(), len(vals), ncol)
		}
		if err != nil && ctx.Err() != nil {
			return part, ctx.Err()
		}

		status := Classify(err)
		if status == model.StatusOK {
			part.Results[slot.ID] = model.ItemResult{ID: slot.ID, Status: status, Values: vals}
			logger.Debug("subhalo processed", zap.Stringer("subhalo", slot.ID))
			continue
		}

		part.Results[slot.ID] = model.NoData(slot.ID, status, ncol, err)
		logger.Warn("subhalo failed",
			zap.Stringer("subhalo", slot.ID),
			zap.Stringer("status", status),
			zap.Error(err))
	}
	return part, nil
}
