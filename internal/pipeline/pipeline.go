// Package pipeline runs one analysis over a work list of subhalos: the root
// rank loads and pads the list, scatters equal chunks to every rank, each
// rank processes its chunk, and the root gathers, merges and exports.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"subhalo-pipeline/internal/analysis"
	"subhalo-pipeline/internal/distribute"
	"subhalo-pipeline/internal/logging"
	"subhalo-pipeline/internal/model"
	"subhalo-pipeline/internal/store"
)

// Loader produces the global work list. It only runs on the root rank.
type Loader func(ctx context.Context) ([]model.SubhaloID, error)

// Finisher writes analysis-specific outputs derived from the merged table.
// It runs on the root after the table has been exported.
type Finisher func(ctx context.Context, t *model.Table, em *ExportManager) error

// Options describes one run.
type Options struct {
	Spec      model.RunSpec
	Processor analysis.Processor
	Load      Loader
	Finish    Finisher
	OutputDir string
	Output    string // table file name inside OutputDir
	Store     *store.Store
	Logger    *zap.Logger
}

// RunReport is what a successful run produced.
type RunReport struct {
	RunID   string
	Table   *model.Table
	Errors  []model.ItemError
	Metrics model.RunMetrics
}

// Run executes the pipeline with Spec.Workers ranks. Any structural failure
// on any rank cancels the others and fails the run; item failures only show
// up as NaN rows and item errors.
func Run(ctx context.Context, opts Options) (report *RunReport, err error) {
	if opts.Processor == nil || opts.Load == nil {
		return nil, errors.New("pipeline needs a processor and a loader")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	runID := uuid.New().String()
	workers := opts.Spec.Workers
	logger = logger.With(zap.String("run", runID), zap.String("analysis", opts.Processor.Name()))
	logger.Info("starting pipeline", zap.Int("workers", workers))

	if opts.Store != nil {
		if err := opts.Store.SaveRun(runID, opts.Spec); err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
		defer func() {
			if err != nil {
				opts.Store.UpdateRunStatus(runID, model.RunFailed)
				opts.Store.SaveRunError(runID, err)
			}
		}()
	}
	setStatus := func(status string) {
		if opts.Store == nil {
			return
		}
		if err := opts.Store.UpdateRunStatus(runID, status); err != nil {
			logger.Warn("failed to update run status", zap.String("status", status), zap.Error(err))
		}
	}

	comms, err := distribute.NewWorld(workers)
	if err != nil {
		return nil, err
	}

	tracker := NewPipelineTracker(runID, opts.Processor.Name(), workers)
	r := &runner{opts: opts, runID: runID, tracker: tracker, setStatus: setStatus}

	g, gctx := errgroup.WithContext(ctx)
	for _, comm := range comms {
		comm := comm
		g.Go(func() error {
			rl := logging.ForRank(logger, comm.Rank(), comm.Size())
			if err := r.rank(gctx, comm, rl); err != nil {
				return fmt.Errorf("rank %d: %w", comm.Rank(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("pipeline failed", zap.Error(err))
		return nil, err
	}

	tracker.Complete()
	metrics := tracker.GetMetrics()
	if opts.Store != nil {
		if err := opts.Store.SaveItemErrors(r.itemErrors); err != nil {
			return nil, fmt.Errorf("failed to record item errors: %w", err)
		}
		if err := opts.Store.SaveRunMetrics(runID, metrics); err != nil {
			return nil, fmt.Errorf("failed to record metrics: %w", err)
		}
	}
	setStatus(model.RunCompleted)

	logger.Info("pipeline completed",
		zap.Int("rows", r.table.Len()),
		zap.Any("status_count", metrics.StatusCount),
		zap.Duration("duration", metrics.Duration))

	return &RunReport{RunID: runID, Table: r.table, Errors: r.itemErrors, Metrics: metrics}, nil
}

type runner struct {
	opts      Options
	runID     string
	tracker   *PipelineTracker
	setStatus func(string)

	// root only
	table      *model.Table
	itemErrors []model.ItemError
}

// rank is the body every rank runs. Collectives are entered in the same
// order on every rank: BcastInt, Scatter, Gather.
func (r *runner) rank(ctx context.Context, comm distribute.Comm, logger *zap.Logger) error {
	root := comm.Rank() == distribute.Root

	var (
		chunks [][]model.Slot
		total  int
	)
	if root {
		var err error
		chunks, total, err = r.load(ctx, comm.Size(), logger)
		if err != nil {
			return err
		}
		r.tracker.StartStage(StageScatter)
	}

	total, err := comm.BcastInt(ctx, total)
	if err != nil {
		return err
	}
	chunk, err := comm.Scatter(ctx, chunks)
	if err != nil {
		return err
	}
	if root {
		r.tracker.EndStage(StageScatter, total)
		r.setStatus(model.RunRunning)
	}
	logger.Info("received work", zap.Int("slots", len(chunk)), zap.Int("total", total))

	r.tracker.StartStage(StageProcess)
	part, err := ProcessChunk(ctx, comm.Rank(), r.opts.Processor, chunk, logger)
	if err != nil {
		return err
	}
	r.tracker.EndStage(StageProcess, len(part.Results))
	logger.Info("chunk processed", zap.Int("items", len(part.Results)))

	r.tracker.StartStage(StageGather)
	parts, err := comm.Gather(ctx, part)
	if err != nil {
		return err
	}
	if !root {
		return nil
	}
	r.setStatus(model.RunGathering)

	table, err := Merge(r.opts.Processor.Columns(), parts, total)
	if err != nil {
		return err
	}
	r.tracker.EndStage(StageGather, table.Len())
	r.table = table
	r.itemErrors = ItemErrors(r.runID, parts)
	r.tracker.SetStatusCount(CountStatuses(table))

	return r.export(ctx, logger)
}

// load reads, validates, pads and splits the work list on the root.
func (r *runner) load(ctx context.Context, size int, logger *zap.Logger) ([][]model.Slot, int, error) {
	r.setStatus(model.RunLoading)
	r.tracker.StartStage(StageLoad)

	ids, err := r.opts.Load(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load work list: %w", err)
	}
	if err := ValidateWorkList(ids); err != nil {
		return nil, 0, err
	}
	slots, err := distribute.Pad(ids, size)
	if err != nil {
		return nil, 0, err
	}
	chunks, err := distribute.Split(slots, size)
	if err != nil {
		return nil, 0, err
	}

	padding := distribute.CountPadding(slots)
	r.tracker.SetWorkList(len(ids), padding)
	r.tracker.EndStage(StageLoad, len(ids))
	if padding > 0 {
		logger.Info("padded work list", zap.Int("items", len(ids)), zap.Int("padding", padding))
	}
	return chunks, len(ids), nil
}

func (r *runner) export(ctx context.Context, logger *zap.Logger) error {
	r.setStatus(model.RunExporting)
	r.tracker.StartStage(StageExport)

	em, err := NewExportManager(r.runID, r.opts.OutputDir, logger)
	if err != nil {
		return err
	}
	if _, err := em.ExportTable(r.opts.Output, r.table); err != nil {
		return err
	}
	if r.opts.Finish != nil {
		if err := r.opts.Finish(ctx, r.table, em); err != nil {
			return err
		}
	}

	r.tracker.AddOutputs(em.Paths()...)
	r.tracker.EndStage(StageExport, len(em.Paths()))
	return nil
}
