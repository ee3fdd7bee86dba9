package pipeline

import (
	"maps"
	"slices"
	"sync"
	"time"

	"subhalo-pipeline/internal/model"
)

// Stage names.
const (
	StageLoad    = "load"
	StageScatter = "scatter"
	StageProcess = "process"
	StageGather  = "gather"
	StageExport  = "export"
)

// PipelineTracker records stage timings and item outcomes for one run. It is
// safe for concurrent use by all ranks.
type PipelineTracker struct {
	mu      sync.Mutex
	metrics model.RunMetrics
	open    map[string]time.Time
	now     func() time.Time
}

// NewPipelineTracker creates a tracker for a run.
func NewPipelineTracker(runID, analysis string, workers int) *PipelineTracker {
	pt := &PipelineTracker{
		open: make(map[string]time.Time),
		now:  time.Now,
	}
	pt.metrics = model.RunMetrics{
		RunID:       runID,
		Analysis:    analysis,
		Workers:     workers,
		StartTime:   pt.now(),
		Stages:      make(map[string]model.StageMetrics),
		StatusCount: make(map[string]int),
	}
	return pt
}

// StartStage marks the beginning of a stage. Ranks may each start the same
// stage; the earliest start wins.
func (pt *PipelineTracker) StartStage(stage string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if _, ok := pt.open[stage]; !ok {
		pt.open[stage] = pt.now()
	}
}

// EndStage marks the end of a stage and adds items to its count. The latest
// end wins.
func (pt *PipelineTracker) EndStage(stage string, items int) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	start, ok := pt.open[stage]
	end := pt.now()
	if !ok {
		start = end
	}
	sm := pt.metrics.Stages[stage]
	sm.StageName = stage
	if sm.StartTime.IsZero() || start.Before(sm.StartTime) {
		sm.StartTime = start
	}
	if end.After(sm.EndTime) {
		sm.EndTime = end
	}
	sm.Duration = sm.EndTime.Sub(sm.StartTime)
	sm.Items += items
	pt.metrics.Stages[stage] = sm
}

// SetWorkList records the unpadded work list length and the padding added.
func (pt *PipelineTracker) SetWorkList(items, padding int) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.metrics.WorkItems = items
	pt.metrics.Padding = padding
}

// SetStatusCount replaces the per-status item counts.
func (pt *PipelineTracker) SetStatusCount(counts map[string]int) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.metrics.StatusCount = maps.Clone(counts)
}

// AddOutputs records files written by the run.
func (pt *PipelineTracker) AddOutputs(paths ...string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.metrics.Outputs = append(pt.metrics.Outputs, paths...)
}

// Complete stamps the end of the run.
func (pt *PipelineTracker) Complete() {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.metrics.EndTime = pt.now()
	pt.metrics.Duration = pt.metrics.EndTime.Sub(pt.metrics.StartTime)
}

// GetMetrics returns a copy of the current metrics.
func (pt *PipelineTracker) GetMetrics() model.RunMetrics {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	m := pt.metrics
	m.Stages = maps.Clone(pt.metrics.Stages)
	m.StatusCount = maps.Clone(pt.metrics.StatusCount)
	m.Outputs = slices.Clone(pt.metrics.Outputs)
	return m
}
