package model

import "time"

// Run statuses as stored in the ledger
const (
	RunPending   = "pending"
	RunLoading   = "loading"
	RunRunning   = "running"
	RunGathering = "gathering"
	RunExporting = "exporting"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// RunSpec is what a run was asked to do. It is stored alongside the run.
type RunSpec struct {
	Analysis string  `json:"analysis"`
	Workers  int     `json:"workers"`
	WorkList string  `json:"work_list"`
	Output   string  `json:"output"`
	Snapshot int     `json:"snapshot"`
	Redshift float64 `json:"redshift"`
}

// RunRecord is a ledger row.
type RunRecord struct {
	ID        string      `json:"id"`
	Spec      RunSpec     `json:"spec"`
	Status    string      `json:"status"`
	Metrics   *RunMetrics `json:"metrics,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}
