package model

import "time"

// RunMetrics summarises one pipeline run
type RunMetrics struct {
	RunID       string                  `json:"run_id"`
	Analysis    string                  `json:"analysis"`
	Workers     int                     `json:"workers"`
	WorkItems   int                     `json:"work_items"`
	Padding     int                     `json:"padding"`
	StartTime   time.Time               `json:"start_time"`
	EndTime     time.Time               `json:"end_time"`
	Duration    time.Duration           `json:"duration"`
	Stages      map[string]StageMetrics `json:"stages"`
	StatusCount map[string]int          `json:"status_count"`
	Outputs     []string                `json:"outputs"`
}

// StageMetrics represents timing for one pipeline stage
type StageMetrics struct {
	StageName string        `json:"stage_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Items     int           `json:"items"`
}

// ItemError is a recorded per-subhalo failure
type ItemError struct {
	RunID     string    `json:"run_id"`
	SubhaloID SubhaloID `json:"subhalo_id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
