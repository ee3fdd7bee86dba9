package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"subhalo-pipeline/internal/model"
	"subhalo-pipeline/internal/store"
)

const runsPrefix = "/api/v1/runs/"

// RunStore is the part of the ledger the API reads.
type RunStore interface {
	ListRuns() ([]model.RunRecord, error)
	GetRun(runID string) (*model.RunRecord, error)
	GetRunErrors(runID string) ([]model.ItemError, error)
}

// RunHandler serves the run ledger.
type RunHandler struct {
	store  RunStore
	logger *zap.Logger
}

func NewRunHandler(s RunStore, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{store: s, logger: logger}
}

// ListRuns retrieves all recorded runs
// @Summary List all runs
// @Description Get every pipeline run in the ledger, newest first
// @Tags runs
// @Accept json
// @Produce json
// @Success 200 {array} model.RunRecord "List of runs"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs [get]
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListRuns()
	if err != nil {
		h.logger.Error("list runs", zap.Error(err))
		http.Error(w, "Failed to fetch runs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, runs)
}

// GetRun retrieves a specific run
// @Summary Get run
// @Description Retrieve the spec, status and metrics of a run
// @Tags runs
// @Accept json
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} model.RunRecord "Run details"
// @Failure 400 {object} map[string]interface{} "Invalid run ID"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id} [get]
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFromPath(w, r.URL.Path, "")
	if !ok {
		return
	}

	run, err := h.store.GetRun(runID)
	if err != nil {
		h.storeError(w, runID, err)
		return
	}

	writeJSON(w, run)
}

// GetRunErrors retrieves the failures recorded for a run
// @Summary Get run errors
// @Description Retrieve per-subhalo failures (missing, transient, failed) and run-level errors
// @Tags runs
// @Accept json
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run errors"
// @Failure 400 {object} map[string]interface{} "Invalid run ID"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs/{id}/errors [get]
func (h *RunHandler) GetRunErrors(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFromPath(w, r.URL.Path, "/errors")
	if !ok {
		return
	}

	errs, err := h.store.GetRunErrors(runID)
	if err != nil {
		h.storeError(w, runID, err)
		return
	}

	writeJSON(w, map[string]any{
		"run_id": runID,
		"errors": errs,
		"count":  len(errs),
	})
}

// runIDFromPath extracts the run id between the runs prefix and suffix.
func runIDFromPath(w http.ResponseWriter, path, suffix string) (string, bool) {
	if !strings.HasPrefix(path, runsPrefix) || !strings.HasSuffix(path, suffix) {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return "", false
	}

	runID := path[len(runsPrefix) : len(path)-len(suffix)]
	if runID == "" || strings.Contains(runID, "/") {
		http.Error(w, "Invalid run ID", http.StatusBadRequest)
		return "", false
	}
	return runID, true
}

func (h *RunHandler) storeError(w http.ResponseWriter, runID string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	h.logger.Error("read run", zap.String("run_id", runID), zap.Error(err))
	http.Error(w, "Failed to read run", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
