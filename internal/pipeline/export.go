package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"subhalo-pipeline/internal/model"
	"subhalo-pipeline/pkg/utils"
)

// ExportResult represents the result of an export operation
type ExportResult struct {
	Type        string    `json:"type"` // "csv", "json"
	Path        string    `json:"path"`
	RecordCount int       `json:"record_count"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	ExportedAt  time.Time `json:"exported_at"`
}

// ExportManager writes run outputs below one directory
type ExportManager struct {
	RunID   string
	Output  *utils.OutputManager
	Results []ExportResult
	logger  *zap.Logger
}

// NewExportManager creates an export manager writing into dir.
func NewExportManager(runID, dir string, logger *zap.Logger) (*ExportManager, error) {
	om := utils.NewOutputManager(dir)
	if err := om.EnsureOutputDirExists(); err != nil {
		return nil, err
	}
	return &ExportManager{RunID: runID, Output: om, logger: logger}, nil
}

// ExportTable writes the table as CSV to fileName inside the output directory.
func (em *ExportManager) ExportTable(fileName string, t *model.Table) (string, error) {
	path := em.Output.Path(fileName)
	err := writeAtomic(path, func(f *os.File) error { return writeTableCSV(f, t) })
	em.record("csv", path, t.Len(), err)
	return path, err
}

// ExportJSON writes v as indented JSON to fileName inside the output directory.
func (em *ExportManager) ExportJSON(fileName string, v any, count int) (string, error) {
	path := em.Output.Path(fileName)
	err := writeAtomic(path, func(f *os.File) error {
		encoder := json.NewEncoder(f)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	})
	em.record("json", path, count, err)
	return path, err
}

// Paths returns the files written successfully so far.
func (em *ExportManager) Paths() []string {
	var paths []string
	for _, r := range em.Results {
		if r.Success {
			paths = append(paths, r.Path)
		}
	}
	return paths
}

func (em *ExportManager) record(kind, path string, count int, err error) {
	result := ExportResult{
		Type:        kind,
		Path:        path,
		RecordCount: count,
		Success:     err == nil,
		ExportedAt:  time.Now(),
	}
	if err != nil {
		result.Error = err.Error()
		em.logger.Error("export failed", zap.String("path", path), zap.Error(err))
	} else {
		em.logger.Info("exported", zap.String("type", kind), zap.String("path", path), zap.Int("records", count))
	}
	em.Results = append(em.Results, result)
}

// writeTableCSV writes a SubID column followed by the table columns. NaN is
// written as nan.
func writeTableCSV(f *os.File, t *model.Table) error {
	writer := csv.NewWriter(f)

	header := append([]string{"SubID"}, t.Columns...)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	row := make([]string, len(header))
	for _, r := range t.Rows {
		row[0] = r.ID.String()
		for i, v := range r.Values {
			row[i+1] = formatValue(v)
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r.ID, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// TableMapping turns a table into {id: {column: value}} with NaN as null.
func TableMapping(t *model.Table) map[model.SubhaloID]map[string]model.Float {
	out := make(map[model.SubhaloID]map[string]model.Float, t.Len())
	for _, r := range t.Rows {
		m := make(map[string]model.Float, len(t.Columns))
		for i, c := range t.Columns {
			m[c] = model.Float(r.Values[i])
		}
		out[r.ID] = m
	}
	return out
}

// writeAtomic creates path through a temporary file in the same directory.
func writeAtomic(path string, write func(*os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
