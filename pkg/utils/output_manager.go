package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// OutputManager handles output file organization and path management
type OutputManager struct {
	BaseOutputDir string
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
	}
}

// EnsureOutputDirExists ensures the base output directory exists
func (om *OutputManager) EnsureOutputDirExists() error {
	if err := os.MkdirAll(om.BaseOutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// Path returns fileName inside the base directory. Any directory part of
// fileName is dropped.
func (om *OutputManager) Path(fileName string) string {
	return filepath.Join(om.BaseOutputDir, filepath.Base(fileName))
}

// SubDir creates and returns a directory below the base directory
func (om *OutputManager) SubDir(name string) (string, error) {
	dir := filepath.Join(om.BaseOutputDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return dir, nil
}

// SpectrumFile returns the per-subhalo spectrum path, zero padded to six digits
func (om *OutputManager) SpectrumFile(dir string, id int64) string {
	return filepath.Join(dir, fmt.Sprintf("spectra_%06d.txt", id))
}

// CutoutFile returns the cache path of a subhalo cutout inside dir
func CutoutFile(dir string, id int64) string {
	return filepath.Join(dir, fmt.Sprintf("cutout_%d.hdf5", id))
}

// Exists reports whether path names an existing regular file
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
