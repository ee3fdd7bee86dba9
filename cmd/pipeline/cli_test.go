package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subhalo-pipeline/internal/model"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"entropy", "ssfr", "spectra"} {
		assert.True(t, names[want], "missing command %s", want)
	}

	for _, flag := range []string{"config", "workers", "verbose"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), "missing flag %s", flag)
	}
}

func TestLoadConfig_WorkersFlagOverrides(t *testing.T) {
	t.Setenv("PIPELINE_WORKERS", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 3\n"), 0o644))

	oldPath, oldWorkers := configPath, workers
	t.Cleanup(func() { configPath, workers = oldPath, oldWorkers })

	configPath, workers = path, 0
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)

	workers = 8
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Workers)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entropy:\n  bins: 0\n"), 0o644))

	oldPath, oldWorkers := configPath, workers
	t.Cleanup(func() { configPath, workers = oldPath, oldWorkers })
	configPath, workers = path, 0

	_, err := loadConfig()
	assert.ErrorContains(t, err, "entropy.bins")
}

func TestSampleLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"12": {"mass": 1.5}, "5": {}, "7": null}`), 0o644))

	var sample model.Catalogue
	ids, err := sampleLoader(path, &sample)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.SubhaloID{5, 7, 12}, ids)
	assert.Len(t, sample, 3)
	assert.Equal(t, 1.5, sample[12]["mass"])
}
