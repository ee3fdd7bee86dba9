package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TNG_API_KEY", "")
	t.Setenv("PIPELINE_LEDGER", "")
	t.Setenv("PIPELINE_WORKERS", "")
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_OverlaysYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	yml := `
simulation:
  api_url: https://www.tng-project.org/api/TNG100-1/
  snapshot: 99
  redshift: 0.5
  little_h: 0.6774
workers: 8
entropy:
  bins: 20
fetch:
  retry:
    max_attempts: 5
    initial_delay: 10ms
    max_delay: 1s
    backoff_multiplier: 3
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 99, cfg.Simulation.Snapshot)
	assert.InDelta(t, 1/1.5, cfg.Simulation.ScaleFactor(), 1e-12)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 20, cfg.Entropy.Bins)
	// untouched keys keep their defaults
	assert.Equal(t, 0.1, cfg.Entropy.RMin)
	assert.Equal(t, "gas_cutouts", cfg.Paths.GasCutouts)

	r := cfg.Retry()
	assert.Equal(t, 5, r.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, r.InitialDelay)
	assert.Equal(t, time.Second, r.MaxDelay)
	assert.Equal(t, 3.0, r.BackoffMultiplier)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: [1, 2"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TNG_API_KEY", "secret")
	t.Setenv("PIPELINE_LEDGER", "/tmp/ledger.db")
	t.Setenv("PIPELINE_WORKERS", "16")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	assert.Equal(t, "secret", cfg.Simulation.APIKey)
	assert.Equal(t, "/tmp/ledger.db", cfg.Paths.Ledger)
	assert.Equal(t, 16, cfg.Workers)

	t.Setenv("PIPELINE_WORKERS", "zero")
	cfg = DefaultConfig()
	cfg.applyEnvOverrides()
	assert.Equal(t, 4, cfg.Workers)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 0
	cfg.Entropy.RMax = 0.05
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers")
	assert.Contains(t, err.Error(), "radial range")
}

func TestRetry_ClampsNonsense(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fetch.Retry = RetryConfig{MaxAttempts: 0, BackoffMultiplier: 0.2, InitialDelay: "bogus"}
	r := cfg.Retry()
	assert.Equal(t, 1, r.MaxAttempts)
	assert.Equal(t, 1.0, r.BackoffMultiplier)
	assert.Equal(t, time.Second, r.InitialDelay)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "pipeline.yaml")
	cfg := DefaultConfig()
	cfg.Workers = 3
	require.NoError(t, cfg.Save(path))

	clearEnv(t)
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestInstSFRPath(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join("output", "all_inst_ssfr.json"), cfg.InstSFRPath())
	cfg.Spectra.InstSFR = "elsewhere.json"
	assert.Equal(t, "elsewhere.json", cfg.InstSFRPath())
}
