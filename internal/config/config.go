// Package config loads the run configuration: which simulation and snapshot
// to analyse, where inputs and outputs live, and per-analysis parameters.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"subhalo-pipeline/internal/model"
	"subhalo-pipeline/pkg/utils"
)

// Config holds all pipeline configuration.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Paths      PathsConfig      `yaml:"paths"`
	Workers    int              `yaml:"workers"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Entropy    EntropyConfig    `yaml:"entropy"`
	SSFR       SSFRConfig       `yaml:"ssfr"`
	Spectra    SpectraConfig    `yaml:"spectra"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SimulationConfig describes the dataset being analysed.
type SimulationConfig struct {
	APIURL   string  `yaml:"api_url"` // simulation root, e.g. .../api/Illustris-1/
	APIKey   string  `yaml:"api_key"`
	Snapshot int     `yaml:"snapshot"`
	Redshift float64 `yaml:"redshift"`
	LittleH  float64 `yaml:"little_h"`
	OmegaM   float64 `yaml:"omega_m"`
	OmegaL   float64 `yaml:"omega_l"`
	BoxSize  float64 `yaml:"box_size"` // ckpc/h, 0 asks the API
}

// ScaleFactor returns 1/(1+z) for the configured redshift.
func (s SimulationConfig) ScaleFactor() float64 { return 1 / (1 + s.Redshift) }

// PathsConfig locates inputs, caches and outputs.
type PathsConfig struct {
	WorkList       string `yaml:"work_list"` // CSV with an id column
	IDColumn       string `yaml:"id_column"`
	Delimiter      string `yaml:"delimiter"`
	Sample         string `yaml:"sample"` // JSON mapping keyed by subhalo id
	GasCutouts     string `yaml:"gas_cutouts"`
	StellarCutouts string `yaml:"stellar_cutouts"`
	OutputDir      string `yaml:"output_dir"`
	Ledger         string `yaml:"ledger"`
}

// FetchConfig configures the remote API client.
type FetchConfig struct {
	Timeout   string      `yaml:"timeout"`
	GasFields string      `yaml:"gas_fields"`
	Retry     RetryConfig `yaml:"retry"`
}

// RetryConfig is the YAML form of model.RetryConfig.
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelay      string  `yaml:"initial_delay"`
	MaxDelay          string  `yaml:"max_delay"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	Jitter            bool    `yaml:"jitter"`
}

// EntropyConfig configures the radial entropy profile.
type EntropyConfig struct {
	Bins   int     `yaml:"bins"`
	RMin   float64 `yaml:"r_min"` // in units of r200
	RMax   float64 `yaml:"r_max"`
	Output string  `yaml:"output"`
}

// SSFRConfig configures the specific star formation rate measurement.
type SSFRConfig struct {
	ApertureKpc float64 `yaml:"aperture_kpc"`
	Threshold   float64 `yaml:"threshold"` // 1/yr
	Output      string  `yaml:"output"`
	AllMapping  string  `yaml:"all_mapping"`
	CutMapping  string  `yaml:"cut_mapping"`
}

// SpectraConfig configures synthetic stellar spectra.
type SpectraConfig struct {
	Command          string             `yaml:"command"`
	Args             []string           `yaml:"args,omitempty"`
	UseInst          bool               `yaml:"use_inst"`
	InstSFR          string             `yaml:"inst_sfr"` // defaults to ssfr.all_mapping
	Tage             float64            `yaml:"tage"`     // Gyr
	ApertureKpc      float64            `yaml:"aperture_kpc"`
	SolarMetallicity float64            `yaml:"solar_metallicity"`
	Params           map[string]float64 `yaml:"params"`
	OutputDir        string             `yaml:"output_dir"`
	Output           string             `yaml:"output"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// DefaultConfig returns the configuration for Illustris-1 at z=0.
func DefaultConfig() *Config {
	return &Config{
		Simulation: SimulationConfig{
			APIURL:   "http://www.illustris-project.org/api/Illustris-1/",
			Snapshot: 135,
			Redshift: 0,
			LittleH:  0.704,
			OmegaM:   0.2726,
			OmegaL:   0.7274,
		},
		Paths: PathsConfig{
			WorkList:       "parent_particle_data.csv",
			IDColumn:       "id",
			Delimiter:      ",",
			Sample:         "sample.json",
			GasCutouts:     "gas_cutouts",
			StellarCutouts: "stellar_cutouts",
			OutputDir:      "output",
			Ledger:         "pipeline.db",
		},
		Workers: 4,
		Fetch: FetchConfig{
			Timeout:   "2m",
			GasFields: "Coordinates,Density,Masses,NeutralHydrogenAbundance,StarFormationRate,InternalEnergy,ElectronAbundance",
			Retry: RetryConfig{
				MaxAttempts:       3,
				InitialDelay:      "1s",
				MaxDelay:          "30s",
				BackoffMultiplier: 2.0,
				Jitter:            true,
			},
		},
		Entropy: EntropyConfig{
			Bins:   100,
			RMin:   0.1,
			RMax:   1.0,
			Output: "entropy_profiles.csv",
		},
		SSFR: SSFRConfig{
			ApertureKpc: 2,
			Threshold:   1e-11,
			Output:      "inst_ssfr.csv",
			AllMapping:  "all_inst_ssfr.json",
			CutMapping:  "cut_inst_ssfr.json",
		},
		Spectra: SpectraConfig{
			UseInst:          true,
			Tage:             14.0,
			ApertureKpc:      2,
			SolarMetallicity: 0.0127,
			// Charlot & Fall dust, parameters from Torrey+15; Chabrier IMF
			Params: map[string]float64{
				"add_agb_dust_model":   1,
				"add_dust_emission":    0,
				"add_igm_absorption":   0,
				"add_neb_emission":     1,
				"add_neb_continuum":    1,
				"add_stellar_remnants": 0,
				"dust_type":            0,
				"dust_tesc":            7.477121254719663,
				"dust1":                1,
				"dust2":                1.0 / 3.0,
				"imf_type":             1,
			},
			OutputDir: "spectra",
			Output:    "spectra.csv",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("TNG_API_KEY"); key != "" {
		c.Simulation.APIKey = key
	}
	if path := os.Getenv("PIPELINE_LEDGER"); path != "" {
		c.Paths.Ledger = path
	}
	if w := os.Getenv("PIPELINE_WORKERS"); w != "" {
		if n, err := strconv.Atoi(w); err == nil && n > 0 {
			c.Workers = n
		}
	}
}

// Validate checks the values every analysis relies on.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.Simulation.APIURL == "" {
		errs = append(errs, errors.New("simulation.api_url is required"))
	}
	if c.Simulation.LittleH <= 0 {
		errs = append(errs, fmt.Errorf("simulation.little_h must be positive, got %g", c.Simulation.LittleH))
	}
	if c.Simulation.Redshift < 0 {
		errs = append(errs, fmt.Errorf("simulation.redshift must be >= 0, got %g", c.Simulation.Redshift))
	}
	if c.Entropy.Bins <= 0 {
		errs = append(errs, fmt.Errorf("entropy.bins must be positive, got %d", c.Entropy.Bins))
	}
	if c.Entropy.RMin <= 0 || c.Entropy.RMax <= c.Entropy.RMin {
		errs = append(errs, fmt.Errorf("entropy radial range [%g, %g] is invalid", c.Entropy.RMin, c.Entropy.RMax))
	}
	return errors.Join(errs...)
}

// Retry converts the YAML retry block into a model.RetryConfig.
func (c *Config) Retry() model.RetryConfig {
	r := c.Fetch.Retry
	def := model.DefaultRetryConfig
	out := model.RetryConfig{
		MaxAttempts:       r.MaxAttempts,
		InitialDelay:      utils.ParseDuration(r.InitialDelay, def.InitialDelay),
		MaxDelay:          utils.ParseDuration(r.MaxDelay, def.MaxDelay),
		BackoffMultiplier: r.BackoffMultiplier,
		Jitter:            r.Jitter,
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 1
	}
	if out.BackoffMultiplier < 1 {
		out.BackoffMultiplier = 1
	}
	return out
}

// FetchTimeout returns the per-request timeout.
func (c *Config) FetchTimeout() time.Duration {
	return utils.ParseDuration(c.Fetch.Timeout, 2*time.Minute)
}

// InstSFRPath returns where the spectra run reads instantaneous SFRs from.
func (c *Config) InstSFRPath() string {
	if c.Spectra.InstSFR != "" {
		return c.Spectra.InstSFR
	}
	return filepath.Join(c.Paths.OutputDir, filepath.Base(c.SSFR.AllMapping))
}
