package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"subhalo-pipeline/internal/analysis"
	"subhalo-pipeline/internal/astro"
	"subhalo-pipeline/internal/config"
	"subhalo-pipeline/internal/logging"
	"subhalo-pipeline/internal/model"
	"subhalo-pipeline/internal/pipeline"
	"subhalo-pipeline/internal/snapshot"
	"subhalo-pipeline/internal/store"
	"subhalo-pipeline/internal/tng"
)

// session is what every analysis command sets up before running.
type session struct {
	cfg    *config.Config
	logger *zap.Logger
	client *tng.Client
	env    *analysis.Env
	store  *store.Store
}

func (s *session) Close() {
	if s.store != nil {
		s.store.Close()
	}
	s.logger.Sync()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return cfg, nil
}

func newSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging, verbose)
	if err != nil {
		return nil, err
	}

	sim := cfg.Simulation
	client := tng.NewClient(sim.APIURL, sim.APIKey, sim.Snapshot, cfg.FetchTimeout(), cfg.Retry(), logger)

	boxSize := sim.BoxSize
	if boxSize <= 0 {
		info, err := client.Simulation(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch simulation box size: %w", err)
		}
		boxSize = info.BoxSize
		logger.Info("box size from API", zap.String("simulation", info.Name), zap.Float64("box_size", boxSize))
	}

	st, err := store.Open(cfg.Paths.Ledger)
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:    cfg,
		logger: logger,
		client: client,
		store:  st,
		env: &analysis.Env{
			Fetcher:  client,
			Reader:   snapshot.HDF5{},
			Cosmo:    astro.Cosmology{LittleH: sim.LittleH, OmegaM: sim.OmegaM, OmegaL: sim.OmegaL},
			Redshift: sim.Redshift,
			BoxSize:  boxSize,
			Logger:   logger,
		},
	}, nil
}

func (s *session) options(proc analysis.Processor, workList, output string, load pipeline.Loader) pipeline.Options {
	return pipeline.Options{
		Spec: model.RunSpec{
			Analysis: proc.Name(),
			Workers:  s.cfg.Workers,
			WorkList: workList,
			Output:   output,
			Snapshot: s.cfg.Simulation.Snapshot,
			Redshift: s.cfg.Simulation.Redshift,
		},
		Processor: proc,
		Load:      load,
		OutputDir: s.cfg.Paths.OutputDir,
		Output:    output,
		Store:     s.store,
		Logger:    s.logger,
	}
}

func (s *session) run(ctx context.Context, opts pipeline.Options) error {
	report, err := pipeline.Run(ctx, opts)
	if err != nil {
		return err
	}
	s.logger.Info("run finished",
		zap.String("run", report.RunID),
		zap.Int("rows", report.Table.Len()),
		zap.Int("failed_items", len(report.Errors)),
		zap.Strings("outputs", report.Metrics.Outputs))
	return nil
}

// sampleLoader loads the sample catalogue once and hands its ids to the
// pipeline. The catalogue stays available to the finisher.
func sampleLoader(path string, sample *model.Catalogue) pipeline.Loader {
	return func(context.Context) ([]model.SubhaloID, error) {
		cat, err := pipeline.LoadSample(path)
		if err != nil {
			return nil, err
		}
		*sample = cat
		return cat.IDs(), nil
	}
}

func runEntropy(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	cfg := s.cfg
	proc, err := analysis.NewEntropy(s.env, analysis.EntropyOptions{
		Bins:     cfg.Entropy.Bins,
		RMin:     cfg.Entropy.RMin,
		RMax:     cfg.Entropy.RMax,
		GasDir:   cfg.Paths.GasCutouts,
		GasQuery: analysis.GasQuery(cfg.Fetch.GasFields),
	})
	if err != nil {
		return err
	}

	load := func(context.Context) ([]model.SubhaloID, error) {
		return pipeline.LoadWorkList(cfg.Paths.WorkList, cfg.Paths.IDColumn, cfg.Paths.Delimiter)
	}
	return s.run(ctx, s.options(proc, cfg.Paths.WorkList, cfg.Entropy.Output, load))
}

func runSSFR(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	cfg := s.cfg
	proc, err := analysis.NewSSFR(s.env, analysis.SSFROptions{
		ApertureKpc: cfg.SSFR.ApertureKpc,
		GasDir:      cfg.Paths.GasCutouts,
		StellarDir:  cfg.Paths.StellarCutouts,
		GasQuery:    analysis.GasQuery(cfg.Fetch.GasFields),
	})
	if err != nil {
		return err
	}

	var sample model.Catalogue
	opts := s.options(proc, cfg.Paths.Sample, cfg.SSFR.Output, sampleLoader(cfg.Paths.Sample, &sample))
	opts.Finish = func(_ context.Context, t *model.Table, em *pipeline.ExportManager) error {
		all, err := analysis.InstMapping(t)
		if err != nil {
			return err
		}
		if _, err := em.ExportJSON(cfg.SSFR.AllMapping, all, len(all)); err != nil {
			return err
		}

		active, err := analysis.SelectActive(t, sample, cfg.SSFR.Threshold)
		if err != nil {
			return err
		}
		s.logger.Info("active subhalos selected",
			zap.Int("active", len(active)),
			zap.Int("sample", len(sample)),
			zap.Float64("threshold", cfg.SSFR.Threshold))
		_, err = em.ExportJSON(cfg.SSFR.CutMapping, active, len(active))
		return err
	}
	return s.run(ctx, opts)
}

func runSpectra(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	cfg := s.cfg
	if cfg.Spectra.Command == "" {
		return fmt.Errorf("spectra.command is not set")
	}
	var inst map[model.SubhaloID]float64
	if cfg.Spectra.UseInst {
		inst, err = analysis.LoadInstSFR(cfg.InstSFRPath())
		if err != nil {
			return err
		}
		s.logger.Info("loaded instantaneous SFRs", zap.String("path", cfg.InstSFRPath()), zap.Int("subhalos", len(inst)))
	}

	outDir := cfg.Spectra.OutputDir
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(cfg.Paths.OutputDir, outDir)
	}
	proc, err := analysis.NewSpectra(s.env, &analysis.ExecSynthesizer{
		Command: cfg.Spectra.Command,
		Args:    cfg.Spectra.Args,
	}, analysis.SpectraOptions{
		StellarDir:       cfg.Paths.StellarCutouts,
		OutputDir:        outDir,
		ApertureKpc:      cfg.Spectra.ApertureKpc,
		SolarMetallicity: cfg.Spectra.SolarMetallicity,
		Tage:             cfg.Spectra.Tage,
		Params:           cfg.Spectra.Params,
		InstSFR:          inst,
	})
	if err != nil {
		return err
	}

	var sample model.Catalogue
	return s.run(ctx, s.options(proc, cfg.Paths.Sample, cfg.Spectra.Output, sampleLoader(cfg.Paths.Sample, &sample)))
}
