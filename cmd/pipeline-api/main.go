package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "subhalo-pipeline/docs"
	"subhalo-pipeline/internal/api"
	"subhalo-pipeline/internal/api/handler"
	"subhalo-pipeline/internal/config"
	"subhalo-pipeline/internal/logging"
	"subhalo-pipeline/internal/store"
	"subhalo-pipeline/pkg/router"
)

var (
	configPath string
	addr       string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:          "pipeline-api",
	Short:        "Serve the run ledger over HTTP",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         serve,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "pipeline.yaml", "Path to config file")
	rootCmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
}

// @title Subhalo Pipeline API
// @version 1.0
// @description Read-only status of subhalo analysis runs.
// @host localhost:8080
// @BasePath /api/v1
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(*cobra.Command, []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging, verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Init DB
	s, err := store.Open(cfg.Paths.Ledger)
	if err != nil {
		return err
	}
	defer s.Close()

	r := router.New(logger)
	api.RegisterRoutes(r, handler.NewRunHandler(s, logger))

	logger.Info("serving run ledger", zap.String("ledger", cfg.Paths.Ledger))
	return r.Start(addr)
}
