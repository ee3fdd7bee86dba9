// Command pipeline runs one subhalo analysis over a work list with a fixed
// number of worker ranks and records the run in the ledger.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath string
	workers    int
	verbose    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Distributed analysis of simulated subhalos",
	Long: `Run a per-subhalo analysis over a work list. The list is padded and
split into equal chunks, one per worker rank; the root gathers the rows,
writes the aggregate table and records the run in the ledger.

Available analyses:
  entropy - radial gas entropy profiles
  ssfr    - instantaneous star formation rate in a central aperture
  spectra - synthetic stellar spectra from star formation histories`,
	SilenceUsage: true,
}

var entropyCmd = &cobra.Command{
	Use:   "entropy",
	Short: "Compute radial gas entropy profiles",
	Long: `Compute mass-weighted entropy profiles of the gas of every subhalo in
paths.work_list, binned in r/r200. Gas cutouts are downloaded on first use.`,
	Args: cobra.NoArgs,
	RunE: runEntropy,
}

var ssfrCmd = &cobra.Command{
	Use:   "ssfr",
	Short: "Measure instantaneous star formation rates",
	Long: `Measure the gas SFR and the sSFR inside the central aperture of every
subhalo in paths.sample. Writes the table, the mapping of all measured
subhalos and the catalogue of subhalos above ssfr.threshold.`,
	Args: cobra.NoArgs,
	RunE: runSSFR,
}

var spectraCmd = &cobra.Command{
	Use:   "spectra",
	Short: "Synthesise stellar spectra",
	Long: `Bin the central stars of every subhalo in paths.sample by metallicity and
formation time and pass each history to the configured synthesizer. With
spectra.use_inst the youngest bin holds the SFR measured by a previous ssfr run.`,
	Args: cobra.NoArgs,
	RunE: runSpectra,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "pipeline.yaml", "Path to config file")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 0, "Number of worker ranks (default: config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(entropyCmd)
	rootCmd.AddCommand(ssfrCmd)
	rootCmd.AddCommand(spectraCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
