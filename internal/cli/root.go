// Package cli wires the trackreco command tree.
package cli

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/banshee-data/trackreco/internal/config"
	"github.com/banshee-data/trackreco/internal/fsutil"
	"github.com/banshee-data/trackreco/internal/monitoring"
	"github.com/banshee-data/trackreco/internal/version"
)

// EnvPrefix prefixes every environment override, e.g. TRACKRECO_WORKERS.
const EnvPrefix = "TRACKRECO"

// DefaultDBPath is the database used when --db is not given.
const DefaultDBPath = "trackreco.db"

// app holds the state shared by all subcommands of one command tree.
type app struct {
	v  *viper.Viper
	fs fsutil.FileSystem
}

// NewRootCommand builds the trackreco command tree. Each call returns an
// independent tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New(), fs: fsutil.OSFileSystem{}}

	root := &cobra.Command{
		Use:   "trackreco",
		Short: "Drift-chamber straight-line track reconstruction",
		Long: `trackreco reconstructs straight muon tracks from drift-chamber hits.

Each super-layer of each event is fitted independently: every combination of
hits covering the layers is tried with both left/right drift solutions and the
combination whose chi-square is closest to its expectation is kept.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.initConfig()
			monitoring.SetVerbose(a.v.GetBool("verbose"))
			return nil
		},
		Version: version.Version,
	}

	pf := root.PersistentFlags()
	pf.String("db", DefaultDBPath, "SQLite database path")
	pf.BoolP("verbose", "v", false, "enable per-event diagnostics")
	_ = a.v.BindPFlag("db", pf.Lookup("db"))
	_ = a.v.BindPFlag("verbose", pf.Lookup("verbose"))

	root.AddCommand(
		a.newReconstructCommand(),
		a.newMigrateCommand(),
		a.newReportCommand(),
		a.newExportCommand(),
		newVersionCommand(),
	)
	return root
}

func (a *app) initConfig() {
	a.v.SetEnvPrefix(EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	a.v.AutomaticEnv()
}

// Execute runs the command tree with os.Args.
func Execute() error {
	log.SetFlags(log.LstdFlags)
	return NewRootCommand().Execute()
}

// loadRecoConfig reads the JSON config named by --config, or the defaults,
// and overlays any flag or environment value viper has seen. Fields the file
// leaves unset fall back to their defaults through the Get* accessors.
func (a *app) loadRecoConfig() (*config.RecoConfig, error) {
	cfg := config.DefaultRecoConfig()
	if path := a.v.GetString("config"); path != "" {
		loaded, err := config.LoadRecoConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if a.v.IsSet("sigma") {
		cfg.Sigma = ptr(a.v.GetFloat64("sigma"))
	}
	if a.v.IsSet("nominal_slope_guess") {
		cfg.NominalSlopeGuess = ptr(a.v.GetFloat64("nominal_slope_guess"))
	}
	if a.v.IsSet("min_layers") {
		cfg.MinLayers = ptr(a.v.GetInt("min_layers"))
	}
	if a.v.IsSet("max_hits_per_chamber") {
		cfg.MaxHitsPerChamber = ptr(a.v.GetInt("max_hits_per_chamber"))
	}
	if a.v.IsSet("workers") {
		cfg.Workers = ptr(a.v.GetInt("workers"))
	}
	if a.v.IsSet("parallel") {
		cfg.Parallel = ptr(a.v.GetBool("parallel"))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func ptr[T any](v T) *T { return &v }

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
