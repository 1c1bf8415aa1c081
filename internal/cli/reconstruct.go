package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/banshee-data/trackreco/internal/db"
	"github.com/banshee-data/trackreco/internal/export"
	"github.com/banshee-data/trackreco/internal/hits"
	"github.com/banshee-data/trackreco/internal/hitsio"
	"github.com/banshee-data/trackreco/internal/monitoring"
	"github.com/banshee-data/trackreco/internal/reco"
	"github.com/banshee-data/trackreco/internal/reco/dispatch"
	"github.com/banshee-data/trackreco/internal/report"
)

func (a *app) newReconstructCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconstruct <events.json|hits.csv>",
		Short: "Reconstruct tracks from an event file",
		Long: `Reconstruct tracks for every event in the input file.

The input is either a JSON events document or a flat CSV hit table (chosen by
extension unless --format is given). Results are stored as a run in the
database; --out and --rows additionally write the reconstructions as JSON and
the cleaned per-hit calibration rows as CSV.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runReconstruct(cmd, args[0])
		},
	}

	f := cmd.Flags()
	f.StringP("config", "c", "", "reconstruction config JSON (default: built-in defaults)")
	f.String("format", "auto", "input format: auto, json or csv")
	f.String("out", "", "write reconstructions as JSON to this path")
	f.String("rows", "", "write cleaned calibration rows as CSV to this path")
	f.Bool("no-db", false, "do not store the run in the database")
	f.Float64("sigma", 0, "single-hit resolution in mm")
	f.Float64("nominal-slope-guess", 0, "slope guess when the first two hits share a depth")
	f.Int("min-layers", 0, "distinct layers a chamber needs (3 or 4)")
	f.Int("max-hits", 0, "skip chambers with more hits than this (0 = unlimited)")
	f.Int("workers", 0, "worker pool size (0 = CPUs minus two)")
	f.Bool("parallel", true, "reconstruct events on the worker pool")

	for key, flag := range map[string]string{
		"config":               "config",
		"format":               "format",
		"out":                  "out",
		"rows":                 "rows",
		"no_db":                "no-db",
		"sigma":                "sigma",
		"nominal_slope_guess":  "nominal-slope-guess",
		"min_layers":           "min-layers",
		"max_hits_per_chamber": "max-hits",
		"workers":              "workers",
		"parallel":             "parallel",
	} {
		_ = a.v.BindPFlag(key, f.Lookup(flag))
	}
	return cmd
}

func readEvents(path, format string) ([]hits.Event, error) {
	if format == "" || format == "auto" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv":
			format = "csv"
		default:
			format = "json"
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	switch format {
	case "json":
		return hitsio.ReadJSON(f)
	case "csv":
		return hitsio.ReadCSV(f)
	default:
		return nil, fmt.Errorf("unknown input format %q", format)
	}
}

func (a *app) runReconstruct(cmd *cobra.Command, input string) error {
	cfg, err := a.loadRecoConfig()
	if err != nil {
		return err
	}
	events, err := readEvents(input, a.v.GetString("format"))
	if err != nil {
		return err
	}
	monitoring.Logf("read %d events from %s", len(events), input)

	d := dispatch.New(reco.New(cfg.ReconstructorConfig()), cfg.GetWorkers())
	parallel := cfg.GetParallel()

	var store *db.RunStore
	var run *db.Run
	if !a.v.GetBool("no_db") {
		database, err := db.NewDB(a.v.GetString("db"))
		if err != nil {
			return err
		}
		defer database.Close()

		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		store = db.NewRunStore(database.DB)
		run = &db.Run{Input: input, Parallel: parallel, Workers: d.Workers(), ConfigJSON: cfgJSON}
		if err := store.CreateRun(run); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, recErr := d.Reconstruct(ctx, events, parallel)

	counts := db.RunCounts{
		Events:     res.Stats.Events,
		WithTracks: res.Stats.WithTracks,
		Empty:      res.Stats.Empty,
		Failed:     res.Stats.Failed,
		Tracks:     res.Stats.Reco.Tracks,
	}
	if store != nil {
		status := db.RunStatusCompleted
		if recErr != nil {
			status = db.RunStatusFailed
		}
		if _, err := store.InsertReconstructions(run.RunID, res.Reconstructions); err != nil {
			return err
		}
		if err := store.FinishRun(run.RunID, counts, status); err != nil {
			return err
		}
	}
	if recErr != nil {
		return fmt.Errorf("reconstruction interrupted: %w", recErr)
	}

	if path := a.v.GetString("out"); path != "" {
		if err := a.writeFile(path, func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(res.Reconstructions)
		}); err != nil {
			return err
		}
	}
	if path := a.v.GetString("rows"); path != "" {
		cuts := export.Cuts{
			DriftTimeMin: cfg.GetDriftTimeMin(),
			DriftTimeMax: cfg.GetDriftTimeMax(),
			DWireHitMax:  cfg.GetDWireHitMax(),
		}
		rows := export.Filter(export.Rows(res.Reconstructions), cuts)
		if err := a.writeFile(path, func(w io.Writer) error { return export.WriteCSV(w, rows) }); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if run != nil {
		fmt.Fprintf(out, "run %s\n", run.RunID)
	}
	fmt.Fprintf(out, "events: %d (with tracks %d, empty %d, failed %d)\n",
		counts.Events, counts.WithTracks, counts.Empty, counts.Failed)
	fmt.Fprintf(out, "chambers: %d, candidates fitted: %d, fit failures: %d\n",
		res.Stats.Reco.Chambers, res.Stats.Reco.Candidates, res.Stats.Reco.FitFailures)
	return report.Summarize(report.FromReconstructions(res.Reconstructions)).WriteText(out)
}

func (a *app) writeFile(path string, write func(io.Writer) error) error {
	f, err := a.fs.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
