package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/banshee-data/trackreco/internal/export"
)

func (a *app) newExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [run-id]",
		Short: "Write calibration rows of a stored run as CSV",
		Long: `Write the per-hit calibration rows (D_WIRE_HIT, THETA, CH, ...) of a run
to stdout or --out, after the drift-time and distance cuts. --sl together with
--ch restricts the output to one readout channel.`,
		Args: cobra.MaximumNArgs(1),
		RunE: a.runExport,
	}
	f := cmd.Flags()
	f.StringP("out", "o", "", "output path (default stdout)")
	f.Int("sl", -1, "super-layer of the channel to export")
	f.Int("ch", -1, "sequential channel (TDC_CHANNEL + 128*FPGA) to export")
	f.Float64("drift-time-min", -200, "lower drift-time cut in ns")
	f.Float64("drift-time-max", 600, "upper drift-time cut in ns")
	f.Float64("d-wire-hit-max", 21, "cut on |D_WIRE_HIT| in mm")
	f.Bool("no-cuts", false, "write every row")
	f.Bool("channels", false, "print row counts per (sl, ch) instead of rows")
	f.String("split-dir", "", "write one CSV per (sl, ch) into this directory")
	for key, flag := range map[string]string{
		"export_out":     "out",
		"sl":             "sl",
		"ch":             "ch",
		"drift_time_min": "drift-time-min",
		"drift_time_max": "drift-time-max",
		"d_wire_hit_max": "d-wire-hit-max",
		"no_cuts":        "no-cuts",
		"channels":       "channels",
		"split_dir":      "split-dir",
	} {
		_ = a.v.BindPFlag(key, f.Lookup(flag))
	}
	return cmd
}

func (a *app) runExport(cmd *cobra.Command, args []string) error {
	database, store, run, err := a.openRun(args)
	if err != nil {
		return err
	}
	defer database.Close()

	sl, ch := a.v.GetInt("sl"), a.v.GetInt("ch")
	var rows []export.Row
	switch {
	case sl >= 0 && ch >= 0:
		rows, err = store.ChannelRows(run.RunID, sl, ch)
	case sl < 0 && ch < 0:
		rows, err = store.HitRows(run.RunID)
	default:
		return fmt.Errorf("--sl and --ch must be given together")
	}
	if err != nil {
		return err
	}

	if !a.v.GetBool("no_cuts") {
		rows = export.Filter(rows, export.Cuts{
			DriftTimeMin: a.v.GetFloat64("drift_time_min"),
			DriftTimeMax: a.v.GetFloat64("drift_time_max"),
			DWireHitMax:  a.v.GetFloat64("d_wire_hit_max"),
		})
	}

	if dir := a.v.GetString("split_dir"); dir != "" {
		paths, err := export.WriteChannelFiles(a.fs, dir, rows)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d rows in %d files to %s\n", len(rows), len(paths), dir)
		return nil
	}

	write := func(w io.Writer) error { return export.WriteCSV(w, rows) }
	if a.v.GetBool("channels") {
		write = func(w io.Writer) error {
			groups := export.GroupByChannel(rows)
			for _, k := range export.SortedKeys(groups) {
				if _, err := fmt.Fprintf(w, "%s\t%d\n", k, len(groups[k])); err != nil {
					return err
				}
			}
			return nil
		}
	}

	path := a.v.GetString("export_out")
	if path == "" || path == "-" {
		return write(cmd.OutOrStdout())
	}
	if err := a.writeFile(path, write); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d rows to %s\n", len(rows), path)
	return nil
}
