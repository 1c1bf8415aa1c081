package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/banshee-data/trackreco/internal/db"
	"github.com/banshee-data/trackreco/internal/report"
)

func (a *app) newReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Summarise a stored run",
		Long: `Print track statistics for a run (the latest one when no id is given)
and optionally render histogram PNGs and an HTML chart page.`,
		Args: cobra.MaximumNArgs(1),
		RunE: a.runReport,
	}
	f := cmd.Flags()
	f.String("html", "", "write an HTML chart page to this path")
	f.String("png-dir", "", "write theta.png and chisq_comp.png into this directory")
	f.Bool("json", false, "print the summary as JSON")
	f.Int("bins", report.DefaultBins, "histogram bins")
	_ = a.v.BindPFlag("html", f.Lookup("html"))
	_ = a.v.BindPFlag("png_dir", f.Lookup("png-dir"))
	_ = a.v.BindPFlag("json", f.Lookup("json"))
	_ = a.v.BindPFlag("bins", f.Lookup("bins"))
	return cmd
}

// openRun opens the migrated database and resolves the run named by args,
// or the latest run.
func (a *app) openRun(args []string) (*db.DB, *db.RunStore, *db.Run, error) {
	database, err := db.NewDB(a.v.GetString("db"))
	if err != nil {
		return nil, nil, nil, err
	}
	store := db.NewRunStore(database.DB)

	var run *db.Run
	if len(args) == 1 {
		run, err = store.GetRun(args[0])
	} else {
		run, err = store.LatestRun()
	}
	if err != nil {
		database.Close()
		return nil, nil, nil, err
	}
	return database, store, run, nil
}

func (a *app) runReport(cmd *cobra.Command, args []string) error {
	database, store, run, err := a.openRun(args)
	if err != nil {
		return err
	}
	defer database.Close()

	tracks, err := store.ListTracks(run.RunID)
	if err != nil {
		return err
	}
	entries := make([]report.Entry, 0, len(tracks))
	for _, t := range tracks {
		entries = append(entries, report.Entry{EventID: t.EventID, SuperLayer: t.SuperLayer, Fit: t.Fit, Hits: t.Fit.DOF + 2})
	}
	summary := report.Summarize(entries)

	out := cmd.OutOrStdout()
	if a.v.GetBool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Run     *db.Run        `json:"run"`
			Summary report.Summary `json:"summary"`
		}{run, summary}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "run %s (%s, %s)\n", run.RunID, run.Input, run.Status)
		fmt.Fprintf(out, "events: %d (with tracks %d, empty %d, failed %d)\n",
			run.Events, run.WithTracks, run.Empty, run.Failed)
		if err := summary.WriteText(out); err != nil {
			return err
		}
	}

	bins := a.v.GetInt("bins")
	if dir := a.v.GetString("png_dir"); dir != "" {
		paths, err := report.SavePlots(a.fs, dir, entries)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", p)
		}
	}
	if path := a.v.GetString("html"); path != "" {
		opts := report.HTMLOptions{
			Title:    "trackreco run " + run.RunID,
			Subtitle: fmt.Sprintf("%s: %d tracks", run.Input, len(entries)),
			Bins:     bins,
		}
		if err := a.writeFile(path, func(w io.Writer) error { return report.RenderHTML(w, entries, opts) }); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
	}
	return nil
}
