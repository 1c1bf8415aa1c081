package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/trackreco/internal/fsutil"
	"github.com/banshee-data/trackreco/internal/security"
)

// CSVHeader is the column layout written by WriteCSV.
var CSVHeader = []string{
	"EVENT", "SL", "LAYER", "CHANNEL", "CH", "SIDE", "X", "HIT_DRIFT_TIME", "D_WIRE_HIT", "THETA", "M", "Q", "CHISQ_COMP",
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			strconv.FormatInt(r.EventID, 10),
			strconv.Itoa(r.SuperLayer),
			strconv.Itoa(r.Layer),
			strconv.Itoa(r.Channel),
			strconv.Itoa(r.CH),
			r.Side.String(),
			formatFloat(r.X),
			formatFloat(r.DriftTime),
			formatFloat(r.DWireHit),
			formatFloat(r.Theta),
			formatFloat(r.M),
			formatFloat(r.Q),
			formatFloat(r.ChisqComp),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteChannelFiles writes one CSV per (super-layer, channel) group into dir,
// named after the group key ("sl1_ch135.csv"), and returns the written paths
// in key order.
func WriteChannelFiles(fsys fsutil.FileSystem, dir string, rows []Row) ([]string, error) {
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	groups := GroupByChannel(rows)
	paths := make([]string, 0, len(groups))
	for _, k := range SortedKeys(groups) {
		path, err := security.SafeJoin(dir, k.String()+".csv")
		if err != nil {
			return paths, err
		}
		if err := writeCSVFile(fsys, path, groups[k]); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeCSVFile(fsys fsutil.FileSystem, path string, rows []Row) error {
	w, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteCSV(w, rows); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return w.Close()
}
