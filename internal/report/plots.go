package report

import (
	"fmt"
	"io"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/trackreco/internal/fsutil"
)

// DefaultBins is the histogram bin count used by the plots.
const DefaultBins = 40

const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 5 * vg.Inch
)

func histPlot(title, xlabel string, values []float64, bins int) (*plot.Plot, error) {
	if len(values) == 0 {
		return nil, ErrNoTracks
	}
	if bins <= 0 {
		bins = DefaultBins
	}
	h, err := plotter.NewHist(plotter.Values(values), bins)
	if err != nil {
		return nil, fmt.Errorf("%s histogram: %w", title, err)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = "Tracks"
	p.Add(h)
	return p, nil
}

// ThetaPlot returns a histogram of the track angles.
func ThetaPlot(entries []Entry, bins int) (*plot.Plot, error) {
	return histPlot(fmt.Sprintf("Track angle (%d tracks)", len(entries)), "THETA (deg)", thetas(entries), bins)
}

// ChisqCompPlot returns a histogram of the fit quality score.
func ChisqCompPlot(entries []Entry, bins int) (*plot.Plot, error) {
	return histPlot(fmt.Sprintf("Fit quality (%d tracks)", len(entries)), "|chi2 - dof| / sqrt(2 dof)", chisqComps(entries), bins)
}

// WritePNG renders p as a PNG image to w.
func WritePNG(w io.Writer, p *plot.Plot) error {
	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return fmt.Errorf("png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// SavePlots writes theta.png and chisq_comp.png into dir on fsys and returns
// their paths.
func SavePlots(fsys fsutil.FileSystem, dir string, entries []Entry) ([]string, error) {
	theta, err := ThetaPlot(entries, DefaultBins)
	if err != nil {
		return nil, err
	}
	chisq, err := ChisqCompPlot(entries, DefaultBins)
	if err != nil {
		return nil, err
	}
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}

	outputs := []struct {
		name string
		p    *plot.Plot
	}{{"theta.png", theta}, {"chisq_comp.png", chisq}}

	paths := make([]string, 0, len(outputs))
	for _, out := range outputs {
		path := filepath.Join(dir, out.name)
		w, err := fsys.Create(path)
		if err != nil {
			return paths, fmt.Errorf("create %s: %w", path, err)
		}
		if err := WritePNG(w, out.p); err != nil {
			w.Close()
			return paths, err
		}
		if err := w.Close(); err != nil {
			return paths, fmt.Errorf("close %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
