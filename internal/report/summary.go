// Package report summarises reconstructed tracks as text, PNG histograms
// and an HTML chart page.
package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/trackreco/internal/export"
	"github.com/banshee-data/trackreco/internal/hits"
)

// ErrNoTracks is returned when there is nothing to plot.
var ErrNoTracks = errors.New("no tracks")

// Entry is the per-track input of a report.
type Entry struct {
	EventID    int64
	SuperLayer int
	Fit        hits.Fit
	Hits       int
}

// FromReconstructions flattens reconstructions into report entries.
func FromReconstructions(recs []*hits.EventReconstruction) []Entry {
	var out []Entry
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		for _, tr := range rec.Tracks {
			out = append(out, Entry{EventID: rec.EventID, SuperLayer: tr.SuperLayer, Fit: tr.Fit, Hits: len(tr.Hits)})
		}
	}
	return out
}

// Moments are the location and spread of one quantity.
type Moments struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

func moments(x []float64) Moments {
	if len(x) == 0 {
		return Moments{}
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)

	var m Moments
	m.Mean, m.StdDev = stat.MeanStdDev(sorted, nil)
	if len(sorted) < 2 {
		m.StdDev = 0
	}
	m.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	m.Min, m.Max = sorted[0], sorted[len(sorted)-1]
	return m
}

// Summary aggregates a set of tracks.
type Summary struct {
	Tracks        int                      `json:"tracks"`
	Events        int                      `json:"events"`
	Hits          int                      `json:"hits"`
	PerSuperLayer [hits.NumSuperLayers]int `json:"per_superlayer"`
	PerSize       map[int]int              `json:"per_size"` // tracks by number of hits
	Theta         Moments                  `json:"theta"`
	ChisqComp     Moments                  `json:"chisq_comp"`
	PValue        Moments                  `json:"p_value"`
}

// Summarize computes the summary of entries.
func Summarize(entries []Entry) Summary {
	s := Summary{Tracks: len(entries), PerSize: make(map[int]int)}
	events := make(map[int64]struct{})
	theta := make([]float64, 0, len(entries))
	chisq := make([]float64, 0, len(entries))
	pval := make([]float64, 0, len(entries))

	for _, e := range entries {
		events[e.EventID] = struct{}{}
		s.Hits += e.Hits
		s.PerSize[e.Hits]++
		if e.SuperLayer >= 0 && e.SuperLayer < hits.NumSuperLayers {
			s.PerSuperLayer[e.SuperLayer]++
		}
		theta = append(theta, export.Theta(e.Fit.M))
		chisq = append(chisq, e.Fit.ChisqComp)
		pval = append(pval, e.Fit.PValue)
	}
	s.Events = len(events)
	s.Theta = moments(theta)
	s.ChisqComp = moments(chisq)
	s.PValue = moments(pval)
	return s
}

// WriteText writes a human readable summary.
func (s Summary) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "tracks: %d in %d events (%d hits)\n", s.Tracks, s.Events, s.Hits)
	if err != nil {
		return err
	}
	for sl, n := range s.PerSuperLayer {
		fmt.Fprintf(w, "  sl%d: %d\n", sl, n)
	}
	sizes := make([]int, 0, len(s.PerSize))
	for k := range s.PerSize {
		sizes = append(sizes, k)
	}
	sort.Ints(sizes)
	for _, k := range sizes {
		fmt.Fprintf(w, "  %d-hit tracks: %d\n", k, s.PerSize[k])
	}
	for _, q := range []struct {
		name string
		m    Moments
	}{{"theta (deg)", s.Theta}, {"chisq_comp", s.ChisqComp}, {"p_value", s.PValue}} {
		fmt.Fprintf(w, "%-12s mean=%.4g std=%.4g median=%.4g range=[%.4g, %.4g]\n",
			q.name, q.m.Mean, q.m.StdDev, q.m.Median, q.m.Min, q.m.Max)
	}
	return nil
}

// Histogram is a fixed-width binning of a sample.
type Histogram struct {
	Dividers []float64 // len(Counts)+1 bin edges
	Counts   []float64
}

// NewHistogram bins x into n equal-width bins spanning its range.
func NewHistogram(x []float64, n int) (Histogram, error) {
	if len(x) == 0 {
		return Histogram{}, ErrNoTracks
	}
	if n < 1 {
		n = 1
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	dividers := floats.Span(make([]float64, n+1), lo, hi)
	// The last divider must lie strictly above the maximum.
	dividers[n] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, sorted, nil)
	return Histogram{Dividers: dividers, Counts: counts}, nil
}

// Centers returns the mid-point of every bin.
func (h Histogram) Centers() []float64 {
	out := make([]float64, len(h.Counts))
	for i := range out {
		out[i] = (h.Dividers[i] + h.Dividers[i+1]) / 2
	}
	return out
}

// Total returns the number of binned values.
func (h Histogram) Total() float64 {
	return floats.Sum(h.Counts)
}

func thetas(entries []Entry) []float64 {
	out := make([]float64, len(entries))
	for i, e := range entries {
		out[i] = export.Theta(e.Fit.M)
	}
	return out
}

func chisqComps(entries []Entry) []float64 {
	out := make([]float64, len(entries))
	for i, e := range entries {
		out[i] = e.Fit.ChisqComp
	}
	return out
}
