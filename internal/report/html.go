package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// HTMLOptions controls the chart page.
type HTMLOptions struct {
	Title      string
	Subtitle   string
	Bins       int
	AssetsHost string // empty uses the go-echarts default CDN
}

func histBar(title, xname string, values []float64, o HTMLOptions) (*charts.Bar, error) {
	h, err := NewHistogram(values, o.Bins)
	if err != nil {
		return nil, err
	}
	x := make([]string, 0, len(h.Counts))
	for _, c := range h.Centers() {
		x = append(x, fmt.Sprintf("%.2f", c))
	}
	y := make([]opts.BarData, 0, len(h.Counts))
	for _, n := range h.Counts {
		y = append(y, opts.BarData{Value: n})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "500px", AssetsHost: o.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: o.Subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: xname, NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Tracks"}),
	)
	bar.SetXAxis(x).AddSeries(title, y)
	return bar, nil
}

func slopeInterceptScatter(entries []Entry, o HTMLOptions) *charts.Scatter {
	bySL := make(map[int][]opts.ScatterData)
	for _, e := range entries {
		bySL[e.SuperLayer] = append(bySL[e.SuperLayer], opts.ScatterData{Value: []interface{}{e.Fit.M, e.Fit.Q}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "600px", AssetsHost: o.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Slope vs intercept", Subtitle: o.Subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "m", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "q (mm)", NameLocation: "middle", NameGap: 40}),
	)
	sls := make([]int, 0, len(bySL))
	for sl := range bySL {
		sls = append(sls, sl)
	}
	sort.Ints(sls)
	for _, sl := range sls {
		scatter.AddSeries(fmt.Sprintf("sl%d", sl), bySL[sl], charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	}
	return scatter
}

// RenderHTML writes a page with the THETA and chisqComp histograms and an
// m-q scatter coloured by super-layer.
func RenderHTML(w io.Writer, entries []Entry, o HTMLOptions) error {
	if len(entries) == 0 {
		return ErrNoTracks
	}
	if o.Bins <= 0 {
		o.Bins = DefaultBins
	}
	if o.Title == "" {
		o.Title = "Track reconstruction"
	}

	theta, err := histBar("THETA", "deg", thetas(entries), o)
	if err != nil {
		return err
	}
	chisq, err := histBar("chisqComp", "|chi2 - dof| / sqrt(2 dof)", chisqComps(entries), o)
	if err != nil {
		return err
	}

	page := components.NewPage()
	page.SetPageTitle(o.Title)
	if o.AssetsHost != "" {
		page.SetAssetsHost(o.AssetsHost)
	}
	page.AddCharts(theta, chisq, slopeInterceptScatter(entries, o))
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}
