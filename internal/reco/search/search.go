// Package search selects the best track candidate among the hits of one
// super-layer in one event.
//
// Every hit has two possible transverse positions (left/right drift
// ambiguity). The search enumerates the hit groups that cover the required
// number of layers, then every way of picking one position per distinct
// depth from the doubled position list, fits each pick and keeps the one
// with the smallest |chisqComp|. Enumeration is lexicographic at both levels
// and only a strictly better score replaces the current best, so the first
// candidate wins ties.
package search

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/trackreco/internal/hits"
	"github.com/banshee-data/trackreco/internal/reco/combos"
	"github.com/banshee-data/trackreco/internal/reco/linefit"
)

var (
	// ErrNoValidCombination means no candidate passed the distinct-depth
	// constraint or every candidate fit failed. It is an expected outcome.
	ErrNoValidCombination = errors.New("no valid hit combination")
	// ErrTooManyHits means the chamber exceeded the configured hit cap and
	// was not searched.
	ErrTooManyHits = errors.New("too many hits in chamber")
)

// Fitter fits a line through (depth, position) points.
type Fitter interface {
	Fit(depths, positions []float64) (linefit.Result, error)
}

// Stats counts the work done by one search.
type Stats struct {
	Groups      int // hit groups covering the required layers
	Candidates  int // position picks with pairwise distinct depths
	FitFailures int // candidates rejected by the fitter
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Groups += o.Groups
	s.Candidates += o.Candidates
	s.FitFailures += o.FitFailures
}

// Result is the winning candidate of a search.
type Result struct {
	Track hits.Track
	Fit   linefit.Result
	Stats Stats
}

// Searcher runs the combinatorial search. It keeps no per-call state and is
// safe for concurrent use if its Fitter is.
type Searcher struct {
	fitter  Fitter
	maxHits int
}

// New returns a Searcher using fitter. maxHits caps the number of hits a
// chamber may carry before it is skipped; zero disables the cap.
func New(fitter Fitter, maxHits int) *Searcher {
	return &Searcher{fitter: fitter, maxHits: maxHits}
}

// RequiredCoverage returns the number of points a candidate must hold:
// 3 when exactly three distinct layers are present, 4 otherwise.
func RequiredCoverage(hs []hits.Hit) int {
	if hits.DistinctLayers(hs) == 3 {
		return 3
	}
	return 4
}

// entry is one element of the doubled position list.
type entry struct {
	hit  int
	side hits.Side
	x    float64
	z    float64
}

// doubled returns the right positions of the group followed by the left
// positions, each paired with the hit's wire depth.
func doubled(hs []hits.Hit, group []int) []entry {
	out := make([]entry, 0, 2*len(group))
	for _, i := range group {
		out = append(out, entry{hit: i, side: hits.SideRight, x: hs[i].RightX, z: hs[i].WireZ})
	}
	for _, i := range group {
		out = append(out, entry{hit: i, side: hits.SideLeft, x: hs[i].LeftX, z: hs[i].WireZ})
	}
	return out
}

// Groups returns the hit groups examined for hs, as index lists into hs.
func Groups(hs []hits.Hit) [][]int {
	if RequiredCoverage(hs) == 3 {
		all := make([]int, len(hs))
		for i := range all {
			all[i] = i
		}
		return [][]int{all}
	}

	var groups [][]int
	it := combos.New(len(hs), 4)
	for it.Next() {
		idx := it.Indices()
		if !distinctLayers(hs, idx) {
			continue
		}
		groups = append(groups, append([]int(nil), idx...))
	}
	return groups
}

func distinctLayers(hs []hits.Hit, idx []int) bool {
	for a := 0; a < len(idx); a++ {
		for b := a + 1; b < len(idx); b++ {
			if hs[idx[a]].Layer == hs[idx[b]].Layer {
				return false
			}
		}
	}
	return true
}

func distinctDepths(list []entry, idx []int) bool {
	for a := 0; a < len(idx); a++ {
		for b := a + 1; b < len(idx); b++ {
			if list[idx[a]].z == list[idx[b]].z {
				return false
			}
		}
	}
	return true
}

// Best searches hs, the hits of one super-layer in one event, and returns
// the best-fitting track. The returned error is ErrNoValidCombination or
// ErrTooManyHits for the expected no-track cases; Stats are filled either way.
func (s *Searcher) Best(hs []hits.Hit) (Result, error) {
	if s.maxHits > 0 && len(hs) > s.maxHits {
		return Result{}, fmt.Errorf("%w: %d hits (max %d)", ErrTooManyHits, len(hs), s.maxHits)
	}

	tot := RequiredCoverage(hs)
	var (
		stats     Stats
		found     bool
		bestScore = math.MaxFloat64
		bestFit   linefit.Result
		bestList  []entry
		bestIdx   = make([]int, tot)
	)

	depths := make([]float64, tot)
	positions := make([]float64, tot)

	for _, group := range Groups(hs) {
		stats.Groups++
		list := doubled(hs, group)

		inner := combos.New(len(list), tot)
		for inner.Next() {
			idx := inner.Indices()
			if !distinctDepths(list, idx) {
				continue
			}
			stats.Candidates++
			for k, i := range idx {
				depths[k] = list[i].z
				positions[k] = list[i].x
			}

			res, err := s.fitter.Fit(depths, positions)
			if err != nil {
				stats.FitFailures++
				continue
			}
			if score := math.Abs(res.ChisqComp); !found || score < bestScore {
				found = true
				bestScore = score
				bestFit = res
				bestList = list
				copy(bestIdx, idx)
			}
		}
	}

	if !found {
		return Result{Stats: stats}, ErrNoValidCombination
	}

	track := hits.Track{
		SuperLayer: hs[bestList[bestIdx[0]].hit].SuperLayer,
		Fit: hits.Fit{
			M:         bestFit.M,
			Q:         bestFit.Q,
			ChisqComp: bestFit.ChisqComp,
			Chi2:      bestFit.Chi2,
			DOF:       bestFit.DOF,
			PValue:    bestFit.PValue,
			SigmaM:    bestFit.SigmaM,
			SigmaQ:    bestFit.SigmaQ,
		},
		Hits: make([]hits.TrackHit, 0, tot),
	}
	for k, i := range bestIdx {
		e := bestList[i]
		track.Hits = append(track.Hits, hits.TrackHit{
			Hit:  hs[e.hit],
			Side: e.side,
			X:    bestFit.XData[k],
			M:    bestFit.M,
			Q:    bestFit.Q,
		})
	}
	return Result{Track: track, Fit: bestFit, Stats: stats}, nil
}
