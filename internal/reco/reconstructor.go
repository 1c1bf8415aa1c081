package reco

import (
	"errors"
	"fmt"

	"github.com/banshee-data/trackreco/internal/hits"
	"github.com/banshee-data/trackreco/internal/monitoring"
	"github.com/banshee-data/trackreco/internal/reco/linefit"
	"github.com/banshee-data/trackreco/internal/reco/search"
)

// ErrInsufficientLayers means a chamber has fewer distinct layers than
// required. It is an expected, silent outcome.
var ErrInsufficientLayers = errors.New("insufficient layers")

// DefaultMinLayers is the number of distinct layers a chamber needs.
const DefaultMinLayers = 3

// Config configures a Reconstructor.
type Config struct {
	MinLayers         int
	MaxHitsPerChamber int
	Fit               linefit.Config
}

// DefaultConfig returns the production reconstruction settings.
func DefaultConfig() Config {
	return Config{
		MinLayers: DefaultMinLayers,
		Fit:       linefit.DefaultConfig(),
	}
}

// Searcher picks the best track among one chamber's hits.
type Searcher interface {
	Best(hs []hits.Hit) (search.Result, error)
}

// Reconstructor turns events into tracks. It holds no per-event state and is
// safe for concurrent use.
type Reconstructor struct {
	searcher  Searcher
	minLayers int
}

// New builds a Reconstructor with a line fitter and search configured from cfg.
func New(cfg Config) *Reconstructor {
	fitter := linefit.New(cfg.Fit)
	return NewWithSearcher(search.New(fitter, cfg.MaxHitsPerChamber), cfg.MinLayers)
}

// NewWithSearcher builds a Reconstructor around an existing searcher.
// minLayers below DefaultMinLayers is raised to it.
func NewWithSearcher(s Searcher, minLayers int) *Reconstructor {
	if minLayers < DefaultMinLayers {
		minLayers = DefaultMinLayers
	}
	return &Reconstructor{searcher: s, minLayers: minLayers}
}

// Chamber reconstructs the track of one super-layer in one event. It returns
// ErrInsufficientLayers, search.ErrNoValidCombination or search.ErrTooManyHits
// when the chamber yields no track.
func (r *Reconstructor) Chamber(hs []hits.Hit) (*hits.Track, search.Stats, error) {
	if hits.DistinctLayers(hs) < r.minLayers {
		return nil, search.Stats{}, ErrInsufficientLayers
	}
	res, err := r.searcher.Best(hs)
	if err != nil {
		return nil, res.Stats, err
	}
	track := res.Track
	return &track, res.Stats, nil
}

// Event reconstructs every super-layer of ev in index order. The event is
// only read.
func (r *Reconstructor) Event(ev hits.Event) Outcome {
	out := Outcome{EventID: ev.ID}
	var tracks []hits.Track

	for sl, hs := range ev.BySuperLayer() {
		if len(hs) == 0 {
			continue
		}
		out.Stats.Chambers++

		track, st, err := r.Chamber(hs)
		out.Stats.Stats.Add(st)
		switch {
		case err == nil:
			tracks = append(tracks, *track)
			out.Stats.Tracks++
		case errors.Is(err, ErrInsufficientLayers):
			out.Stats.SkippedLayers++
		case errors.Is(err, search.ErrNoValidCombination):
			out.Stats.SkippedNoCombo++
		case errors.Is(err, search.ErrTooManyHits):
			out.Stats.SkippedTooMany++
			monitoring.Debugf("event %d sl %d: %v", ev.ID, sl, err)
		default:
			out.Kind = OutcomeFailed
			out.Err = fmt.Errorf("event %d superlayer %d: %w", ev.ID, sl, err)
			return out
		}
	}

	if len(tracks) == 0 {
		out.Kind = OutcomeEmpty
		return out
	}
	out.Kind = OutcomeTracks
	out.Reconstruction = &hits.EventReconstruction{EventID: ev.ID, Tracks: tracks}
	return out
}
