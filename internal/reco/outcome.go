package reco

import (
	"github.com/banshee-data/trackreco/internal/hits"
	"github.com/banshee-data/trackreco/internal/reco/search"
)

// OutcomeKind tags the result of reconstructing one event.
type OutcomeKind int

const (
	// OutcomeEmpty means no super-layer qualified; nothing to report.
	OutcomeEmpty OutcomeKind = iota
	// OutcomeTracks means at least one track was reconstructed.
	OutcomeTracks
	// OutcomeFailed means the computation itself failed.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeEmpty:
		return "empty"
	case OutcomeTracks:
		return "tracks"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of reconstructing one event. Reconstruction
// is non-nil only for OutcomeTracks and Err only for OutcomeFailed.
type Outcome struct {
	Kind           OutcomeKind
	EventID        int64
	Reconstruction *hits.EventReconstruction
	Err            error
	Stats          Stats
}

// Stats counts per-chamber decisions and search work.
type Stats struct {
	search.Stats
	Chambers       int // chambers with at least one hit
	SkippedLayers  int // below the minimum layer count
	SkippedNoCombo int // no valid combination or every fit failed
	SkippedTooMany int // over the hit cap
	Tracks         int
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Stats.Add(o.Stats)
	s.Chambers += o.Chambers
	s.SkippedLayers += o.SkippedLayers
	s.SkippedNoCombo += o.SkippedNoCombo
	s.SkippedTooMany += o.SkippedTooMany
	s.Tracks += o.Tracks
}
