package db

import (
	"path/filepath"
	"testing"

	"github.com/banshee-data/trackreco/internal/hits"
)

// setupTestDB creates a migrated database under t.TempDir. The schema comes
// from the embedded migrations so tests exercise the production path.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// sampleReconstructions returns two events with one and two tracks.
func sampleReconstructions() []*hits.EventReconstruction {
	hit := func(ch, layer, fpga, tdc int, side hits.Side, x, wireX, drift float64) hits.TrackHit {
		return hits.TrackHit{
			Hit: hits.Hit{
				Channel: ch, Layer: layer, FPGA: fpga, TDCChannel: tdc,
				WireX: wireX, DriftTime: drift,
			},
			Side: side,
			X:    x,
		}
	}
	return []*hits.EventReconstruction{
		{EventID: 10, Tracks: []hits.Track{{
			SuperLayer: 1,
			Fit:        hits.Fit{M: 1, Q: 2, ChisqComp: 0.5, Chi2: 1, DOF: 2, PValue: 0.6, SigmaM: 0.01, SigmaQ: 0.2},
			Hits: []hits.TrackHit{
				hit(3, 1, 0, 3, hits.SideRight, 2, 0, 100),
				hit(7, 2, 1, 7, hits.SideLeft, 15, 21, 200),
				hit(11, 3, 0, 11, hits.SideRight, 28, 42, 300),
			},
		}}},
		nil,
		{EventID: 11, Tracks: []hits.Track{
			{SuperLayer: 0, Fit: hits.Fit{M: -1, DOF: 1}, Hits: []hits.TrackHit{hit(1, 1, 0, 3, hits.SideLeft, -1, 0, 50)}},
			{SuperLayer: 3, Fit: hits.Fit{M: 0.5, DOF: 2}, Hits: []hits.TrackHit{hit(2, 4, 1, 7, hits.SideRight, 4, 1, 75)}},
		}},
	}
}
