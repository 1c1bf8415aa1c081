// Package export flattens reconstructed tracks into per-hit rows for
// calibration studies and applies the standard cleaning cuts.
package export

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/trackreco/internal/hits"
)

// ChannelsPerFPGA offsets the TDC channel of the second readout board so
// that CH is unique across boards.
const ChannelsPerFPGA = 128

// Row is one reconstructed hit with derived calibration quantities.
type Row struct {
	EventID    int64     `json:"event_id"`
	SuperLayer int       `json:"sl"`
	Layer      int       `json:"layer"`
	Channel    int       `json:"channel"`
	CH         int       `json:"ch"` // TDC channel numbered across FPGAs
	Side       hits.Side `json:"side"`
	X          float64   `json:"x"`
	DriftTime  float64   `json:"drift_time"`
	DWireHit   float64   `json:"d_wire_hit"` // X - wire position, mm
	Theta      float64   `json:"theta"`      // track angle, degrees
	M          float64   `json:"m"`
	Q          float64   `json:"q"`
	ChisqComp  float64   `json:"chisq_comp"`
}

// Cuts are the open intervals a row must fall inside to be kept.
type Cuts struct {
	DriftTimeMin float64 // ns
	DriftTimeMax float64 // ns
	DWireHitMax  float64 // mm, applied to |D_WIRE_HIT|
}

// DefaultCuts returns the standard cleaning window.
func DefaultCuts() Cuts {
	return Cuts{DriftTimeMin: -200, DriftTimeMax: 600, DWireHitMax: 21}
}

// Keep reports whether r passes the cuts.
func (c Cuts) Keep(r Row) bool {
	return r.DriftTime > c.DriftTimeMin && r.DriftTime < c.DriftTimeMax &&
		math.Abs(r.DWireHit) < c.DWireHitMax
}

// Theta returns the track angle in degrees for slope m.
func Theta(m float64) float64 {
	return math.Atan(m) * 180 / math.Pi
}

// SequentialChannel numbers TDC channels across readout boards.
func SequentialChannel(fpga, tdc int) int {
	return tdc + ChannelsPerFPGA*fpga
}

// Rows flattens every track hit of recs in event, track and hit order.
func Rows(recs []*hits.EventReconstruction) []Row {
	var rows []Row
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		for _, tr := range rec.Tracks {
			theta := Theta(tr.Fit.M)
			for _, th := range tr.Hits {
				rows = append(rows, Row{
					EventID:    rec.EventID,
					SuperLayer: tr.SuperLayer,
					Layer:      th.Layer,
					Channel:    th.Channel,
					CH:         SequentialChannel(th.FPGA, th.TDCChannel),
					Side:       th.Side,
					X:          th.X,
					DriftTime:  th.DriftTime,
					DWireHit:   th.X - th.WireX,
					Theta:      theta,
					M:          tr.Fit.M,
					Q:          tr.Fit.Q,
					ChisqComp:  tr.Fit.ChisqComp,
				})
			}
		}
	}
	return rows
}

// Filter returns the rows that pass c, preserving order.
func Filter(rows []Row, c Cuts) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if c.Keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Key identifies one readout channel of one super-layer.
type Key struct {
	SuperLayer int
	CH         int
}

func (k Key) String() string {
	return fmt.Sprintf("sl%d/ch%d", k.SuperLayer, k.CH)
}

// GroupByChannel buckets rows by (super-layer, CH).
func GroupByChannel(rows []Row) map[Key][]Row {
	out := make(map[Key][]Row)
	for _, r := range rows {
		k := Key{SuperLayer: r.SuperLayer, CH: r.CH}
		out[k] = append(out[k], r)
	}
	return out
}

// SortedKeys returns the keys of groups ordered by super-layer then CH.
func SortedKeys(groups map[Key][]Row) []Key {
	keys := make([]Key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].SuperLayer != keys[j].SuperLayer {
			return keys[i].SuperLayer < keys[j].SuperLayer
		}
		return keys[i].CH < keys[j].CH
	})
	return keys
}
