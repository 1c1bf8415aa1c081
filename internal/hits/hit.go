package hits

import "fmt"

// Detector geometry constants.
const (
	// NumSuperLayers is the number of super-layers (chambers) read out per event.
	NumSuperLayers = 4
	// NumLayers is the number of wire planes inside one super-layer.
	NumLayers = 4
)

// Hit is a single drift-cell hit already mapped to global coordinates.
// Hits are read-only once built; the engine never mutates them.
type Hit struct {
	Channel    int     `json:"channel"`
	Layer      int     `json:"layer"`      // 1..4, layer 4 is the top one
	SuperLayer int     `json:"superlayer"` // 0..3
	LeftX      float64 `json:"left_x"`     // global transverse position, left drift solution
	RightX     float64 `json:"right_x"`    // global transverse position, right drift solution
	WireZ      float64 `json:"wire_z"`     // global longitudinal position of the wire plane

	// Optional readout metadata carried through to the export stage.
	FPGA       int     `json:"fpga,omitempty"`
	TDCChannel int     `json:"tdc_channel,omitempty"`
	DriftTime  float64 `json:"drift_time,omitempty"` // ns
	WireX      float64 `json:"wire_x,omitempty"`     // global transverse position of the wire
}

// Validate reports whether the hit's layer and super-layer indices are in range.
func (h Hit) Validate() error {
	if h.Layer < 1 || h.Layer > NumLayers {
		return fmt.Errorf("hit channel %d: layer %d out of range [1,%d]", h.Channel, h.Layer, NumLayers)
	}
	if h.SuperLayer < 0 || h.SuperLayer >= NumSuperLayers {
		return fmt.Errorf("hit channel %d: superlayer %d out of range [0,%d)", h.Channel, h.SuperLayer, NumSuperLayers)
	}
	return nil
}

// Event is the set of hits collected for one trigger.
type Event struct {
	ID   int64 `json:"id"`
	Hits []Hit `json:"hits"`
}

// Clone returns a deep copy of the event so a worker can own it exclusively.
func (e Event) Clone() Event {
	out := Event{ID: e.ID}
	if e.Hits != nil {
		out.Hits = make([]Hit, len(e.Hits))
		copy(out.Hits, e.Hits)
	}
	return out
}

// BySuperLayer groups the event's hits by super-layer index. Input order is
// preserved inside each group. Hits with an out-of-range super-layer are dropped.
func (e Event) BySuperLayer() [NumSuperLayers][]Hit {
	var groups [NumSuperLayers][]Hit
	for _, h := range e.Hits {
		if h.SuperLayer < 0 || h.SuperLayer >= NumSuperLayers {
			continue
		}
		groups[h.SuperLayer] = append(groups[h.SuperLayer], h)
	}
	return groups
}

// DistinctLayers returns the number of distinct layer values among hs.
func DistinctLayers(hs []Hit) int {
	seen := make(map[int]struct{}, NumLayers)
	for _, h := range hs {
		seen[h.Layer] = struct{}{}
	}
	return len(seen)
}
