package hits

// Side identifies which drift solution of a hit was chosen by the fit.
type Side int

const (
	SideRight Side = iota
	SideLeft
)

func (s Side) String() string {
	if s == SideLeft {
		return "left"
	}
	return "right"
}

// TrackHit is a hit selected for a track, annotated with the shared line
// parameters and the chosen transverse position.
type TrackHit struct {
	Hit
	Side Side    `json:"side"`
	X    float64 `json:"x"`
	M    float64 `json:"m"`
	Q    float64 `json:"q"`
}

// Fit summarises the line fit that produced a track.
type Fit struct {
	M         float64 `json:"m"`
	Q         float64 `json:"q"`
	ChisqComp float64 `json:"chisq_comp"`
	Chi2      float64 `json:"chi2"`
	DOF       int     `json:"dof"`
	PValue    float64 `json:"p_value"`
	SigmaM    float64 `json:"sigma_m"`
	SigmaQ    float64 `json:"sigma_q"`
}

// Track is the best straight-line fit through one super-layer in one event.
type Track struct {
	SuperLayer int        `json:"superlayer"`
	Fit        Fit        `json:"fit"`
	Hits       []TrackHit `json:"hits"`
}

// EventReconstruction holds every track found in one event, in super-layer order.
type EventReconstruction struct {
	EventID int64   `json:"event_id"`
	Tracks  []Track `json:"tracks"`
}

// NumHits returns the total number of track rows in the reconstruction.
func (r *EventReconstruction) NumHits() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, t := range r.Tracks {
		n += len(t.Hits)
	}
	return n
}
