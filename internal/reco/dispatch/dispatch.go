// Package dispatch applies event reconstruction across many independent
// events, either sequentially or on a fixed-size worker pool.
//
// Each task owns a private copy of its event, so workers share no mutable
// state. A panic inside a worker is recovered and reported as a
// WorkerFailure; the rest of the batch still completes.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/banshee-data/trackreco/internal/hits"
	"github.com/banshee-data/trackreco/internal/monitoring"
	"github.com/banshee-data/trackreco/internal/reco"
)

// ErrWorkerPanic wraps a panic recovered from a worker.
var ErrWorkerPanic = errors.New("worker panicked")

// EventReconstructor reconstructs one event.
type EventReconstructor interface {
	Event(ev hits.Event) reco.Outcome
}

// DefaultWorkers returns the default pool size: the number of CPUs minus
// two, and never less than one.
func DefaultWorkers() int {
	n := runtime.NumCPU() - 2
	if n < 1 {
		n = 1
	}
	return n
}

// WorkerFailure records an event whose reconstruction failed.
type WorkerFailure struct {
	EventID int64
	Err     error
}

func (f WorkerFailure) Error() string {
	return fmt.Sprintf("event %d: %v", f.EventID, f.Err)
}

func (f WorkerFailure) Unwrap() error { return f.Err }

// Stats summarises one dispatch.
type Stats struct {
	Events     int // events handed to workers
	WithTracks int
	Empty      int
	Failed     int
	Reco       reco.Stats
}

// Result is the aggregated output of a dispatch. Reconstructions holds only
// events that produced tracks.
type Result struct {
	Reconstructions []*hits.EventReconstruction
	Failures        []WorkerFailure
	Stats           Stats
}

// Dispatcher fans event reconstruction out over a worker pool.
type Dispatcher struct {
	rec     EventReconstructor
	workers int
}

// New returns a Dispatcher. workers <= 0 selects DefaultWorkers.
func New(rec EventReconstructor, workers int) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	return &Dispatcher{rec: rec, workers: workers}
}

// Workers returns the pool size used in parallel mode.
func (d *Dispatcher) Workers() int { return d.workers }

type task struct {
	out reco.Outcome
	ran bool
}

// Reconstruct reconstructs events and returns the non-empty results. With
// parallel set, events run on a pool of Workers goroutines; otherwise they
// run one at a time on the calling goroutine. The order of Reconstructions
// is not part of the contract.
//
// When ctx is cancelled no further events are started; the results gathered
// so far are returned together with ctx.Err().
func (d *Dispatcher) Reconstruct(ctx context.Context, events []hits.Event, parallel bool) (Result, error) {
	var tasks []task
	if parallel {
		tasks = d.runParallel(ctx, events)
	} else {
		tasks = d.runSequential(ctx, events)
	}

	var res Result
	for _, t := range tasks {
		if !t.ran {
			continue
		}
		res.Stats.Events++
		res.Stats.Reco.Add(t.out.Stats)
		switch t.out.Kind {
		case reco.OutcomeTracks:
			if t.out.Reconstruction == nil {
				res.Stats.Empty++
				continue
			}
			res.Stats.WithTracks++
			res.Reconstructions = append(res.Reconstructions, t.out.Reconstruction)
		case reco.OutcomeFailed:
			res.Stats.Failed++
			f := WorkerFailure{EventID: t.out.EventID, Err: t.out.Err}
			res.Failures = append(res.Failures, f)
			monitoring.Logf("reco: %v", f)
		default:
			res.Stats.Empty++
		}
	}

	if len(res.Failures) > 0 {
		monitoring.Logf("reco: %d of %d events failed", len(res.Failures), res.Stats.Events)
	}
	monitoring.Debugf("reco: %d events, %d with tracks, %d empty, %d failed (workers=%d parallel=%t)",
		res.Stats.Events, res.Stats.WithTracks, res.Stats.Empty, res.Stats.Failed, d.workers, parallel)

	return res, ctx.Err()
}

func (d *Dispatcher) runSequential(ctx context.Context, events []hits.Event) []task {
	tasks := make([]task, 0, len(events))
	for _, ev := range events {
		if ctx.Err() != nil {
			break
		}
		tasks = append(tasks, task{out: d.safeEvent(ev.Clone()), ran: true})
	}
	return tasks
}

func (d *Dispatcher) runParallel(ctx context.Context, events []hits.Event) []task {
	p := pool.NewWithResults[task]().WithMaxGoroutines(d.workers)
	for _, ev := range events {
		if ctx.Err() != nil {
			break
		}
		owned := ev.Clone()
		p.Go(func() task {
			if ctx.Err() != nil {
				return task{}
			}
			return task{out: d.safeEvent(owned), ran: true}
		})
	}
	return p.Wait()
}

// safeEvent runs the reconstructor and converts a panic into a failed outcome.
func (d *Dispatcher) safeEvent(ev hits.Event) reco.Outcome {
	var out reco.Outcome
	var pc panics.Catcher
	pc.Try(func() {
		out = d.rec.Event(ev)
	})
	if r := pc.Recovered(); r != nil {
		return reco.Outcome{
			Kind:    reco.OutcomeFailed,
			EventID: ev.ID,
			Err:     fmt.Errorf("%w: %w", ErrWorkerPanic, r.AsError()),
		}
	}
	if out.Kind == reco.OutcomeFailed && out.Err == nil {
		out.Err = errors.New("reconstruction failed")
	}
	return out
}
