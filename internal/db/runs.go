package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/trackreco/internal/export"
	"github.com/banshee-data/trackreco/internal/hits"
	"github.com/banshee-data/trackreco/internal/timeutil"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is one invocation of the reconstruction over an input file.
type Run struct {
	RunID      string          `json:"run_id"`
	Input      string          `json:"input"`
	Parallel   bool            `json:"parallel"`
	Workers    int             `json:"workers"`
	ConfigJSON json.RawMessage `json:"config_json,omitempty"`
	RunCounts
	Status     string `json:"status"`
	StartedAt  int64  `json:"started_at"` // unix nanos
	FinishedAt *int64 `json:"finished_at,omitempty"`
}

// RunCounts are the per-run event and track totals.
type RunCounts struct {
	Events     int `json:"events"`
	WithTracks int `json:"with_tracks"`
	Empty      int `json:"empty"`
	Failed     int `json:"failed"`
	Tracks     int `json:"tracks"`
}

// StoredTrack is a persisted track without its hits.
type StoredTrack struct {
	TrackID    int64    `json:"track_id"`
	RunID      string   `json:"run_id"`
	EventID    int64    `json:"event_id"`
	SuperLayer int      `json:"superlayer"`
	Fit        hits.Fit `json:"fit"`
}

// RunStore persists runs, tracks and their hits.
type RunStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewRunStore creates a new RunStore on the system clock.
func NewRunStore(db *sql.DB) *RunStore {
	return NewRunStoreWithClock(db, timeutil.RealClock{})
}

// NewRunStoreWithClock creates a RunStore that timestamps runs and paces
// busy retries with clock.
func NewRunStoreWithClock(db *sql.DB, clock timeutil.Clock) *RunStore {
	return &RunStore{db: db, clock: clock}
}

// CreateRun inserts run with status running. An empty RunID is replaced by
// a new UUID and a zero StartedAt by the current time.
func (s *RunStore) CreateRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.StartedAt == 0 {
		run.StartedAt = s.clock.Now().UnixNano()
	}
	run.Status = RunStatusRunning

	var cfg interface{}
	if len(run.ConfigJSON) > 0 {
		cfg = string(run.ConfigJSON)
	}

	return retryOnBusy(s.clock, func() error {
		_, err := s.db.Exec(`
			INSERT INTO reco_runs (run_id, input, parallel, workers, config_json, status, started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.Input, run.Parallel, run.Workers, cfg, run.Status, run.StartedAt,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	})
}

// InsertReconstructions stores every track of recs and one row per track hit
// in a single transaction. It returns the number of tracks written.
func (s *RunStore) InsertReconstructions(runID string, recs []*hits.EventReconstruction) (int, error) {
	var written int
	err := retryOnBusy(s.clock, func() error {
		written = 0
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		trackStmt, err := tx.Prepare(`
			INSERT INTO reco_tracks (run_id, event_id, superlayer, m, q, chisq_comp, chi2, dof, p_value, sigma_m, sigma_q)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare track insert: %w", err)
		}
		defer trackStmt.Close()

		hitStmt, err := tx.Prepare(`
			INSERT INTO reco_hits (track_id, channel, layer, side, x, ch, drift_time, d_wire_hit, theta)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare hit insert: %w", err)
		}
		defer hitStmt.Close()

		for _, rec := range recs {
			if rec == nil {
				continue
			}
			for _, tr := range rec.Tracks {
				f := tr.Fit
				res, err := trackStmt.Exec(runID, rec.EventID, tr.SuperLayer,
					f.M, f.Q, f.ChisqComp, f.Chi2, f.DOF, f.PValue, f.SigmaM, f.SigmaQ)
				if err != nil {
					return fmt.Errorf("insert track event %d sl %d: %w", rec.EventID, tr.SuperLayer, err)
				}
				trackID, err := res.LastInsertId()
				if err != nil {
					return fmt.Errorf("track id: %w", err)
				}

				theta := export.Theta(f.M)
				for _, th := range tr.Hits {
					_, err := hitStmt.Exec(trackID, th.Channel, th.Layer, th.Side.String(), th.X,
						export.SequentialChannel(th.FPGA, th.TDCChannel), th.DriftTime, th.X-th.WireX, theta)
					if err != nil {
						return fmt.Errorf("insert hit event %d channel %d: %w", rec.EventID, th.Channel, err)
					}
				}
				written++
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// FinishRun records the final counts and status of a run.
func (s *RunStore) FinishRun(runID string, counts RunCounts, status string) error {
	now := s.clock.Now().UnixNano()
	return retryOnBusy(s.clock, func() error {
		res, err := s.db.Exec(`
			UPDATE reco_runs
			SET events = ?, with_tracks = ?, empty = ?, failed = ?, tracks = ?, status = ?, finished_at = ?
			WHERE run_id = ?`,
			counts.Events, counts.WithTracks, counts.Empty, counts.Failed, counts.Tracks, status, now, runID,
		)
		if err != nil {
			return fmt.Errorf("update run: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return nil
	})
}

const runColumns = `run_id, input, parallel, workers, config_json, events, with_tracks, empty, failed, tracks,
	status, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(sc rowScanner) (*Run, error) {
	var r Run
	var cfg sql.NullString
	var finished sql.NullInt64
	err := sc.Scan(&r.RunID, &r.Input, &r.Parallel, &r.Workers, &cfg,
		&r.Events, &r.WithTracks, &r.Empty, &r.Failed, &r.Tracks,
		&r.Status, &r.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	if cfg.Valid {
		r.ConfigJSON = json.RawMessage(cfg.String)
	}
	if finished.Valid {
		v := finished.Int64
		r.FinishedAt = &v
	}
	return &r, nil
}

// GetRun returns a run by ID.
func (s *RunStore) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM reco_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *RunStore) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM reco_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recently started run.
func (s *RunStore) LatestRun() (*Run, error) {
	runs, err := s.ListRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("latest run: %w", ErrNotFound)
	}
	return runs[0], nil
}

// DeleteRun removes a run together with its tracks and hits.
func (s *RunStore) DeleteRun(runID string) error {
	return retryOnBusy(s.clock, func() error {
		res, err := s.db.Exec(`DELETE FROM reco_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return nil
	})
}

// ListTracks returns the tracks of a run ordered by event and super-layer.
func (s *RunStore) ListTracks(runID string) ([]StoredTrack, error) {
	rows, err := s.db.Query(`
		SELECT track_id, run_id, event_id, superlayer, m, q, chisq_comp, chi2, dof, p_value, sigma_m, sigma_q
		FROM reco_tracks
		WHERE run_id = ?
		ORDER BY event_id, superlayer`, runID)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []StoredTrack
	for rows.Next() {
		var t StoredTrack
		f := &t.Fit
		if err := rows.Scan(&t.TrackID, &t.RunID, &t.EventID, &t.SuperLayer,
			&f.M, &f.Q, &f.ChisqComp, &f.Chi2, &f.DOF, &f.PValue, &f.SigmaM, &f.SigmaQ); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// HitRows returns the calibration rows of a run ordered by event and
// super-layer, keeping each track's hit order.
func (s *RunStore) HitRows(runID string) ([]export.Row, error) {
	return s.queryRows(`WHERE t.run_id = ?`, runID)
}

// ChannelRows returns the calibration rows of one (super-layer, CH) channel.
func (s *RunStore) ChannelRows(runID string, sl, ch int) ([]export.Row, error) {
	return s.queryRows(`WHERE t.run_id = ? AND t.superlayer = ? AND h.ch = ?`, runID, sl, ch)
}

func (s *RunStore) queryRows(where string, args ...any) ([]export.Row, error) {
	rows, err := s.db.Query(`
		SELECT t.event_id, t.superlayer, h.layer, h.channel, h.ch, h.side, h.x, h.drift_time,
		       h.d_wire_hit, h.theta, t.m, t.q, t.chisq_comp
		FROM reco_hits h
		JOIN reco_tracks t ON t.track_id = h.track_id
		`+where+`
		ORDER BY t.event_id, t.superlayer, h.hit_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query hits: %w", err)
	}
	defer rows.Close()

	var out []export.Row
	for rows.Next() {
		var r export.Row
		var side string
		if err := rows.Scan(&r.EventID, &r.SuperLayer, &r.Layer, &r.Channel, &r.CH, &side, &r.X,
			&r.DriftTime, &r.DWireHit, &r.Theta, &r.M, &r.Q, &r.ChisqComp); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		if side == hits.SideLeft.String() {
			r.Side = hits.SideLeft
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const busyRetries = 5

// retryOnBusy retries fn while SQLite reports the database as locked.
func retryOnBusy(clock timeutil.Clock, fn func() error) error {
	var err error
	for attempt := 0; attempt < busyRetries; attempt++ {
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		clock.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
