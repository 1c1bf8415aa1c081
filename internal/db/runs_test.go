package db

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackreco/internal/export"
	"github.com/banshee-data/trackreco/internal/hits"
	"github.com/banshee-data/trackreco/internal/timeutil"
)

func TestRunStore_Lifecycle(t *testing.T) {
	t.Parallel()

	store := NewRunStore(setupTestDB(t).DB)

	run := &Run{Input: "events.json", Parallel: true, Workers: 6, ConfigJSON: json.RawMessage(`{"sigma":0.4}`)}
	require.NoError(t, store.CreateRun(run))
	assert.NotEmpty(t, run.RunID)
	assert.NotZero(t, run.StartedAt)
	assert.Equal(t, RunStatusRunning, run.Status)

	got, err := store.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "events.json", got.Input)
	assert.True(t, got.Parallel)
	assert.Equal(t, 6, got.Workers)
	assert.JSONEq(t, `{"sigma":0.4}`, string(got.ConfigJSON))
	assert.Nil(t, got.FinishedAt)

	counts := RunCounts{Events: 5, WithTracks: 3, Empty: 1, Failed: 1, Tracks: 4}
	require.NoError(t, store.FinishRun(run.RunID, counts, RunStatusCompleted))

	got, err = store.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, counts, got.RunCounts)
	assert.Equal(t, RunStatusCompleted, got.Status)
	require.NotNil(t, got.FinishedAt)
	assert.GreaterOrEqual(t, *got.FinishedAt, got.StartedAt)
}

func TestRunStore_ClockTimestamps(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	store := NewRunStoreWithClock(setupTestDB(t).DB, clock)

	run := &Run{Input: "events.json"}
	require.NoError(t, store.CreateRun(run))
	assert.Equal(t, start.UnixNano(), run.StartedAt)

	clock.Advance(42 * time.Second)
	require.NoError(t, store.FinishRun(run.RunID, RunCounts{Events: 1}, RunStatusCompleted))

	got, err := store.GetRun(run.RunID)
	require.NoError(t, err)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, 42*time.Second, time.Duration(*got.FinishedAt-got.StartedAt))
}

func TestRetryOnBusy(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	calls := 0
	err := retryOnBusy(clock, func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 100 * time.Millisecond}, clock.Sleeps())

	calls = 0
	err = retryOnBusy(clock, func() error {
		calls++
		return errors.New("constraint failed")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = retryOnBusy(timeutil.NewMockClock(time.Unix(0, 0)), func() error {
		calls++
		return errors.New("database is locked")
	})
	require.Error(t, err)
	assert.Equal(t, busyRetries, calls)
}

func TestRunStore_NotFound(t *testing.T) {
	t.Parallel()

	store := NewRunStore(setupTestDB(t).DB)

	_, err := store.GetRun("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(store.FinishRun("missing", RunCounts{}, RunStatusFailed), ErrNotFound))
	assert.True(t, errors.Is(store.DeleteRun("missing"), ErrNotFound))
	_, err = store.LatestRun()
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRunStore_ListRuns(t *testing.T) {
	t.Parallel()

	store := NewRunStore(setupTestDB(t).DB)
	for i, input := range []string{"a.json", "b.json", "c.json"} {
		require.NoError(t, store.CreateRun(&Run{Input: input, StartedAt: int64(1000 + i)}))
	}

	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "c.json", runs[0].Input)

	runs, err = store.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	latest, err := store.LatestRun()
	require.NoError(t, err)
	assert.Equal(t, "c.json", latest.Input)
}

func TestRunStore_InsertReconstructions(t *testing.T) {
	t.Parallel()

	store := NewRunStore(setupTestDB(t).DB)
	run := &Run{Input: "events.json"}
	require.NoError(t, store.CreateRun(run))

	n, err := store.InsertReconstructions(run.RunID, sampleReconstructions())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	tracks, err := store.ListTracks(run.RunID)
	require.NoError(t, err)
	require.Len(t, tracks, 3)
	assert.Equal(t, int64(10), tracks[0].EventID)
	assert.Equal(t, hits.Fit{M: 1, Q: 2, ChisqComp: 0.5, Chi2: 1, DOF: 2, PValue: 0.6, SigmaM: 0.01, SigmaQ: 0.2}, tracks[0].Fit)
	assert.Equal(t, []int{0, 3}, []int{tracks[1].SuperLayer, tracks[2].SuperLayer})

	rows, err := store.HitRows(run.RunID)
	require.NoError(t, err)
	want := export.Rows(sampleReconstructions())
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("HitRows mismatch (-want +got):\n%s", diff)
	}
}

func TestRunStore_ChannelRows(t *testing.T) {
	t.Parallel()

	store := NewRunStore(setupTestDB(t).DB)
	run := &Run{Input: "events.json"}
	require.NoError(t, store.CreateRun(run))
	_, err := store.InsertReconstructions(run.RunID, sampleReconstructions())
	require.NoError(t, err)

	rows, err := store.ChannelRows(run.RunID, 1, 135)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 7, rows[0].Channel)
	assert.Equal(t, hits.SideLeft, rows[0].Side)
	assert.InDelta(t, -6.0, rows[0].DWireHit, 1e-12)
	assert.InDelta(t, 45.0, rows[0].Theta, 1e-12)

	rows, err = store.ChannelRows(run.RunID, 0, 135)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRunStore_DeleteRunCascades(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	store := NewRunStore(db.DB)
	run := &Run{Input: "events.json"}
	require.NoError(t, store.CreateRun(run))
	_, err := store.InsertReconstructions(run.RunID, sampleReconstructions())
	require.NoError(t, err)

	require.NoError(t, store.DeleteRun(run.RunID))

	var tracks, hitRows int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM reco_tracks`).Scan(&tracks))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM reco_hits`).Scan(&hitRows))
	assert.Zero(t, tracks)
	assert.Zero(t, hitRows)
}

func TestRunStore_InsertRequiresRun(t *testing.T) {
	t.Parallel()

	store := NewRunStore(setupTestDB(t).DB)
	_, err := store.InsertReconstructions("no-such-run", sampleReconstructions())
	require.Error(t, err)

	tracks, err := store.ListTracks("no-such-run")
	require.NoError(t, err)
	assert.Empty(t, tracks, "failed insert leaves no partial rows")
}
