// Package db persists reconstruction runs in SQLite.
//
// Responsibilities:
//   - open databases with the standard PRAGMAs
//   - apply the embedded schema migrations
//   - store runs, tracks and per-hit calibration rows
//
// Key types: DB, Run, StoredTrack, StoredHit.
//
// Dependency rule: db may import internal/hits and internal/export but never
// the reconstruction engine.
package db
