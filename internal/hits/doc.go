// Package hits owns the drift-chamber hit data model.
//
// Responsibilities: the immutable Hit record as produced by the upstream
// event builder and coordinate mapper, per-event grouping by super-layer,
// and the reconstructed Track/TrackHit records emitted by the engine.
// Key types: Hit, Event, Track, TrackHit, EventReconstruction.
//
// Dependency rule: hits depends on nothing else in this module.
// No fitting or SQL code is allowed in this package.
package hits
