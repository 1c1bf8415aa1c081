// Package reco reconstructs straight-line tracks in drift-chamber events.
//
// Responsibilities: the per-chamber minimum-layer precondition, delegation to
// the combinatorial search, and assembly of the per-event track table into a
// tagged Outcome that separates "no qualifying data" from "failed".
// Key types: Reconstructor, Outcome, Stats.
//
// Subpackages, leaves first: combos (k-combination iterator), linefit
// (weighted line fit), search (candidate selection), dispatch (worker pool).
//
// Dependency rule: reco may depend on hits and its own subpackages, never on
// storage, input parsing or the CLI.
package reco
