// Package store provides the SQLite audit log for syncframe requests.
//
// The engine keeps each request's action log in memory; Store implements
// engine.Recorder so a copy of every entry, firing and outcome can be kept
// for later inspection (see the trace command).
//
// Tables:
//   - entries: one row per action log entry, UNIQUE(flow_token, idx)
//   - firings: one row per frame that reached a then clause,
//     UNIQUE(flow_token, sync_id, trail, ordinal)
//   - provenance: matched and produced entry indices per firing
//   - outcomes: the terminal result of each request
//
// Writes are idempotent (ON CONFLICT DO NOTHING), so recording the same
// request twice leaves the log unchanged. Reads order by idx or seq, never
// by wall time.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
