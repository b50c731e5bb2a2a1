// Package ledger provides SQLite-backed durable storage for the issue
// registry and the revision log.
//
// The ledger is the single owner of issue mutation. Issues are inserted
// once (idempotently, keyed by caller-assigned ID), only ever transition
// status, and are never deleted. History entries and revision records are
// append-only.
//
// Durability model: every mutating call commits before returning, so a
// crash mid-run loses at most the in-flight operation. The database is
// configured with:
//   - WAL mode for concurrent read access
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// Execution is single-writer by construction (one coordinator thread), so
// the connection pool is pinned to a single connection; no further locking
// discipline is needed.
//
// Queries return results in insertion order (rowid). The limit parameter
// truncates in that order; priority-first selection is the coordinator's
// job, issued as successive filtered queries.
package ledger
