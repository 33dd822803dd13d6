// Package store provides SQLite-backed durable storage for observation
// tables.
//
// The store is an append-only log with:
//   - Runs: one record per optimization run, with its serialized config
//   - Run columns: each run's column order
//   - Observations: merged rows keyed by (run_id, ix)
//
// Writes are idempotent. Re-recording a row with an index the run already
// has is ignored, matching the in-memory rule that an index is merged once.
//
// Reads are deterministic: observations come back ORDER BY ix ASC and runs
// ORDER BY created_at ASC, id ASC.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
