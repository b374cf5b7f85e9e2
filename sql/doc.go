// Package sql provides bun-based SQLite queue and result backends.
//
// # Overview
//
// The SQL backends persist jobs and terminal records in a single-file
// embedded database via github.com/uptrace/bun with the pure-Go
// modernc.org/sqlite driver:
//
//   - durable persistence with write-ahead logging
//   - atomic state transitions
//   - visibility timeout (lease) semantics on the queue
//   - indexed metadata on the result store
//
// # Concurrency Model
//
// Dequeue is implemented as a single UPDATE statement with a subquery
// and RETURNING, so selection and the transition to the in-flight state
// are one atomic step; there is no window where two consumers can claim
// the same row.
//
// A background sweeper resets rows whose lease expired back to the
// pending state on an interval.
//
// The database is treated as single-writer per file. Open configures
// WAL mode, a busy_timeout and a single connection, which is the
// correct posture for SQLite under concurrent readers.
//
// # Schema
//
// Setup (or MustSetup) creates, idempotently and inside one transaction:
//
//	jobs(id TEXT PRIMARY KEY, payload BLOB, status TEXT,
//	     visible_at INTEGER, lease_expires_at INTEGER,
//	     enqueued_at INTEGER)
//	results(id TEXT PRIMARY KEY, func_name TEXT, status TEXT,
//	        value BLOB, error TEXT, traceback TEXT, attempts BLOB,
//	        retries_left INTEGER, max_retries INTEGER,
//	        created_at INTEGER, enqueued_at INTEGER,
//	        started_at INTEGER, finished_at INTEGER)
//
// plus indexes on (status, visible_at), (status, lease_expires_at) for
// the queue and (status), (finished_at) for results. Timestamps are
// unix nanoseconds.
//
// Queue payloads are codec-encoded job records. A row whose payload can
// no longer be decoded is quarantined by setting its status to corrupt,
// which removes it from the pending set without failing the process.
package sql
