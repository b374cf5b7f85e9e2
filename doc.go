// Package nuvom is a broker-less background task execution engine.
//
// # Overview
//
// nuvom runs registered tasks asynchronously inside a single process,
// without an external broker. Task invocations are serialized into
// durable job records, placed into a pluggable queue backend, dispatched
// to a pool of workers, executed with retry and timeout discipline, and
// their outcomes persisted into a pluggable result backend.
//
// The runtime is assembled from small contracts:
//
//	Queue          — durable job transport with lease semantics
//	ResultBackend  — terminal record storage
//	codec.Codec    — binary record serialization
//	task.Registry  — task name to callable mapping
//	plugin.Plugin  — user-supplied backends bound at startup
//
// # Delivery Semantics
//
// nuvom provides at-least-once execution. A job may run more than once
// if a worker crashes before acknowledging it or its lease expires.
// Handlers should therefore be idempotent. Within a live process, a
// dequeued job is executed by exactly one worker at a time.
//
// # Lease Model
//
// Persistent queue backends hide a dequeued job from other consumers for
// a visibility timeout. Ack removes the job permanently; Nack returns it
// to the pending set, optionally after a delay. A job whose lease expires
// without an Ack becomes visible again with its retry budget unchanged.
//
// # State Machine
//
// Jobs follow this lifecycle:
//
//	PENDING -> RUNNING    (dequeue)
//	RUNNING -> SUCCESS
//	RUNNING -> FAILED     (retries exhausted)
//	RUNNING -> PENDING    (retry scheduled)
//	RUNNING -> TIMEOUT    (per timeout policy)
//	PENDING -> CANCELLED  (shutdown before start)
//
// Terminal states are immutable once persisted.
//
// # Worker Pool
//
// The Pool owns a fixed set of workers and one dispatcher. The dispatcher
// pulls jobs in batches and assigns each to the least-busy worker; every
// worker executes its assigned jobs sequentially. Shutdown is graceful:
// pulling stops first, running jobs get a bounded grace period, and jobs
// still running past the grace are returned to the pending set.
//
// # Timeouts
//
// Job timeouts are wall-clock. The runner does not cancel user code that
// ignores context cancellation; it abandons the result and records the
// TIMEOUT outcome while the runaway goroutine finishes in the background.
//
// # Summary
//
// nuvom provides reliable asynchronous job processing for hosts that do
// not want to operate a broker, with durable file and SQLite queues,
// pluggable backends, and explicit lifecycle control.
package nuvom
