// Package file provides queue and result backends persisted as plain
// files, one record per file.
//
// # Queue Layout
//
//	<root>/pending/<ns>-<id>.rec    jobs visible for dequeue
//	<root>/inflight/<ns>-<id>.rec   leased jobs awaiting ack
//	<root>/<ns>-<id>.rec.corrupt    quarantined undecodable records
//
// Filenames embed the enqueue timestamp in zero-padded nanoseconds, so a
// lexicographic directory sort yields arrival order. All writes go
// through a *.tmp file followed by an atomic rename; claiming a job is a
// rename from pending/ into inflight/. The parent directory is fsynced
// after renames on platforms that support it.
//
// Lease expiry uses the inflight file's modification time, refreshed at
// claim. A sweeper rescans inflight/ on an interval and renames records
// whose lease elapsed back into pending/, budget unchanged. This makes
// lease recovery survive process crashes without any extra bookkeeping.
//
// Nack delays are tracked in memory only: after a crash a nacked job
// becomes visible immediately, which is safe (the delay is a scheduling
// hint, not a correctness property).
//
// # Result Layout
//
//	<root>/<id>.res    one codec-encoded terminal record per job
//
// Terminal records are never overwritten; the first write wins.
package file
