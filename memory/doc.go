// Package memory provides in-memory queue and result backends.
//
// Neither backend persists anything: both are intended for tests and
// single-process ephemeral use. The queue is a bounded FIFO guarded by a
// mutex and a condition variable; it keeps no lease state, so Ack is a
// no-op and Nack simply re-enqueues the job after its delay.
package memory
