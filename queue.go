package nuvom

import (
	"context"
	"time"

	"github.com/nahom-zewdu/nuvom/job"
)

// Queue defines the transport contract every queue backend implements.
//
// Persistent backends provide lease semantics: a successful Dequeue or
// PopBatch transfers the job to an in-flight set with a visibility
// timeout. Ack removes it permanently; Nack returns it to the pending
// set. A job whose lease expires without an Ack becomes visible again
// with its fields unchanged.
//
// Callers must not re-submit a job id; Enqueue idempotency on id is at
// the implementation's discretion.
type Queue interface {

	// Enqueue makes the job visible for dequeue.
	//
	// Implementations stamp EnqueuedAt if it is zero and must persist
	// the record durably before returning nil. If Enqueue returns a
	// non-nil error, the job must not be considered enqueued.
	Enqueue(ctx context.Context, j *job.Job) error

	// Dequeue blocks up to timeout waiting for a single job.
	//
	// It returns (nil, nil) when no job became available before the
	// timeout elapsed. On persistent backends the returned job is
	// leased for the backend's visibility timeout.
	Dequeue(ctx context.Context, timeout time.Duration) (*job.Job, error)

	// PopBatch returns up to n jobs without blocking, best effort.
	//
	// Order is arrival order unless the backend documents otherwise;
	// callers treat order as a hint.
	PopBatch(ctx context.Context, n int) ([]*job.Job, error)

	// Ack acknowledges a leased job as terminally handled, removing it
	// from the in-flight set.
	Ack(ctx context.Context, id string) error

	// Nack returns a leased job to the pending set, making it visible
	// again after delay.
	//
	// The job's current field values (retry budget, attempt history)
	// are persisted, so a runner-side decrement survives the requeue.
	Nack(ctx context.Context, j *job.Job, delay time.Duration) error

	// Size returns the approximate number of pending jobs. The count
	// may be eventually consistent.
	Size(ctx context.Context) (int, error)

	// Clear removes all pending jobs. Intended for tests.
	Clear(ctx context.Context) error

	// Close releases backend resources. Pending jobs survive on
	// persistent backends.
	Close() error
}
