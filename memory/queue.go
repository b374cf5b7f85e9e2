package memory

import (
	"context"
	"sync"
	"time"

	"github.com/nahom-zewdu/nuvom"
	"github.com/nahom-zewdu/nuvom/job"
)

type entry struct {
	job       *job.Job
	notBefore time.Time
}

// Queue is a bounded in-memory FIFO queue backend.
//
// Jobs live only in process memory; a crash loses them. There is no
// lease tracking: Ack is a no-op and Nack re-enqueues the job so that
// retry semantics still hold for ephemeral use.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	entries  []entry
	capacity int
	closed   bool
}

// NewQueue creates an in-memory queue. A capacity of zero or less means
// unbounded.
func NewQueue(capacity int) *Queue {
	q := &Queue{
		capacity: capacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends the job to the FIFO. A full bounded queue rejects the
// job with ErrQueueFull rather than blocking.
func (q *Queue) Enqueue(ctx context.Context, j *job.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.capacity > 0 && len(q.entries) >= q.capacity {
		return nuvom.ErrQueueFull
	}
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now().UTC()
	}
	q.entries = append(q.entries, entry{job: j.Clone()})
	q.cond.Signal()
	return nil
}

// popLocked removes and returns the first eligible entry, preserving
// arrival order among eligible jobs. It reports the earliest wake time
// when only delayed entries remain.
func (q *Queue) popLocked(now time.Time) (*job.Job, time.Time) {
	var earliest time.Time
	for i, e := range q.entries {
		if e.notBefore.After(now) {
			if earliest.IsZero() || e.notBefore.Before(earliest) {
				earliest = e.notBefore
			}
			continue
		}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		return e.job, time.Time{}
	}
	return nil, earliest
}

// Dequeue blocks up to timeout for a single job, returning (nil, nil)
// when none became available.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*job.Job, error) {
	deadline := time.Now().Add(timeout)
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		now := time.Now()
		j, wake := q.popLocked(now)
		if j != nil {
			return j, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 || q.closed {
			return nil, nil
		}
		if !wake.IsZero() {
			if until := time.Until(wake); until < remaining {
				remaining = until
			}
		}
		timer := time.AfterFunc(remaining, q.cond.Broadcast)
		q.cond.Wait()
		timer.Stop()
	}
}

// PopBatch returns up to n eligible jobs without blocking.
func (q *Queue) PopBatch(ctx context.Context, n int) ([]*job.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	var ret []*job.Job
	for len(ret) < n {
		j, _ := q.popLocked(now)
		if j == nil {
			break
		}
		ret = append(ret, j)
	}
	return ret, nil
}

// Ack is a no-op: the in-memory queue keeps no in-flight set.
func (q *Queue) Ack(ctx context.Context, id string) error {
	return nil
}

// Nack re-enqueues the job, making it eligible again after delay.
func (q *Queue) Nack(ctx context.Context, j *job.Job, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, entry{
		job:       j.Clone(),
		notBefore: time.Now().Add(delay),
	})
	q.cond.Signal()
	return nil
}

// Size returns the number of queued jobs, delayed entries included.
func (q *Queue) Size(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries), nil
}

// Clear removes all pending jobs.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
	return nil
}

// Close wakes all blocked consumers. Subsequent Dequeue calls return
// (nil, nil) immediately once the queue is drained.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
	return nil
}

var _ nuvom.Queue = (*Queue)(nil)
