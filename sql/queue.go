package sql

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/uptrace/bun"

	"github.com/nahom-zewdu/nuvom"
	"github.com/nahom-zewdu/nuvom/codec"
	"github.com/nahom-zewdu/nuvom/internal"
	"github.com/nahom-zewdu/nuvom/job"
)

// QueueConfig defines lease and polling behavior of the SQL queue.
type QueueConfig struct {
	VisibilityTimeout time.Duration
	SweepInterval     time.Duration
	PollInterval      time.Duration
}

// Queue is a SQLite-backed queue with visibility timeout leasing.
//
// Dequeue performs selection and the pending-to-inflight transition in
// a single UPDATE with a subquery and RETURNING, so concurrent
// consumers never claim the same row. Expired leases are reclaimable
// both by the next pull and by the background sweeper.
type Queue struct {
	db    *bun.DB
	codec codec.Codec
	log   *slog.Logger

	visibility time.Duration
	poll       time.Duration

	sweeper   internal.TimerTask
	done      chan struct{}
	closeOnce sync.Once
	ownsDB    bool
}

// NewQueue creates a SQL queue on an existing database handle. Schema
// setup must be completed before use; the caller keeps ownership of db.
func NewQueue(db *bun.DB, c codec.Codec, config *QueueConfig, log *slog.Logger) *Queue {
	q := &Queue{
		db:         db,
		codec:      c,
		log:        log,
		visibility: config.VisibilityTimeout,
		poll:       config.PollInterval,
		done:       make(chan struct{}),
	}
	if q.poll <= 0 {
		q.poll = 20 * time.Millisecond
	}
	sweep := config.SweepInterval
	if sweep <= 0 {
		sweep = q.visibility / 2
	}
	if sweep <= 0 {
		sweep = time.Second
	}
	q.sweeper.Start(context.Background(), q.sweep, sweep)
	return q
}

// OpenQueue opens the database file at path, initializes the schema and
// returns a queue that owns (and closes) the handle.
func OpenQueue(ctx context.Context, path string, c codec.Codec, config *QueueConfig, log *slog.Logger) (*Queue, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := Setup(ctx, db); err != nil {
		return nil, err
	}
	q := NewQueue(db, c, config, log)
	q.ownsDB = true
	return q, nil
}

// Enqueue inserts the job as a pending row.
func (q *Queue) Enqueue(ctx context.Context, j *job.Job) error {
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now().UTC()
	}
	payload, err := q.codec.EncodeJob(j)
	if err != nil {
		return err
	}
	row := &jobRow{
		ID:         j.ID,
		Payload:    payload,
		Status:     rowPending,
		VisibleAt:  nanos(j.EnqueuedAt),
		EnqueuedAt: nanos(j.EnqueuedAt),
	}
	_, err = q.db.NewInsert().
		Model(row).
		Exec(ctx)
	return err
}

// quarantine removes an undecodable row from the pending set without
// failing the process.
func (q *Queue) quarantine(ctx context.Context, id string, cause error) {
	_, err := q.db.NewUpdate().
		Model((*jobRow)(nil)).
		Set("status = ?", rowCorrupt).
		Set("lease_expires_at = NULL").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		q.log.Error("cannot quarantine row", "id", id, "err", err)
		return
	}
	q.log.Warn("quarantined corrupt record", "id", id, "err", cause)
}

// PopBatch claims up to n eligible rows in one atomic transition.
//
// A row is eligible if it is visible and either pending or inflight
// with an expired lease.
func (q *Queue) PopBatch(ctx context.Context, n int) ([]*job.Job, error) {
	now := time.Now()
	lease := now.Add(q.visibility)
	subQuery := q.db.NewSelect().
		Model((*jobRow)(nil)).
		Column("id").
		Where("visible_at <= ?", now.UnixNano()).
		WhereGroup("AND", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.
				Where("status = ?", rowPending).
				WhereOr("status = ? AND lease_expires_at < ?", rowInflight, now.UnixNano())
		}).
		Order("enqueued_at ASC").
		Limit(n)
	var rows []*jobRow
	err := q.db.NewUpdate().
		Model((*jobRow)(nil)).
		Set("status = ?", rowInflight).
		Set("lease_expires_at = ?", lease.UnixNano()).
		Where("id IN (?)", subQuery).
		Returning("*").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	var ret []*job.Job
	for _, row := range rows {
		j, err := q.codec.DecodeJob(row.Payload)
		if err != nil {
			q.quarantine(ctx, row.ID, err)
			continue
		}
		ret = append(ret, j)
	}
	return ret, nil
}

// Dequeue polls for a single job until one is claimed or the timeout
// elapses.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*job.Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		jobs, err := q.PopBatch(ctx, 1)
		if err != nil {
			return nil, err
		}
		if len(jobs) > 0 {
			return jobs[0], nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		wait := q.poll
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
			return nil, nil
		case <-time.After(wait):
		}
	}
}

// Ack deletes the inflight row, completing the lease.
func (q *Queue) Ack(ctx context.Context, id string) error {
	_, err := q.db.NewDelete().
		Model((*jobRow)(nil)).
		Where("id = ?", id).
		Where("status = ?", rowInflight).
		Exec(ctx)
	return err
}

// Nack returns the row to the pending set with the job's current field
// values, visible again after delay.
func (q *Queue) Nack(ctx context.Context, j *job.Job, delay time.Duration) error {
	payload, err := q.codec.EncodeJob(j)
	if err != nil {
		return err
	}
	now := time.Now()
	_, err = q.db.NewUpdate().
		Model((*jobRow)(nil)).
		Set("status = ?", rowPending).
		Set("payload = ?", payload).
		Set("visible_at = ?", now.Add(delay).UnixNano()).
		Set("lease_expires_at = NULL").
		Where("id = ?", j.ID).
		Exec(ctx)
	return err
}

// sweep resets inflight rows whose lease expired back to pending.
func (q *Queue) sweep(ctx context.Context) {
	res, err := q.db.NewUpdate().
		Model((*jobRow)(nil)).
		Set("status = ?", rowPending).
		Set("lease_expires_at = NULL").
		Where("status = ?", rowInflight).
		Where("lease_expires_at < ?", time.Now().UnixNano()).
		Exec(ctx)
	if err != nil {
		q.log.Error("sweep failed", "err", err)
		return
	}
	if n := getAffected(res); n > 0 {
		q.log.Warn("leases expired, jobs requeued", "count", n)
	}
}

// Size counts pending rows, delayed entries included.
func (q *Queue) Size(ctx context.Context) (int, error) {
	return q.db.NewSelect().
		Model((*jobRow)(nil)).
		Where("status = ?", rowPending).
		Count(ctx)
}

// Clear deletes all pending rows.
func (q *Queue) Clear(ctx context.Context) error {
	_, err := q.db.NewDelete().
		Model((*jobRow)(nil)).
		Where("status = ?", rowPending).
		Exec(ctx)
	return err
}

// Close stops the sweeper and, when the queue owns its database handle,
// closes it.
func (q *Queue) Close() error {
	var err error
	q.closeOnce.Do(func() {
		close(q.done)
		<-q.sweeper.Stop()
		if q.ownsDB {
			err = q.db.Close()
		}
	})
	return err
}

var _ nuvom.Queue = (*Queue)(nil)
