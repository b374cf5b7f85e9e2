package file

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nahom-zewdu/nuvom"
	"github.com/nahom-zewdu/nuvom/codec"
	"github.com/nahom-zewdu/nuvom/internal"
	"github.com/nahom-zewdu/nuvom/job"
)

const (
	pendingDir  = "pending"
	inflightDir = "inflight"
	recExt      = ".rec"
	corruptExt  = ".corrupt"
)

// QueueConfig defines the durability and scheduling behavior of a
// file-backed queue.
//
// VisibilityTimeout is the lease duration of a claimed job; a claimed
// record not acked within it is returned to pending by the sweeper.
// SweepInterval is how often the sweeper rescans inflight records.
// PollInterval bounds how long a blocking Dequeue sleeps between
// directory scans.
type QueueConfig struct {
	VisibilityTimeout time.Duration
	SweepInterval     time.Duration
	PollInterval      time.Duration
}

// Queue is a file-backed queue with one record file per pending job.
//
// Claims, lease-expiry requeues and quarantines are atomic renames. Nack
// writes a fresh pending record before removing the inflight one, so a
// crash never loses a job; a crash inside a Nack can leave it in both
// pending and inflight.
type Queue struct {
	root  string
	codec codec.Codec
	log   *slog.Logger

	visibility time.Duration
	poll       time.Duration

	mu       sync.Mutex
	inflight map[string]string    // job id -> inflight filename
	delayed  map[string]time.Time // pending filename -> visible at

	sweeper   internal.TimerTask
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue opens (or creates) a file queue rooted at dir.
//
// The sweeper starts immediately and runs until Close.
func NewQueue(dir string, c codec.Codec, config *QueueConfig, log *slog.Logger) (*Queue, error) {
	for _, sub := range []string{pendingDir, inflightDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create queue dir: %w", err)
		}
	}
	q := &Queue{
		root:       dir,
		codec:      c,
		log:        log,
		visibility: config.VisibilityTimeout,
		poll:       config.PollInterval,
		inflight:   make(map[string]string),
		delayed:    make(map[string]time.Time),
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
	return q, nil
}

// recName builds the record filename: zero-padded enqueue nanoseconds
// followed by the job id, so lexicographic order equals arrival order.
func recName(j *job.Job) string {
	return fmt.Sprintf("%020d-%s%s", j.EnqueuedAt.UnixNano(), j.ID, recExt)
}

func idOf(name string) string {
	trimmed := strings.TrimSuffix(name, recExt)
	if i := strings.IndexByte(trimmed, '-'); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

func (q *Queue) pendingPath(name string) string {
	return filepath.Join(q.root, pendingDir, name)
}

func (q *Queue) inflightPath(name string) string {
	return filepath.Join(q.root, inflightDir, name)
}

// Enqueue writes the job as a pending record via tmp-then-rename.
func (q *Queue) Enqueue(ctx context.Context, j *job.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now().UTC()
	}
	data, err := q.codec.EncodeJob(j)
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(q.root, pendingDir), recName(j), data)
}

// pendingNames returns pending record filenames in lexicographic order,
// excluding temp files and records still under a nack delay.
func (q *Queue) pendingNames(now time.Time) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(q.root, pendingDir))
	if err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	var names []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, recExt) {
			continue
		}
		if at, ok := q.delayed[name]; ok {
			if at.After(now) {
				continue
			}
			delete(q.delayed, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// quarantine moves an undecodable record out of the queue and emits a
// diagnostic. The job is not failed; no status is recorded.
func (q *Queue) quarantine(dir, name string, cause error) {
	target := filepath.Join(q.root, name+corruptExt)
	if err := os.Rename(filepath.Join(dir, name), target); err != nil {
		q.log.Error("cannot quarantine record", "file", name, "err", err)
		return
	}
	syncDir(q.root)
	q.log.Warn("quarantined corrupt record", "file", name, "err", cause)
}

// claim renames the named pending record into inflight and decodes it.
// It returns (nil, nil) when the record was claimed by someone else or
// quarantined.
func (q *Queue) claim(name string) (*job.Job, error) {
	src := q.pendingPath(name)
	dst := q.inflightPath(name)
	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	syncDir(filepath.Join(q.root, inflightDir))
	now := time.Now()
	// the lease clock is the inflight file's mtime
	_ = os.Chtimes(dst, now, now)
	data, err := os.ReadFile(dst)
	if err != nil {
		return nil, err
	}
	j, err := q.codec.DecodeJob(data)
	if err != nil {
		q.quarantine(filepath.Join(q.root, inflightDir), name, err)
		return nil, nil
	}
	q.mu.Lock()
	q.inflight[j.ID] = name
	q.mu.Unlock()
	return j, nil
}

// tryPop claims the lexicographically smallest eligible pending record.
func (q *Queue) tryPop() (*job.Job, error) {
	names, err := q.pendingNames(time.Now())
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		j, err := q.claim(name)
		if err != nil {
			return nil, err
		}
		if j != nil {
			return j, nil
		}
	}
	return nil, nil
}

// Dequeue polls the pending directory until a job is claimed or the
// timeout elapses.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*job.Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		j, err := q.tryPop()
		if err != nil || j != nil {
			return j, err
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

// PopBatch claims up to n eligible records without blocking.
func (q *Queue) PopBatch(ctx context.Context, n int) ([]*job.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names, err := q.pendingNames(time.Now())
	if err != nil {
		return nil, err
	}
	var ret []*job.Job
	for _, name := range names {
		if len(ret) >= n {
			break
		}
		j, err := q.claim(name)
		if err != nil {
			return ret, err
		}
		if j != nil {
			ret = append(ret, j)
		}
	}
	return ret, nil
}

// lookupInflight resolves a job id to its inflight filename, falling
// back to a directory scan when the in-memory map is cold (for example
// after a restart).
func (q *Queue) lookupInflight(id string) (string, bool) {
	q.mu.Lock()
	name, ok := q.inflight[id]
	q.mu.Unlock()
	if ok {
		return name, true
	}
	entries, err := os.ReadDir(filepath.Join(q.root, inflightDir))
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), recExt) && idOf(e.Name()) == id {
			return e.Name(), true
		}
	}
	return "", false
}

// Ack deletes the inflight record, completing the lease.
func (q *Queue) Ack(ctx context.Context, id string) error {
	name, ok := q.lookupInflight(id)
	if !ok {
		return nil
	}
	if err := os.Remove(q.inflightPath(name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	syncDir(filepath.Join(q.root, inflightDir))
	q.mu.Lock()
	delete(q.inflight, id)
	q.mu.Unlock()
	return nil
}

// Nack writes the job's current state back into pending and releases
// the inflight record. The job becomes eligible again after delay.
func (q *Queue) Nack(ctx context.Context, j *job.Job, delay time.Duration) error {
	data, err := q.codec.EncodeJob(j)
	if err != nil {
		return err
	}
	name := recName(j)
	if err := writeAtomic(filepath.Join(q.root, pendingDir), name, data); err != nil {
		return err
	}
	q.mu.Lock()
	if delay > 0 {
		q.delayed[name] = time.Now().Add(delay)
	}
	inflightName, ok := q.inflight[j.ID]
	delete(q.inflight, j.ID)
	q.mu.Unlock()
	if !ok {
		inflightName = name
	}
	if err := os.Remove(q.inflightPath(inflightName)); err != nil && !os.IsNotExist(err) {
		return err
	}
	syncDir(filepath.Join(q.root, inflightDir))
	return nil
}

// sweep returns inflight records whose lease elapsed to the pending
// directory, budget unchanged.
func (q *Queue) sweep(ctx context.Context) {
	entries, err := os.ReadDir(filepath.Join(q.root, inflightDir))
	if err != nil {
		q.log.Error("sweep: cannot read inflight dir", "err", err)
		return
	}
	now := time.Now()
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, recExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < q.visibility {
			continue
		}
		if err := os.Rename(q.inflightPath(name), q.pendingPath(name)); err != nil {
			if !os.IsNotExist(err) {
				q.log.Error("sweep: cannot requeue record", "file", name, "err", err)
			}
			continue
		}
		syncDir(filepath.Join(q.root, pendingDir))
		q.mu.Lock()
		delete(q.inflight, idOf(name))
		q.mu.Unlock()
		q.log.Warn("lease expired, job requeued", "file", name)
	}
}

// Size counts pending records, delayed entries included.
func (q *Queue) Size(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(filepath.Join(q.root, pendingDir))
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), recExt) {
			count++
		}
	}
	return count, nil
}

// Clear removes all pending records.
func (q *Queue) Clear(ctx context.Context) error {
	entries, err := os.ReadDir(filepath.Join(q.root, pendingDir))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), recExt) {
			if err := os.Remove(q.pendingPath(e.Name())); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	q.mu.Lock()
	q.delayed = make(map[string]time.Time)
	q.mu.Unlock()
	return nil
}

// Close stops the sweeper and wakes blocked consumers. Records on disk
// are left intact.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		close(q.done)
		<-q.sweeper.Stop()
	})
	return nil
}

var _ nuvom.Queue = (*Queue)(nil)
