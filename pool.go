package nuvom

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nahom-zewdu/nuvom/internal"
	"github.com/nahom-zewdu/nuvom/job"
	"github.com/nahom-zewdu/nuvom/task"
)

// PoolConfig defines the runtime behavior of a worker Pool.
//
// MaxWorkers is the number of workers; each executes its assigned jobs
// sequentially. BatchSize bounds how many jobs one dispatcher tick
// pulls. PullInterval is the dispatcher polling cadence. JobTimeout is
// the default wall-clock limit for jobs that carry none.
// ShutdownGrace bounds how long Stop waits for running jobs.
type PoolConfig struct {
	MaxWorkers    int
	BatchSize     int
	PullInterval  time.Duration
	JobTimeout    time.Duration
	ShutdownGrace time.Duration
}

// assignment is one dispatched job together with the context that
// carries its abandonment signal.
type assignment struct {
	job    *job.Job
	ctx    context.Context
	cancel context.CancelFunc
}

type worker struct {
	idx      int
	in       chan *assignment
	quit     chan struct{}
	inflight atomic.Int32
	current  atomic.Pointer[assignment]
}

// Pool owns a fixed set of workers and one dispatcher.
//
// The dispatcher pulls jobs in batches from the queue backend and
// assigns each to the least-busy worker (fewest in-flight assignments,
// ties broken by lowest index). Workers run jobs through the Runner one
// at a time.
//
// The pool installs itself as the process metrics provider on Start.
//
// Shutdown proceeds in phases: pulling stops, running jobs get
// ShutdownGrace to finish, jobs still running past the grace are
// returned to the pending set with zero delay, and assignments that
// never started become terminal CANCELLED. Stop is idempotent.
type Pool struct {
	lcBase
	queue   Queue
	results ResultBackend
	runner  *Runner
	log     *slog.Logger

	batchSize int
	interval  time.Duration
	grace     time.Duration

	workers  []*worker
	dispatch internal.TimerTask
	wg       sync.WaitGroup
}

// NewPool creates a pool over the given backends and task registry.
//
// The pool is not started automatically. Call Start to begin pulling.
func NewPool(registry *task.Registry, queue Queue, results ResultBackend, config *PoolConfig, log *slog.Logger) *Pool {
	workers := make([]*worker, config.MaxWorkers)
	for i := range workers {
		workers[i] = &worker{
			idx:  i,
			in:   make(chan *assignment, config.BatchSize),
			quit: make(chan struct{}),
		}
	}
	interval := config.PullInterval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Pool{
		queue:     queue,
		results:   results,
		runner:    NewRunner(registry, queue, results, config.JobTimeout, log),
		log:       log,
		batchSize: config.BatchSize,
		interval:  interval,
		grace:     config.ShutdownGrace,
		workers:   workers,
	}
}

// leastBusy picks the worker with the fewest in-flight assignments,
// ties broken by lowest index.
func (p *Pool) leastBusy() *worker {
	best := p.workers[0]
	min := best.inflight.Load()
	for _, w := range p.workers[1:] {
		if n := w.inflight.Load(); n < min {
			best, min = w, n
		}
	}
	return best
}

// pull is one dispatcher tick: pop a batch and hand every job to the
// least-busy worker.
func (p *Pool) pull(ctx context.Context) {
	jobs, err := p.queue.PopBatch(ctx, p.batchSize)
	if err != nil {
		p.log.Error("pull failed", "err", err)
		return
	}
	for i, jb := range jobs {
		w := p.leastBusy()
		runCtx, cancel := context.WithCancel(context.Background())
		a := &assignment{job: jb, ctx: runCtx, cancel: cancel}
		w.inflight.Add(1)
		select {
		case w.in <- a:
		case <-ctx.Done():
			// dispatcher is shutting down mid-batch; hand back every
			// job that was not assigned
			w.inflight.Add(-1)
			cancel()
			for _, rest := range jobs[i:] {
				p.giveBack(rest)
			}
			return
		}
	}
}

// giveBack returns an undispatched job to the pending set.
func (p *Pool) giveBack(jb *job.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.queue.Nack(ctx, jb, 0); err != nil {
		p.log.Error("cannot return job to queue", "id", jb.ID, "err", err)
	}
}

func (p *Pool) work(w *worker) {
	defer p.wg.Done()
	for {
		select {
		case <-w.quit:
			p.drain(w)
			return
		case a := <-w.in:
			select {
			case <-w.quit:
				p.cancelAssignment(a)
				w.inflight.Add(-1)
				continue
			default:
			}
			w.current.Store(a)
			p.runner.Run(a.ctx, a.job)
			w.current.Store(nil)
			a.cancel()
			w.inflight.Add(-1)
		}
	}
}

// drain empties a worker's channel after quit, cancelling every
// assignment that never started.
func (p *Pool) drain(w *worker) {
	for {
		select {
		case a := <-w.in:
			p.cancelAssignment(a)
			w.inflight.Add(-1)
		default:
			return
		}
	}
}

// cancelAssignment terminates a dispatched job that never started:
// the job becomes terminal CANCELLED and its lease is settled.
func (p *Pool) cancelAssignment(a *assignment) {
	a.cancel()
	jb := a.job
	jb.Status = job.Cancelled
	jb.FinishedAt = time.Now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res := job.ResultOf(jb)
	res.ErrorSummary = "cancelled by shutdown before start"
	if err := p.results.SetError(ctx, res); err != nil {
		p.log.Error("cannot persist cancellation", "id", jb.ID, "err", err)
	}
	if err := p.queue.Ack(ctx, jb.ID); err != nil {
		p.log.Error("cannot ack cancelled job", "id", jb.ID, "err", err)
	}
	p.log.Warn("job cancelled by shutdown", "id", jb.ID, "func", jb.FuncName)
}

// Start begins background pulling and processing of jobs and installs
// the pool as the process metrics provider.
//
// Start returns ErrDoubleStarted if the pool has already been started.
func (p *Pool) Start(ctx context.Context) error {
	if err := p.tryStart(); err != nil {
		return err
	}
	for _, w := range p.workers {
		p.wg.Add(1)
		go p.work(w)
	}
	p.dispatch.Start(ctx, p.pull, p.interval)
	SetMetricsProvider(p)
	p.log.Info("worker pool started", "workers", len(p.workers), "batch", p.batchSize)
	return nil
}

// Stop shuts the pool down gracefully:
//
//  1. The dispatcher stops pulling new batches.
//  2. Each worker finishes its currently running job, bounded by the
//     configured shutdown grace.
//  3. Jobs still running past the grace are returned to the pending
//     set with zero delay; their eventual return values are discarded.
//  4. Assignments that never started become terminal CANCELLED.
//
// Stop is idempotent: calling it again after the first return is a
// no-op.
func (p *Pool) Stop() error {
	if !p.state.CompareAndSwap(started, stopped) {
		return nil
	}
	<-p.dispatch.Stop()
	for _, w := range p.workers {
		close(w.quit)
	}

	done := internal.WrapWaitGroup(&p.wg)
	timer := time.NewTimer(p.grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		p.abandonRunning()
	}

	// workers stuck in user code never reach their own drain
	for _, w := range p.workers {
		p.drain(w)
	}
	SetMetricsProvider(nil)
	p.log.Info("worker pool stopped")
	return nil
}

// abandonRunning hands every still-running job back to the pending set
// and cancels its context so the runner's own settlement attempts fail
// fast. The abandoned goroutines finish in the background; their
// results are discarded.
func (p *Pool) abandonRunning() {
	for _, w := range p.workers {
		a := w.current.Load()
		if a == nil {
			continue
		}
		a.cancel()
		p.giveBack(a.job)
		// the worker decrements its own in-flight count when the
		// runaway handler finally returns
		p.log.Warn("job abandoned past shutdown grace, requeued", "id", a.job.ID)
	}
}

// MetricsSnapshot reports current queue depth, in-flight assignment
// count and worker count.
func (p *Pool) MetricsSnapshot(ctx context.Context) (Snapshot, error) {
	size, err := p.queue.Size(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	inflight := 0
	for _, w := range p.workers {
		inflight += int(w.inflight.Load())
	}
	return Snapshot{
		QueueSize:    size,
		InflightJobs: inflight,
		WorkerCount:  len(p.workers),
	}, nil
}

var _ MetricsProvider = (*Pool)(nil)
