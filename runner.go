package nuvom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/nahom-zewdu/nuvom/job"
	"github.com/nahom-zewdu/nuvom/task"
)

// Runner executes a single leased job: it resolves the task, enforces
// the wall-clock timeout, drives the lifecycle hooks, decides retries,
// persists the outcome and settles the queue lease.
//
// A task exception never propagates out of Run; every outcome becomes a
// terminal status or a requeue. Backend I/O goes through a bounded
// retry policy and failures past that budget are logged, with the lease
// left to expire rather than the job being lost.
type Runner struct {
	registry *task.Registry
	queue    Queue
	results  ResultBackend
	log      *slog.Logger

	defaultTimeout time.Duration
}

// NewRunner creates a runner bound to the given registry and backends.
//
// defaultTimeout applies to jobs whose own Timeout is zero.
func NewRunner(registry *task.Registry, queue Queue, results ResultBackend, defaultTimeout time.Duration, log *slog.Logger) *Runner {
	return &Runner{
		registry:       registry,
		queue:          queue,
		results:        results,
		log:            log,
		defaultTimeout: defaultTimeout,
	}
}

type execOutcome struct {
	value any
	err   error
}

// execute invokes the task on its own goroutine and waits with a
// deadline. When the deadline fires first, the goroutine is abandoned:
// it finishes in the background and its result is discarded. Panics in
// task code are captured as TaskExecutionError with the stack text.
func (r *Runner) execute(ctx context.Context, def *task.Definition, jb *job.Job, timeout time.Duration) (any, error) {
	wrapped, cancel := context.WithCancel(ctx)
	defer cancel()
	out := make(chan execOutcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				out <- execOutcome{err: &TaskExecutionError{
					Err:       fmt.Errorf("panic: %v", rec),
					Traceback: string(debug.Stack()),
				}}
			}
		}()
		value, err := def.Func(wrapped, jb.Args, jb.Kwargs)
		out <- execOutcome{value: value, err: err}
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-out:
		return res.value, res.err
	case <-timer.C:
		cancel()
		return nil, ErrTimeout
	}
}

func (r *Runner) callBefore(ctx context.Context, def *task.Definition, jb *job.Job) {
	if def.Hooks.Before == nil {
		return
	}
	defer r.recoverHook(jb, "before_job")
	def.Hooks.Before(ctx, jb)
}

func (r *Runner) callAfter(ctx context.Context, def *task.Definition, jb *job.Job, value any) {
	if def.Hooks.After == nil {
		return
	}
	defer r.recoverHook(jb, "after_job")
	def.Hooks.After(ctx, jb, value)
}

func (r *Runner) callOnError(ctx context.Context, def *task.Definition, jb *job.Job, err error) {
	if def.Hooks.OnError == nil {
		return
	}
	defer r.recoverHook(jb, "on_error")
	def.Hooks.OnError(ctx, jb, err)
}

// Hook errors are logged and never abort the job.
func (r *Runner) recoverHook(jb *job.Job, hook string) {
	if rec := recover(); rec != nil {
		r.log.Error("hook panicked", "hook", hook, "id", jb.ID, "err", rec)
	}
}

// ack settles the lease after a terminal outcome.
func (r *Runner) ack(ctx context.Context, jb *job.Job) {
	err := retryBackend(ctx, "ack", func() error {
		return r.queue.Ack(ctx, jb.ID)
	})
	if err != nil {
		r.log.Error("cannot ack job", "id", jb.ID, "err", err)
	}
}

// requeue returns the job to the pending set carrying its decremented
// budget and appended attempt history.
func (r *Runner) requeue(ctx context.Context, jb *job.Job, delay time.Duration) {
	jb.Status = job.Pending
	err := retryBackend(ctx, "nack", func() error {
		return r.queue.Nack(ctx, jb, delay)
	})
	if err != nil {
		// the lease is left to expire; the sweeper will requeue the
		// original record with its budget unchanged
		r.log.Error("cannot requeue job", "id", jb.ID, "err", err)
	}
}

func (r *Runner) persistResult(ctx context.Context, res *job.Result) {
	err := retryBackend(ctx, "set result", func() error {
		return r.results.SetResult(ctx, res)
	})
	if err != nil {
		r.log.Error("cannot persist result", "id", res.ID, "err", err)
	}
}

func (r *Runner) persistError(ctx context.Context, res *job.Result) {
	err := retryBackend(ctx, "set error", func() error {
		return r.results.SetError(ctx, res)
	})
	if err != nil {
		r.log.Error("cannot persist error", "id", res.ID, "err", err)
	}
}

func summarize(err error) (summary string, traceback string) {
	var texec *TaskExecutionError
	if errors.As(err, &texec) {
		return texec.Err.Error(), texec.Traceback
	}
	return err.Error(), err.Error()
}

// failUnknown terminates a job whose task name has no registration.
func (r *Runner) failUnknown(ctx context.Context, jb *job.Job, cause error) {
	jb.Status = job.Failed
	jb.FinishedAt = time.Now().UTC()
	res := job.ResultOf(jb)
	res.ErrorSummary = cause.Error()
	r.persistError(ctx, res)
	r.ack(ctx, jb)
	r.log.Error("unknown task", "id", jb.ID, "func", jb.FuncName)
}

// Run executes one leased job to an ack or a requeue.
//
// The context carries shutdown and abandonment signals: once the pool
// gives up on a job past the shutdown grace, the context is canceled
// and every remaining backend operation here fails fast, leaving the
// pool's own requeue as the authoritative settlement.
func (r *Runner) Run(ctx context.Context, jb *job.Job) {
	def, err := r.registry.Get(jb.FuncName)
	if err != nil {
		r.failUnknown(ctx, jb, err)
		return
	}

	jb.Status = job.Running
	jb.StartedAt = time.Now().UTC()
	r.callBefore(ctx, def, jb)

	timeout := jb.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	value, execErr := r.execute(ctx, def, jb, timeout)
	if ctx.Err() != nil {
		// abandoned past the shutdown grace: the pool already returned
		// the job to the pending set, this outcome is discarded
		r.log.Warn("job abandoned, outcome discarded", "id", jb.ID, "func", jb.FuncName)
		return
	}
	finished := time.Now().UTC()

	attempt := job.Attempt{
		StartedAt:  jb.StartedAt,
		FinishedAt: finished,
	}

	switch {
	case execErr == nil:
		attempt.Outcome = job.Success
		jb.Attempts = append(jb.Attempts, attempt)
		jb.Status = job.Success
		jb.FinishedAt = finished
		r.callAfter(ctx, def, jb, value)
		if jb.StoreResult {
			res := job.ResultOf(jb)
			res.Value = value
			r.persistResult(ctx, res)
		}
		r.ack(ctx, jb)
		r.log.Debug("job succeeded", "id", jb.ID, "func", jb.FuncName, "attempts", len(jb.Attempts))

	case errors.Is(execErr, ErrTimeout):
		attempt.Outcome = job.Timeout
		jb.Attempts = append(jb.Attempts, attempt)
		r.callOnError(ctx, def, jb, execErr)
		r.resolveTimeout(ctx, jb, finished)

	default:
		summary, traceback := summarize(execErr)
		attempt.Outcome = job.Failed
		attempt.Traceback = traceback
		jb.Attempts = append(jb.Attempts, attempt)
		r.callOnError(ctx, def, jb, execErr)
		if jb.RetriesLeft > 0 {
			jb.RetriesLeft--
			r.requeue(ctx, jb, jb.RetryDelay)
			r.log.Warn("job failed, retry scheduled",
				"id", jb.ID, "func", jb.FuncName, "retries_left", jb.RetriesLeft, "err", summary)
			return
		}
		jb.Status = job.Failed
		jb.FinishedAt = finished
		res := job.ResultOf(jb)
		res.ErrorSummary = summary
		res.Traceback = traceback
		r.persistError(ctx, res)
		r.ack(ctx, jb)
		r.log.Error("job failed terminally", "id", jb.ID, "func", jb.FuncName, "err", summary)
	}
}

// resolveTimeout applies the job's timeout policy.
func (r *Runner) resolveTimeout(ctx context.Context, jb *job.Job, finished time.Time) {
	policy := jb.TimeoutPolicy
	if policy == job.TimeoutRetry && jb.RetriesLeft > 0 {
		jb.RetriesLeft--
		r.requeue(ctx, jb, jb.RetryDelay)
		r.log.Warn("job timed out, retry scheduled",
			"id", jb.ID, "func", jb.FuncName, "retries_left", jb.RetriesLeft)
		return
	}

	jb.Status = job.Timeout
	jb.FinishedAt = finished
	res := job.ResultOf(jb)
	switch policy {
	case job.TimeoutIgnore:
		// recorded without a traceback and without consuming retries
		r.persistResult(ctx, res)
	default:
		res.ErrorSummary = ErrTimeout.Error()
		res.Traceback = fmt.Sprintf("job %s exceeded its %s limit", jb.ID, effectiveTimeout(jb, r.defaultTimeout))
		r.persistError(ctx, res)
	}
	r.ack(ctx, jb)
	r.log.Error("job timed out", "id", jb.ID, "func", jb.FuncName, "policy", policy.String())
}

func effectiveTimeout(jb *job.Job, fallback time.Duration) time.Duration {
	if jb.Timeout > 0 {
		return jb.Timeout
	}
	return fallback
}
