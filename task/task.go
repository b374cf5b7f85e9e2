package task

import (
	"context"
	"time"

	"github.com/nahom-zewdu/nuvom/job"
)

// Func is the callable bound to a task name.
//
// The context is canceled when the job's timeout elapses or when the pool
// abandons the job past the shutdown grace. Args and
// kwargs arrive exactly as they were submitted, after a codec round trip
// through the queue backend.
type Func func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// Hooks are optional callbacks around a single job execution.
//
// Hook errors are logged by the runner and never abort the job.
type Hooks struct {

	// Before runs after the job transitions to RUNNING and before the
	// callable is invoked.
	Before func(ctx context.Context, j *job.Job)

	// After runs when the callable returned without error, receiving the
	// return value.
	After func(ctx context.Context, j *job.Job, result any)

	// OnError runs when the callable returned an error, panicked or timed
	// out.
	OnError func(ctx context.Context, j *job.Job, err error)
}

// Definition describes a registered task: its name, callable and default
// execution parameters.
//
// A Definition is immutable once registered. Per-job overrides are applied
// at submission time and travel with the job record.
type Definition struct {
	Name        string
	Func        Func
	Retries     int
	RetryDelay  time.Duration
	Timeout     time.Duration
	StoreResult bool
	Hooks       Hooks
	Tags        []string
	Description string
}

// NewJob builds a job for this definition, layering per-call options over
// the definition's defaults.
func (d *Definition) NewJob(args []any, kwargs map[string]any, opts ...job.Option) *job.Job {
	base := []job.Option{
		job.WithRetries(d.Retries),
		job.WithRetryDelay(d.RetryDelay),
		job.WithTimeout(d.Timeout),
		job.WithStoreResult(d.StoreResult),
		job.WithTags(d.Tags...),
		job.WithDescription(d.Description),
	}
	return job.New(d.Name, args, kwargs, append(base, opts...)...)
}
