package nuvom_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nahom-zewdu/nuvom"
	"github.com/nahom-zewdu/nuvom/job"
	"github.com/nahom-zewdu/nuvom/memory"
	"github.com/nahom-zewdu/nuvom/task"
)

type runnerEnv struct {
	registry *task.Registry
	queue    *memory.Queue
	results  *memory.ResultBackend
	runner   *nuvom.Runner
}

func newRunnerEnv(t *testing.T) *runnerEnv {
	t.Helper()
	env := &runnerEnv{
		registry: task.NewRegistry(),
		queue:    memory.NewQueue(0),
		results:  memory.NewResultBackend(),
	}
	env.runner = nuvom.NewRunner(env.registry, env.queue, env.results, time.Second, slog.Default())
	t.Cleanup(func() {
		env.queue.Close()
		env.results.Close()
	})
	return env
}

// drive dequeues and runs jobs until the queue stays empty, simulating
// the dispatcher loop for a single job's lifetime.
func (env *runnerEnv) drive(t *testing.T, ctx context.Context) {
	t.Helper()
	for {
		jb, err := env.queue.Dequeue(ctx, 100*time.Millisecond)
		require.NoError(t, err)
		if jb == nil {
			return
		}
		env.runner.Run(ctx, jb)
	}
}

func TestRunnerHappyPath(t *testing.T) {
	ctx := context.Background()
	env := newRunnerEnv(t)

	require.NoError(t, env.registry.Register(&task.Definition{
		Name: "add",
		Func: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
			return args[0].(int) + args[1].(int), nil
		},
		StoreResult: true,
	}, task.Strict))

	def, err := env.registry.Get("add")
	require.NoError(t, err)
	jb := def.NewJob([]any{2, 3}, nil)
	require.NoError(t, env.queue.Enqueue(ctx, jb))

	env.drive(t, ctx)

	value, err := env.results.GetResult(ctx, jb.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, value)

	full, err := env.results.GetFull(ctx, jb.ID)
	require.NoError(t, err)
	require.NotNil(t, full)
	assert.Equal(t, job.Success, full.Status)
	assert.Len(t, full.Attempts, 1)
	assert.False(t, full.FinishedAt.Before(full.StartedAt))
}

func TestRunnerRetryThenSucceed(t *testing.T) {
	ctx := context.Background()
	env := newRunnerEnv(t)

	calls := 0
	require.NoError(t, env.registry.Register(&task.Definition{
		Name: "flaky",
		Func: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("transient glitch")
			}
			return "ok", nil
		},
		Retries:     2,
		StoreResult: true,
	}, task.Strict))

	def, err := env.registry.Get("flaky")
	require.NoError(t, err)
	jb := def.NewJob(nil, nil)
	require.NoError(t, env.queue.Enqueue(ctx, jb))

	env.drive(t, ctx)

	value, err := env.results.GetResult(ctx, jb.ID)
	require.NoError(t, err)
	assert.Equal(t, "ok", value)

	full, err := env.results.GetFull(ctx, jb.ID)
	require.NoError(t, err)
	require.NotNil(t, full)
	assert.Equal(t, job.Success, full.Status)
	require.Len(t, full.Attempts, 2)
	assert.Equal(t, job.Failed, full.Attempts[0].Outcome)
	assert.NotEmpty(t, full.Attempts[0].Traceback)
	assert.Equal(t, job.Success, full.Attempts[1].Outcome)
}

func TestRunnerExhaustedRetries(t *testing.T) {
	ctx := context.Background()
	env := newRunnerEnv(t)

	require.NoError(t, env.registry.Register(&task.Definition{
		Name: "always_fail",
		Func: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
			return nil, errors.New("RuntimeError: x")
		},
		Retries:     1,
		StoreResult: true,
	}, task.Strict))

	def, err := env.registry.Get("always_fail")
	require.NoError(t, err)
	jb := def.NewJob(nil, nil)
	require.NoError(t, env.queue.Enqueue(ctx, jb))

	env.drive(t, ctx)

	full, err := env.results.GetFull(ctx, jb.ID)
	require.NoError(t, err)
	require.NotNil(t, full)
	assert.Equal(t, job.Failed, full.Status)
	assert.Len(t, full.Attempts, 2)
	assert.Contains(t, full.ErrorSummary, "RuntimeError")
	assert.Equal(t, 0, full.RetriesLeft)

	errRec, err := env.results.GetError(ctx, jb.ID)
	require.NoError(t, err)
	require.NotNil(t, errRec)
}

func TestRunnerRetryBound(t *testing.T) {
	ctx := context.Background()
	env := newRunnerEnv(t)

	calls := 0
	require.NoError(t, env.registry.Register(&task.Definition{
		Name: "hopeless",
		Func: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
			calls++
			return nil, errors.New("never works")
		},
		Retries: 3,
	}, task.Strict))

	def, err := env.registry.Get("hopeless")
	require.NoError(t, err)
	jb := def.NewJob(nil, nil)
	require.NoError(t, env.queue.Enqueue(ctx, jb))

	env.drive(t, ctx)

	// total attempts never exceed max_retries + 1
	assert.Equal(t, 4, calls)
	full, err := env.results.GetFull(ctx, jb.ID)
	require.NoError(t, err)
	require.NotNil(t, full)
	assert.Len(t, full.Attempts, 4)
}

func TestRunnerTimeoutFailPolicy(t *testing.T) {
	ctx := context.Background()
	env := newRunnerEnv(t)

	require.NoError(t, env.registry.Register(&task.Definition{
		Name: "slow",
		Func: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
			time.Sleep(500 * time.Millisecond)
			return "late", nil
		},
		Timeout:     50 * time.Millisecond,
		StoreResult: true,
	}, task.Strict))

	def, err := env.registry.Get("slow")
	require.NoError(t, err)
	jb := def.NewJob(nil, nil, job.WithTimeoutPolicy(job.TimeoutFail))
	require.NoError(t, env.queue.Enqueue(ctx, jb))

	env.drive(t, ctx)

	full, err := env.results.GetFull(ctx, jb.ID)
	require.NoError(t, err)
	require.NotNil(t, full)
	assert.Equal(t, job.Timeout, full.Status)
	assert.Len(t, full.Attempts, 1)
	assert.NotEmpty(t, full.ErrorSummary)
}

func TestRunnerTimeoutRetryPolicy(t *testing.T) {
	ctx := context.Background()
	env := newRunnerEnv(t)

	require.NoError(t, env.registry.Register(&task.Definition{
		Name: "slow",
		Func: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
			time.Sleep(500 * time.Millisecond)
			return nil, nil
		},
		Timeout:     50 * time.Millisecond,
		Retries:     1,
		StoreResult: true,
	}, task.Strict))

	def, err := env.registry.Get("slow")
	require.NoError(t, err)
	jb := def.NewJob(nil, nil, job.WithTimeoutPolicy(job.TimeoutRetry))
	require.NoError(t, env.queue.Enqueue(ctx, jb))

	env.drive(t, ctx)

	// both attempts time out, the second is terminal
	full, err := env.results.GetFull(ctx, jb.ID)
	require.NoError(t, err)
	require.NotNil(t, full)
	assert.Equal(t, job.Timeout, full.Status)
	assert.Len(t, full.Attempts, 2)
}

func TestRunnerTimeoutIgnorePolicy(t *testing.T) {
	ctx := context.Background()
	env := newRunnerEnv(t)

	calls := 0
	require.NoError(t, env.registry.Register(&task.Definition{
		Name: "slow",
		Func: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
			calls++
			time.Sleep(500 * time.Millisecond)
			return nil, nil
		},
		Timeout:     50 * time.Millisecond,
		Retries:     5,
		StoreResult: true,
	}, task.Strict))

	def, err := env.registry.Get("slow")
	require.NoError(t, err)
	jb := def.NewJob(nil, nil, job.WithTimeoutPolicy(job.TimeoutIgnore))
	require.NoError(t, env.queue.Enqueue(ctx, jb))

	env.drive(t, ctx)

	// ignore acks without retrying, even with budget left
	assert.Equal(t, 1, calls)
	full, err := env.results.GetFull(ctx, jb.ID)
	require.NoError(t, err)
	require.NotNil(t, full)
	assert.Equal(t, job.Timeout, full.Status)
	assert.Empty(t, full.Traceback)
}

func TestRunnerUnknownTask(t *testing.T) {
	ctx := context.Background()
	env := newRunnerEnv(t)

	jb := job.New("not_registered", nil, nil)
	require.NoError(t, env.queue.Enqueue(ctx, jb))

	env.drive(t, ctx)

	full, err := env.results.GetFull(ctx, jb.ID)
	require.NoError(t, err)
	require.NotNil(t, full)
	assert.Equal(t, job.Failed, full.Status)
	assert.Contains(t, full.ErrorSummary, "unknown task")
}

func TestRunnerPanicCaptured(t *testing.T) {
	ctx := context.Background()
	env := newRunnerEnv(t)

	require.NoError(t, env.registry.Register(&task.Definition{
		Name: "bomb",
		Func: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
			panic("kaboom")
		},
		StoreResult: true,
	}, task.Strict))

	def, err := env.registry.Get("bomb")
	require.NoError(t, err)
	jb := def.NewJob(nil, nil)
	require.NoError(t, env.queue.Enqueue(ctx, jb))

	env.drive(t, ctx)

	full, err := env.results.GetFull(ctx, jb.ID)
	require.NoError(t, err)
	require.NotNil(t, full)
	assert.Equal(t, job.Failed, full.Status)
	assert.Contains(t, full.ErrorSummary, "kaboom")
	assert.NotEmpty(t, full.Traceback)
}

func TestRunnerStoreResultSuppressed(t *testing.T) {
	ctx := context.Background()
	env := newRunnerEnv(t)

	require.NoError(t, env.registry.Register(&task.Definition{
		Name: "quiet",
		Func: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
			return "value", nil
		},
		StoreResult: false,
	}, task.Strict))

	def, err := env.registry.Get("quiet")
	require.NoError(t, err)
	jb := def.NewJob(nil, nil)
	require.NoError(t, env.queue.Enqueue(ctx, jb))

	env.drive(t, ctx)

	full, err := env.results.GetFull(ctx, jb.ID)
	require.NoError(t, err)
	assert.Nil(t, full)
}

func TestRunnerHooks(t *testing.T) {
	ctx := context.Background()
	env := newRunnerEnv(t)

	var calls []string
	require.NoError(t, env.registry.Register(&task.Definition{
		Name: "observed",
		Func: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
			calls = append(calls, "func")
			return "done", nil
		},
		StoreResult: true,
		Hooks: task.Hooks{
			Before: func(ctx context.Context, j *job.Job) {
				calls = append(calls, "before")
			},
			After: func(ctx context.Context, j *job.Job, result any) {
				calls = append(calls, "after:"+result.(string))
			},
		},
	}, task.Strict))

	def, err := env.registry.Get("observed")
	require.NoError(t, err)
	jb := def.NewJob(nil, nil)
	require.NoError(t, env.queue.Enqueue(ctx, jb))

	env.drive(t, ctx)

	assert.Equal(t, []string{"before", "func", "after:done"}, calls)
}

func TestRunnerHookPanicDoesNotAbort(t *testing.T) {
	ctx := context.Background()
	env := newRunnerEnv(t)

	require.NoError(t, env.registry.Register(&task.Definition{
		Name: "sturdy",
		Func: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
			return "fine", nil
		},
		StoreResult: true,
		Hooks: task.Hooks{
			Before: func(ctx context.Context, j *job.Job) {
				panic("hook bug")
			},
		},
	}, task.Strict))

	def, err := env.registry.Get("sturdy")
	require.NoError(t, err)
	jb := def.NewJob(nil, nil)
	require.NoError(t, env.queue.Enqueue(ctx, jb))

	env.drive(t, ctx)

	value, err := env.results.GetResult(ctx, jb.ID)
	require.NoError(t, err)
	assert.Equal(t, "fine", value)
}

func TestRunnerOnErrorHook(t *testing.T) {
	ctx := context.Background()
	env := newRunnerEnv(t)

	var seen error
	require.NoError(t, env.registry.Register(&task.Definition{
		Name: "broken",
		Func: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
			return nil, errors.New("observed failure")
		},
		Hooks: task.Hooks{
			OnError: func(ctx context.Context, j *job.Job, err error) {
				seen = err
			},
		},
	}, task.Strict))

	def, err := env.registry.Get("broken")
	require.NoError(t, err)
	jb := def.NewJob(nil, nil)
	require.NoError(t, env.queue.Enqueue(ctx, jb))

	env.drive(t, ctx)

	require.Error(t, seen)
	assert.Contains(t, seen.Error(), "observed failure")
}
