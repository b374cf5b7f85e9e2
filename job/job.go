package job

import (
	"time"

	"github.com/google/uuid"
)

// Attempt records a single execution attempt of a job.
//
// Outcome holds the status the attempt resolved to (SUCCESS, FAILED or
// TIMEOUT). Traceback is empty for successful attempts.
type Attempt struct {
	StartedAt  time.Time `msgpack:"started_at"`
	FinishedAt time.Time `msgpack:"finished_at"`
	Outcome    Status    `msgpack:"outcome"`
	Traceback  string    `msgpack:"traceback"`
}

// Job represents a single persisted invocation of a registered task.
//
// ID is generated at submission and stays stable for the whole lifetime of
// the job, across requeues and retries.
//
// RetriesLeft is the remaining retry budget; it never exceeds MaxRetries
// and is monotonically non-increasing. Timeout of zero means the runtime
// default applies.
//
// The timestamp fields are set at the corresponding lifecycle transitions
// and satisfy FinishedAt >= StartedAt >= EnqueuedAt >= CreatedAt.
type Job struct {
	ID       string         `msgpack:"id"`
	FuncName string         `msgpack:"func_name"`
	Args     []any          `msgpack:"args"`
	Kwargs   map[string]any `msgpack:"kwargs"`

	RetriesLeft   int           `msgpack:"retries_left"`
	MaxRetries    int           `msgpack:"max_retries"`
	RetryDelay    time.Duration `msgpack:"retry_delay"`
	Timeout       time.Duration `msgpack:"timeout"`
	TimeoutPolicy TimeoutPolicy `msgpack:"timeout_policy"`
	StoreResult   bool          `msgpack:"store_result"`

	CreatedAt  time.Time `msgpack:"created_at"`
	EnqueuedAt time.Time `msgpack:"enqueued_at"`
	StartedAt  time.Time `msgpack:"started_at"`
	FinishedAt time.Time `msgpack:"finished_at"`

	Attempts []Attempt `msgpack:"attempts"`
	Status   Status    `msgpack:"status"`

	Tags        []string `msgpack:"tags"`
	Description string   `msgpack:"description"`
}

// Option mutates a Job under construction by New.
type Option func(*Job)

// WithRetries sets the retry budget of the job.
func WithRetries(n int) Option {
	return func(j *Job) {
		if n < 0 {
			n = 0
		}
		j.MaxRetries = n
		j.RetriesLeft = n
	}
}

// WithRetryDelay sets the delay before a retried job becomes visible again.
func WithRetryDelay(d time.Duration) Option {
	return func(j *Job) {
		j.RetryDelay = d
	}
}

// WithTimeout sets the per-job wall-clock limit. Zero means the runtime
// default applies.
func WithTimeout(d time.Duration) Option {
	return func(j *Job) {
		j.Timeout = d
	}
}

// WithTimeoutPolicy sets the decision applied after a timeout.
func WithTimeoutPolicy(p TimeoutPolicy) Option {
	return func(j *Job) {
		j.TimeoutPolicy = p
	}
}

// WithStoreResult controls whether a successful return value is persisted.
func WithStoreResult(store bool) Option {
	return func(j *Job) {
		j.StoreResult = store
	}
}

// WithTags attaches human-readable tags to the job.
func WithTags(tags ...string) Option {
	return func(j *Job) {
		j.Tags = tags
	}
}

// WithDescription attaches a human-readable description to the job.
func WithDescription(desc string) Option {
	return func(j *Job) {
		j.Description = desc
	}
}

// New creates a Job for the named task with a fresh unique identifier.
//
// The job starts in the PENDING state with StoreResult enabled and no
// retry budget; callers layer task defaults and per-call overrides on top
// via options. EnqueuedAt is stamped by the queue backend on Enqueue.
func New(funcName string, args []any, kwargs map[string]any, opts ...Option) *Job {
	j := &Job{
		ID:          uuid.NewString(),
		FuncName:    funcName,
		Args:        args,
		Kwargs:      kwargs,
		StoreResult: true,
		CreatedAt:   time.Now().UTC(),
		Status:      Pending,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Clone returns a deep copy of the job.
//
// Backends hand out clones so that callers can mutate snapshots without
// racing the backend's own copy.
func (j *Job) Clone() *Job {
	ret := *j
	if j.Args != nil {
		ret.Args = make([]any, len(j.Args))
		copy(ret.Args, j.Args)
	}
	if j.Kwargs != nil {
		ret.Kwargs = make(map[string]any, len(j.Kwargs))
		for k, v := range j.Kwargs {
			ret.Kwargs[k] = v
		}
	}
	if j.Attempts != nil {
		ret.Attempts = make([]Attempt, len(j.Attempts))
		copy(ret.Attempts, j.Attempts)
	}
	if j.Tags != nil {
		ret.Tags = make([]string, len(j.Tags))
		copy(ret.Tags, j.Tags)
	}
	return &ret
}
