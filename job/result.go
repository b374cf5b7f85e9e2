package job

import "time"

// Result is the terminal record of a job as persisted by a result backend.
//
// Exactly one of Value or (ErrorSummary, Traceback) is meaningful,
// depending on Status. Attempts carries the full attempt history so that
// failed and retried executions remain inspectable after the job has left
// the queue.
//
// A Result with a terminal Status is immutable: result backends refuse to
// replace it.
type Result struct {
	ID       string `msgpack:"id"`
	FuncName string `msgpack:"func_name"`
	Status   Status `msgpack:"status"`

	Value        any    `msgpack:"value"`
	ErrorSummary string `msgpack:"error_summary"`
	Traceback    string `msgpack:"traceback"`

	Attempts    []Attempt `msgpack:"attempts"`
	RetriesLeft int       `msgpack:"retries_left"`
	MaxRetries  int       `msgpack:"max_retries"`

	CreatedAt  time.Time `msgpack:"created_at"`
	EnqueuedAt time.Time `msgpack:"enqueued_at"`
	StartedAt  time.Time `msgpack:"started_at"`
	FinishedAt time.Time `msgpack:"finished_at"`
}

// ResultOf builds a Result snapshot from the job's current state.
//
// The caller fills Value or the error fields afterwards. Attempts is
// copied so that later mutation of the job does not leak into the record.
func ResultOf(j *Job) *Result {
	attempts := make([]Attempt, len(j.Attempts))
	copy(attempts, j.Attempts)
	return &Result{
		ID:          j.ID,
		FuncName:    j.FuncName,
		Status:      j.Status,
		Attempts:    attempts,
		RetriesLeft: j.RetriesLeft,
		MaxRetries:  j.MaxRetries,
		CreatedAt:   j.CreatedAt,
		EnqueuedAt:  j.EnqueuedAt,
		StartedAt:   j.StartedAt,
		FinishedAt:  j.FinishedAt,
	}
}
