package nuvom

import (
	"errors"

	"github.com/nahom-zewdu/nuvom/codec"
	"github.com/nahom-zewdu/nuvom/task"
)

var (
	// ErrUnknownTask indicates that a job references a task name that is
	// not present in the registry. The job becomes terminal FAILED.
	ErrUnknownTask = task.ErrUnknownTask

	// ErrDuplicateTask indicates a registration conflict under the
	// Strict mode.
	ErrDuplicateTask = task.ErrDuplicateTask

	// ErrCorruptRecord indicates that an on-disk or decoded record is
	// invalid. Backends quarantine the record and continue.
	ErrCorruptRecord = codec.ErrCorruptRecord

	// ErrBackendUnavailable indicates a transient backend failure that
	// survived the bounded retry policy.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrTimeout indicates that a job exceeded its wall-clock limit.
	ErrTimeout = errors.New("job timeout")

	// ErrQueueFull indicates that a bounded queue rejected an enqueue.
	ErrQueueFull = errors.New("queue full")

	// ErrUnknownBackend indicates that configuration names a queue or
	// result backend no plugin or built-in provides. Fatal at startup.
	ErrUnknownBackend = errors.New("unknown backend")
)

var (
	// ErrDoubleStarted is returned when Start is called on a component
	// that has already been started.
	//
	// Components managed by nuvom follow a strict lifecycle and must not
	// be started more than once without being stopped.
	ErrDoubleStarted = errors.New("double start")

	// ErrDoubleStopped is returned when Stop is called on a component
	// that is not currently running.
	ErrDoubleStopped = errors.New("double stop")

	// ErrStopTimeout is returned when a component fails to shut down
	// within the provided timeout during Stop.
	//
	// In this case, background goroutines may still be terminating.
	ErrStopTimeout = errors.New("stop timeout")
)

// TaskExecutionError wraps an error or recovered panic raised by user
// task code, together with the captured traceback text.
type TaskExecutionError struct {
	Err       error
	Traceback string
}

// Error returns the summary of the underlying failure.
func (e *TaskExecutionError) Error() string {
	return e.Err.Error()
}

// Unwrap exposes the underlying failure for errors.Is / errors.As.
func (e *TaskExecutionError) Unwrap() error {
	return e.Err
}
