package nuvom

import (
	"context"
	"time"

	"github.com/nahom-zewdu/nuvom/job"
)

// ListFilter narrows ListJobs and Delete output.
//
// HasStatus toggles the Status filter so that filtering on PENDING (the
// zero status) remains expressible. Limit of zero or less means no
// limit. A non-nil Before restricts matches to records whose FinishedAt
// is at or before the given time.
type ListFilter struct {
	Status    job.Status
	HasStatus bool
	Limit     int
	Before    *time.Time
}

// ResultBackend defines the storage contract for terminal job records.
//
// All operations are keyed by job id. Terminal records are immutable:
// SetResult and SetError never replace an existing terminal record; the
// first write wins and later writes are ignored.
type ResultBackend interface {

	// SetResult persists a terminal success record.
	//
	// The record's Status must be SUCCESS (or TIMEOUT under the ignore
	// policy, which stores an outcome without an error).
	SetResult(ctx context.Context, r *job.Result) error

	// SetError persists a terminal failure record carrying the error
	// summary and traceback.
	SetError(ctx context.Context, r *job.Result) error

	// GetResult returns the stored success value, or nil when no
	// record exists or the record is not a success.
	GetResult(ctx context.Context, id string) (any, error)

	// GetError returns the failure record, or nil when no record
	// exists or the record is not a failure.
	GetError(ctx context.Context, id string) (*job.Result, error)

	// GetFull returns the complete stored record, or nil when the id
	// is unknown.
	GetFull(ctx context.Context, id string) (*job.Result, error)

	// ListJobs returns record summaries matching the filter, newest
	// first by FinishedAt when available.
	ListJobs(ctx context.Context, filter ListFilter) ([]*job.Result, error)

	// Delete removes terminal records matching the filter and returns
	// the number removed. Intended for retention management.
	Delete(ctx context.Context, filter ListFilter) (int64, error)

	// Close releases backend resources.
	Close() error
}
