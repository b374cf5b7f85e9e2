package sql

import (
	"time"

	"github.com/uptrace/bun"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nahom-zewdu/nuvom/job"
)

// Queue row statuses. Terminal rows are deleted on ack, so only the
// transport states appear here.
const (
	rowPending  = "pending"
	rowInflight = "inflight"
	rowCorrupt  = "corrupt"
)

type jobRow struct {
	bun.BaseModel `bun:"table:jobs"`

	ID             string `bun:"id,pk"`
	Payload        []byte `bun:"payload,type:blob"`
	Status         string `bun:"status,notnull"`
	VisibleAt      int64  `bun:"visible_at,notnull"`
	LeaseExpiresAt int64  `bun:"lease_expires_at,nullzero,default:null"`
	EnqueuedAt     int64  `bun:"enqueued_at,notnull"`
}

type resultRow struct {
	bun.BaseModel `bun:"table:results"`

	ID         string `bun:"id,pk"`
	FuncName   string `bun:"func_name,notnull"`
	Status     string `bun:"status,notnull"`
	Value      []byte `bun:"value,type:blob"`
	Error      string `bun:"error"`
	Traceback  string `bun:"traceback"`
	Attempts    []byte `bun:"attempts,type:blob"`
	RetriesLeft int    `bun:"retries_left,notnull,default:0"`
	MaxRetries  int    `bun:"max_retries,notnull,default:0"`
	CreatedAt   int64  `bun:"created_at,notnull"`
	EnqueuedAt int64  `bun:"enqueued_at"`
	StartedAt  int64  `bun:"started_at"`
	FinishedAt int64  `bun:"finished_at"`
}

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func stamp(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

func toResultRow(r *job.Result) (*resultRow, error) {
	value, err := msgpack.Marshal(r.Value)
	if err != nil {
		return nil, err
	}
	attempts, err := msgpack.Marshal(r.Attempts)
	if err != nil {
		return nil, err
	}
	return &resultRow{
		ID:         r.ID,
		FuncName:   r.FuncName,
		Status:     r.Status.String(),
		Value:      value,
		Error:      r.ErrorSummary,
		Traceback:  r.Traceback,
		Attempts:    attempts,
		RetriesLeft: r.RetriesLeft,
		MaxRetries:  r.MaxRetries,
		CreatedAt:   nanos(r.CreatedAt),
		EnqueuedAt:  nanos(r.EnqueuedAt),
		StartedAt:   nanos(r.StartedAt),
		FinishedAt:  nanos(r.FinishedAt),
	}, nil
}

func (row *resultRow) toResult() (*job.Result, error) {
	status, err := job.ParseStatus(row.Status)
	if err != nil {
		return nil, err
	}
	var value any
	if len(row.Value) > 0 {
		if err := msgpack.Unmarshal(row.Value, &value); err != nil {
			return nil, err
		}
	}
	var attempts []job.Attempt
	if len(row.Attempts) > 0 {
		if err := msgpack.Unmarshal(row.Attempts, &attempts); err != nil {
			return nil, err
		}
	}
	return &job.Result{
		ID:           row.ID,
		FuncName:     row.FuncName,
		Status:       status,
		Value:        value,
		ErrorSummary: row.Error,
		Traceback:    row.Traceback,
		Attempts:     attempts,
		RetriesLeft:  row.RetriesLeft,
		MaxRetries:   row.MaxRetries,
		CreatedAt:    stamp(row.CreatedAt),
		EnqueuedAt:   stamp(row.EnqueuedAt),
		StartedAt:    stamp(row.StartedAt),
		FinishedAt:   stamp(row.FinishedAt),
	}, nil
}
