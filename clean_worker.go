package nuvom

import (
	"context"
	"log/slog"
	"time"

	"github.com/nahom-zewdu/nuvom/internal"
	"github.com/nahom-zewdu/nuvom/job"
)

// CleanConfig defines the scheduling and filtering parameters for a
// CleanWorker.
//
// Statuses lists the terminal states targeted for deletion; an empty
// list targets every terminal state. Interval defines how often the
// cleaner runs. MaxAge restricts deletion to records whose FinishedAt
// is older than now minus MaxAge; zero disables the age filter.
type CleanConfig struct {
	Statuses []job.Status
	Interval time.Duration
	MaxAge   time.Duration
}

// CleanWorker periodically removes terminal records from a result
// backend according to the provided configuration.
//
// Result stores grow without bound otherwise; CleanWorker is intended
// for background retention management, such as removing successful
// records after a day while keeping failures for a week.
//
// CleanWorker does not participate in job processing and does not
// affect queue leases.
//
// CleanWorker has a strict lifecycle:
//   - Start may only be called once.
//   - Stop must be called to terminate the worker.
//   - Stop waits for the internal task to finish or until the timeout
//     expires.
type CleanWorker struct {
	lcBase
	results  ResultBackend
	task     internal.TimerTask
	log      *slog.Logger
	statuses []job.Status
	interval time.Duration
	maxAge   time.Duration
}

// NewCleanWorker creates a CleanWorker over the given result backend.
//
// The worker is not started automatically. Call Start to begin periodic
// cleaning.
func NewCleanWorker(results ResultBackend, config *CleanConfig, log *slog.Logger) *CleanWorker {
	statuses := config.Statuses
	if len(statuses) == 0 {
		statuses = []job.Status{job.Success, job.Failed, job.Timeout, job.Cancelled}
	}
	return &CleanWorker{
		results:  results,
		log:      log,
		statuses: statuses,
		interval: config.Interval,
		maxAge:   config.MaxAge,
	}
}

func (cw *CleanWorker) before() *time.Time {
	if cw.maxAge == 0 {
		return nil
	}
	ret := time.Now().Add(-cw.maxAge)
	return &ret
}

func (cw *CleanWorker) clean(ctx context.Context) {
	before := cw.before()
	var total int64
	for _, status := range cw.statuses {
		count, err := cw.results.Delete(ctx, ListFilter{
			Status:    status,
			HasStatus: true,
			Before:    before,
		})
		if err != nil {
			cw.log.Error("error while cleaning", "status", status.String(), "err", err)
			continue
		}
		total += count
	}
	cw.log.Info("cleaned records", "count", total)
}

// Start begins periodic execution of the cleaning task.
//
// Start returns ErrDoubleStarted if the worker has already been
// started. The provided context controls cancellation of the
// background task.
func (cw *CleanWorker) Start(ctx context.Context) error {
	if err := cw.tryStart(); err != nil {
		return err
	}
	cw.task.Start(ctx, cw.clean, cw.interval)
	return nil
}

// Stop terminates the background cleaning task.
//
// Stop waits until the task finishes or the specified timeout expires.
// If shutdown does not complete within the timeout, ErrStopTimeout is
// returned.
//
// Stop returns ErrDoubleStopped if the worker is not running.
func (cw *CleanWorker) Stop(timeout time.Duration) error {
	return cw.tryStop(timeout, cw.task.Stop)
}
