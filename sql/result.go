package sql

import (
	"context"
	dbsql "database/sql"
	"errors"
	"log/slog"
	"sync"

	"github.com/uptrace/bun"

	"github.com/nahom-zewdu/nuvom"
	"github.com/nahom-zewdu/nuvom/job"
)

// ResultBackend is a SQLite-backed result store with indexed metadata.
//
// Terminal records are immutable: inserts ignore conflicts on id, so
// the first write wins and later writes are dropped.
type ResultBackend struct {
	db  *bun.DB
	log *slog.Logger

	closeOnce sync.Once
	ownsDB    bool
}

// NewResultBackend creates a SQL result store on an existing database
// handle. Schema setup must be completed before use.
func NewResultBackend(db *bun.DB, log *slog.Logger) *ResultBackend {
	return &ResultBackend{
		db:  db,
		log: log,
	}
}

// OpenResultBackend opens the database file at path, initializes the
// schema and returns a store that owns (and closes) the handle.
func OpenResultBackend(ctx context.Context, path string, log *slog.Logger) (*ResultBackend, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := Setup(ctx, db); err != nil {
		return nil, err
	}
	b := NewResultBackend(db, log)
	b.ownsDB = true
	return b, nil
}

func (b *ResultBackend) set(ctx context.Context, r *job.Result) error {
	row, err := toResultRow(r)
	if err != nil {
		return err
	}
	_, err = b.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	return err
}

// SetResult persists a terminal success record.
func (b *ResultBackend) SetResult(ctx context.Context, r *job.Result) error {
	return b.set(ctx, r)
}

// SetError persists a terminal failure record.
func (b *ResultBackend) SetError(ctx context.Context, r *job.Result) error {
	return b.set(ctx, r)
}

func (b *ResultBackend) get(ctx context.Context, id string) (*job.Result, error) {
	var row resultRow
	err := b.db.NewSelect().
		Model(&row).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, dbsql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toResult()
}

// GetResult returns the stored success value, or nil when absent.
func (b *ResultBackend) GetResult(ctx context.Context, id string) (any, error) {
	r, err := b.get(ctx, id)
	if err != nil || r == nil {
		return nil, err
	}
	if r.Status != job.Success {
		return nil, nil
	}
	return r.Value, nil
}

// GetError returns the failure record, or nil when absent.
func (b *ResultBackend) GetError(ctx context.Context, id string) (*job.Result, error) {
	r, err := b.get(ctx, id)
	if err != nil || r == nil {
		return nil, err
	}
	if r.Status != job.Failed && r.Status != job.Timeout && r.Status != job.Cancelled {
		return nil, nil
	}
	return r, nil
}

// GetFull returns the complete stored record, or nil when the id is
// unknown.
func (b *ResultBackend) GetFull(ctx context.Context, id string) (*job.Result, error) {
	return b.get(ctx, id)
}

// ListJobs returns records matching the filter, newest first by
// finished_at.
func (b *ResultBackend) ListJobs(ctx context.Context, filter nuvom.ListFilter) ([]*job.Result, error) {
	var rows []*resultRow
	query := b.db.NewSelect().
		Model(&rows).
		Order("finished_at DESC")
	if filter.HasStatus {
		query.Where("status = ?", filter.Status.String())
	}
	if filter.Before != nil {
		query.Where("finished_at <= ?", filter.Before.UnixNano())
	}
	if filter.Limit > 0 {
		query.Limit(filter.Limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	ret := make([]*job.Result, 0, len(rows))
	for _, row := range rows {
		r, err := row.toResult()
		if err != nil {
			b.log.Warn("skipping unreadable result row", "id", row.ID, "err", err)
			continue
		}
		ret = append(ret, r)
	}
	return ret, nil
}

// Delete removes records matching the filter and returns the number
// removed.
func (b *ResultBackend) Delete(ctx context.Context, filter nuvom.ListFilter) (int64, error) {
	query := b.db.NewDelete().
		Model((*resultRow)(nil)).
		Where("1 = 1")
	if filter.HasStatus {
		query.Where("status = ?", filter.Status.String())
	}
	if filter.Before != nil {
		query.Where("finished_at <= ?", filter.Before.UnixNano())
	}
	res, err := query.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return getAffected(res), nil
}

// Close closes the database handle when the store owns it.
func (b *ResultBackend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.ownsDB {
			err = b.db.Close()
		}
	})
	return err
}

var _ nuvom.ResultBackend = (*ResultBackend)(nil)
