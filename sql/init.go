package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "modernc.org/sqlite"
)

// Open opens (or creates) a single-file SQLite database configured for
// queue use: WAL journaling, a busy timeout for concurrent readers, and
// a single connection to keep writes serialized.
//
// The caller owns the returned handle and closes it after the backends
// built on it.
func Open(path string) (*bun.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1) // important for sqlite
	return bun.NewDB(sqlDB, sqlitedialect.New()), nil
}

func createJobsTable(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().
		Model((*jobRow)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func createResultsTable(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().
		Model((*resultRow)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func createVisibleIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*jobRow)(nil)).
		Index("idx_jobs_status_visible").
		Column("status", "visible_at").
		IfNotExists().
		Exec(ctx)
	return err
}

func createLeaseIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*jobRow)(nil)).
		Index("idx_jobs_status_lease").
		Column("status", "lease_expires_at").
		IfNotExists().
		Exec(ctx)
	return err
}

func createResultStatusIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*resultRow)(nil)).
		Index("idx_results_status").
		Column("status").
		IfNotExists().
		Exec(ctx)
	return err
}

func createResultFinishedIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*resultRow)(nil)).
		Index("idx_results_finished").
		Column("finished_at").
		IfNotExists().
		Exec(ctx)
	return err
}

func setup(ctx context.Context, db *bun.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	steps := []func(context.Context, bun.IDB) error{
		createJobsTable,
		createResultsTable,
		createVisibleIndex,
		createLeaseIndex,
		createResultStatusIndex,
		createResultFinishedIndex,
	}
	for _, step := range steps {
		if err := step(ctx, tx); err != nil {
			return errors.Join(err, tx.Rollback())
		}
	}
	return tx.Commit()
}

// Setup initializes the schema required by the SQL backends.
//
// It creates the jobs and results tables and their indexes inside a
// single transaction. If any step fails, the transaction is rolled
// back.
//
// Setup is idempotent and may be safely called multiple times. It does
// not drop or modify existing tables beyond creating missing objects.
func Setup(ctx context.Context, db *bun.DB) error {
	return setup(ctx, db)
}

// MustSetup behaves like Setup but panics if initialization fails.
//
// This helper is intended for application bootstrap code where failure
// to initialize schema is considered unrecoverable.
func MustSetup(ctx context.Context, db *bun.DB) {
	if err := setup(ctx, db); err != nil {
		panic(err)
	}
}
