package sql_test

import (
	"context"
	dbsql "database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/nahom-zewdu/nuvom/codec"
	nsql "github.com/nahom-zewdu/nuvom/sql"

	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqlDB, err := dbsql.Open("sqlite", "file::memory:?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1) // important for sqlite
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	ctx := context.Background()
	if err := nsql.Setup(ctx, db); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestQueue(t *testing.T, visibility time.Duration) *nsql.Queue {
	t.Helper()
	c, err := codec.Get("msgpack")
	require.NoError(t, err)
	q := nsql.NewQueue(newTestDB(t), c, &nsql.QueueConfig{
		VisibilityTimeout: visibility,
		SweepInterval:     50 * time.Millisecond,
	}, slog.Default())
	t.Cleanup(func() { q.Close() })
	return q
}

func newTestResults(t *testing.T) *nsql.ResultBackend {
	t.Helper()
	return nsql.NewResultBackend(newTestDB(t), slog.Default())
}
