package file_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nahom-zewdu/nuvom/codec"
	"github.com/nahom-zewdu/nuvom/file"
	"github.com/nahom-zewdu/nuvom/job"
)

func newTestQueue(t *testing.T, dir string, visibility time.Duration) *file.Queue {
	t.Helper()
	c, err := codec.Get("msgpack")
	require.NoError(t, err)
	q, err := file.NewQueue(dir, c, &file.QueueConfig{
		VisibilityTimeout: visibility,
		SweepInterval:     50 * time.Millisecond,
	}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func pendingFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dir, "pending"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func inflightFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dir, "inflight"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestEnqueueCreatesRecordFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	q := newTestQueue(t, dir, time.Minute)

	j := job.New("noop", nil, nil)
	require.NoError(t, q.Enqueue(ctx, j))

	names := pendingFiles(t, dir)
	require.Len(t, names, 1)
	assert.True(t, strings.HasSuffix(names[0], "-"+j.ID+".rec"))
	assert.False(t, strings.HasSuffix(names[0], ".tmp"))
}

func TestDequeueArrivalOrder(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, t.TempDir(), time.Minute)

	var ids []string
	for i := 0; i < 5; i++ {
		j := job.New("noop", nil, nil)
		require.NoError(t, q.Enqueue(ctx, j))
		ids = append(ids, j.ID)
		time.Sleep(time.Millisecond) // distinct enqueue nanos
	}
	for _, want := range ids {
		got, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want, got.ID)
		require.NoError(t, q.Ack(ctx, got.ID))
	}
}

func TestDequeueMovesToInflight(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	q := newTestQueue(t, dir, time.Minute)

	j := job.New("noop", nil, nil)
	require.NoError(t, q.Enqueue(ctx, j))

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Empty(t, pendingFiles(t, dir))
	assert.Len(t, inflightFiles(t, dir), 1)

	require.NoError(t, q.Ack(ctx, got.ID))
	assert.Empty(t, inflightFiles(t, dir))
}

func TestNackReturnsUpdatedRecord(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	q := newTestQueue(t, dir, time.Minute)

	j := job.New("noop", nil, nil, job.WithRetries(2))
	require.NoError(t, q.Enqueue(ctx, j))

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)

	got.RetriesLeft = 1
	got.Attempts = append(got.Attempts, job.Attempt{Outcome: job.Failed, Traceback: "boom"})
	require.NoError(t, q.Nack(ctx, got, 0))

	assert.Empty(t, inflightFiles(t, dir))

	again, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, j.ID, again.ID)
	assert.Equal(t, 1, again.RetriesLeft)
	require.Len(t, again.Attempts, 1)
	assert.Equal(t, "boom", again.Attempts[0].Traceback)
}

func TestNackDelayHidesRecord(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, t.TempDir(), time.Minute)

	j := job.New("noop", nil, nil)
	require.NoError(t, q.Enqueue(ctx, j))
	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, q.Nack(ctx, got, 80*time.Millisecond))

	early, err := q.PopBatch(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, early)

	late, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, late)
	assert.Equal(t, j.ID, late.ID)
}

func TestLeaseRecovery(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	q := newTestQueue(t, dir, 100*time.Millisecond)

	j := job.New("noop", nil, nil)
	require.NoError(t, q.Enqueue(ctx, j))

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)

	// no ack: the lease elapses and the sweeper returns the record
	time.Sleep(300 * time.Millisecond)

	again, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, j.ID, again.ID)
}

func TestLeaseRecoveryAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	q := newTestQueue(t, dir, 100*time.Millisecond)

	j := job.New("noop", nil, nil)
	require.NoError(t, q.Enqueue(ctx, j))
	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)

	// simulate a worker process dying before ack
	require.NoError(t, q.Close())
	time.Sleep(150 * time.Millisecond)

	fresh := newTestQueue(t, dir, 100*time.Millisecond)
	again, err := fresh.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, j.ID, again.ID)
}

func TestCorruptRecordQuarantined(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	q := newTestQueue(t, dir, time.Minute)

	// a malformed record placed directly into pending
	bad := filepath.Join(dir, "pending", "00000000000000000001-dead.rec")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0o644))

	j := job.New("noop", nil, nil)
	require.NoError(t, q.Enqueue(ctx, j))

	// the scan claims the corrupt file first, quarantines it and
	// continues to the valid record
	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, j.ID, got.ID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var quarantined bool
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".corrupt") {
			quarantined = true
		}
	}
	assert.True(t, quarantined)
	assert.Empty(t, pendingFiles(t, dir))
}

func TestSizeAndClear(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, t.TempDir(), time.Minute)

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, job.New("noop", nil, nil)))
	}
	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, size)

	require.NoError(t, q.Clear(ctx))
	size, err = q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestPendingSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	q := newTestQueue(t, dir, time.Minute)

	j := job.New("noop", []any{"payload"}, nil)
	require.NoError(t, q.Enqueue(ctx, j))
	require.NoError(t, q.Close())

	fresh := newTestQueue(t, dir, time.Minute)
	got, err := fresh.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, j.ID, got.ID)
	assert.Equal(t, "payload", got.Args[0])
}
