package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nahom-zewdu/nuvom"
	"github.com/nahom-zewdu/nuvom/job"
	"github.com/nahom-zewdu/nuvom/memory"
)

func TestQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := memory.NewQueue(0)
	defer q.Close()

	var ids []string
	for i := 0; i < 5; i++ {
		j := job.New("noop", nil, nil)
		ids = append(ids, j.ID)
		require.NoError(t, q.Enqueue(ctx, j))
	}
	for _, want := range ids {
		got, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want, got.ID)
	}
}

func TestDequeueTimeout(t *testing.T) {
	q := memory.NewQueue(0)
	defer q.Close()

	start := time.Now()
	j, err := q.Dequeue(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, j)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestDequeueWakesOnEnqueue(t *testing.T) {
	ctx := context.Background()
	q := memory.NewQueue(0)
	defer q.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = q.Enqueue(ctx, job.New("noop", nil, nil))
	}()
	j, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.NotNil(t, j)
}

func TestPopBatch(t *testing.T) {
	ctx := context.Background()
	q := memory.NewQueue(0)
	defer q.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(ctx, job.New("noop", nil, nil)))
	}
	batch, err := q.PopBatch(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, batch, 3)

	batch, err = q.PopBatch(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	batch, err = q.PopBatch(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestCapacity(t *testing.T) {
	ctx := context.Background()
	q := memory.NewQueue(2)
	defer q.Close()

	require.NoError(t, q.Enqueue(ctx, job.New("noop", nil, nil)))
	require.NoError(t, q.Enqueue(ctx, job.New("noop", nil, nil)))
	assert.ErrorIs(t, q.Enqueue(ctx, job.New("noop", nil, nil)), nuvom.ErrQueueFull)
}

func TestNackRequeuesAfterDelay(t *testing.T) {
	ctx := context.Background()
	q := memory.NewQueue(0)
	defer q.Close()

	j := job.New("noop", nil, nil)
	require.NoError(t, q.Enqueue(ctx, j))
	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)

	got.RetriesLeft = 7
	require.NoError(t, q.Nack(ctx, got, 60*time.Millisecond))

	// not yet visible
	early, err := q.PopBatch(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, early)

	// visible again after the delay, carrying the updated budget
	late, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, late)
	assert.Equal(t, j.ID, late.ID)
	assert.Equal(t, 7, late.RetriesLeft)
}

func TestAckIsNoOp(t *testing.T) {
	ctx := context.Background()
	q := memory.NewQueue(0)
	defer q.Close()
	assert.NoError(t, q.Ack(ctx, "whatever"))
}

func TestSizeAndClear(t *testing.T) {
	ctx := context.Background()
	q := memory.NewQueue(0)
	defer q.Close()

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Enqueue(ctx, job.New("noop", nil, nil)))
	}
	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, size)

	require.NoError(t, q.Clear(ctx))
	size, err = q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestDequeueReturnsCloneNotShared(t *testing.T) {
	ctx := context.Background()
	q := memory.NewQueue(0)
	defer q.Close()

	j := job.New("noop", []any{"x"}, nil)
	require.NoError(t, q.Enqueue(ctx, j))
	j.Args[0] = "mutated after enqueue"

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "x", got.Args[0])
}
