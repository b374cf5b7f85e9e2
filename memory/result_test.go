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

func successRecord(id string, finished time.Time) *job.Result {
	return &job.Result{
		ID:         id,
		FuncName:   "add",
		Status:     job.Success,
		Value:      5,
		FinishedAt: finished,
	}
}

func TestSetAndGetResult(t *testing.T) {
	ctx := context.Background()
	b := memory.NewResultBackend()
	defer b.Close()

	require.NoError(t, b.SetResult(ctx, successRecord("j1", time.Now())))

	value, err := b.GetResult(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 5, value)

	errRec, err := b.GetError(ctx, "j1")
	require.NoError(t, err)
	assert.Nil(t, errRec)

	full, err := b.GetFull(ctx, "j1")
	require.NoError(t, err)
	require.NotNil(t, full)
	assert.Equal(t, job.Success, full.Status)
}

func TestSetAndGetError(t *testing.T) {
	ctx := context.Background()
	b := memory.NewResultBackend()
	defer b.Close()

	rec := &job.Result{
		ID:           "j2",
		FuncName:     "always_fail",
		Status:       job.Failed,
		ErrorSummary: "RuntimeError: x",
		Traceback:    "stack",
		FinishedAt:   time.Now(),
	}
	require.NoError(t, b.SetError(ctx, rec))

	errRec, err := b.GetError(ctx, "j2")
	require.NoError(t, err)
	require.NotNil(t, errRec)
	assert.Contains(t, errRec.ErrorSummary, "RuntimeError")

	value, err := b.GetResult(ctx, "j2")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	b := memory.NewResultBackend()
	defer b.Close()

	full, err := b.GetFull(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, full)
}

func TestTerminalRecordImmutable(t *testing.T) {
	ctx := context.Background()
	b := memory.NewResultBackend()
	defer b.Close()

	require.NoError(t, b.SetResult(ctx, successRecord("j3", time.Now())))

	overwrite := &job.Result{
		ID:           "j3",
		Status:       job.Failed,
		ErrorSummary: "late failure",
	}
	require.NoError(t, b.SetError(ctx, overwrite))

	full, err := b.GetFull(ctx, "j3")
	require.NoError(t, err)
	assert.Equal(t, job.Success, full.Status)
}

func TestListJobsNewestFirst(t *testing.T) {
	ctx := context.Background()
	b := memory.NewResultBackend()
	defer b.Close()

	base := time.Now()
	require.NoError(t, b.SetResult(ctx, successRecord("old", base.Add(-2*time.Hour))))
	require.NoError(t, b.SetResult(ctx, successRecord("new", base)))
	require.NoError(t, b.SetError(ctx, &job.Result{
		ID: "bad", Status: job.Failed, FinishedAt: base.Add(-time.Hour),
	}))

	all, err := b.ListJobs(ctx, nuvom.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].ID)
	assert.Equal(t, "bad", all[1].ID)
	assert.Equal(t, "old", all[2].ID)

	failed, err := b.ListJobs(ctx, nuvom.ListFilter{Status: job.Failed, HasStatus: true})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "bad", failed[0].ID)

	limited, err := b.ListJobs(ctx, nuvom.ListFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "new", limited[0].ID)
}

func TestDeleteWithFilter(t *testing.T) {
	ctx := context.Background()
	b := memory.NewResultBackend()
	defer b.Close()

	base := time.Now()
	require.NoError(t, b.SetResult(ctx, successRecord("old", base.Add(-2*time.Hour))))
	require.NoError(t, b.SetResult(ctx, successRecord("new", base)))

	cutoff := base.Add(-time.Hour)
	count, err := b.Delete(ctx, nuvom.ListFilter{
		Status:    job.Success,
		HasStatus: true,
		Before:    &cutoff,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	full, err := b.GetFull(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, full)
	full, err = b.GetFull(ctx, "new")
	require.NoError(t, err)
	assert.NotNil(t, full)
}
