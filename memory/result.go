package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/nahom-zewdu/nuvom"
	"github.com/nahom-zewdu/nuvom/job"
)

// ResultBackend is an in-memory result store backed by a map.
//
// Records are copied on the way in and out so callers never share
// mutable state with the store.
type ResultBackend struct {
	mu      sync.RWMutex
	records map[string]*job.Result
}

// NewResultBackend creates an empty in-memory result store.
func NewResultBackend() *ResultBackend {
	return &ResultBackend{
		records: make(map[string]*job.Result),
	}
}

func cloneResult(r *job.Result) *job.Result {
	ret := *r
	if r.Attempts != nil {
		ret.Attempts = make([]job.Attempt, len(r.Attempts))
		copy(ret.Attempts, r.Attempts)
	}
	return &ret
}

// set stores the record unless a terminal record already exists for the
// id. The first terminal write wins.
func (b *ResultBackend) set(r *job.Result) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.records[r.ID]; ok && existing.Status.Terminal() {
		return nil
	}
	b.records[r.ID] = cloneResult(r)
	return nil
}

// SetResult persists a terminal success record.
func (b *ResultBackend) SetResult(ctx context.Context, r *job.Result) error {
	return b.set(r)
}

// SetError persists a terminal failure record.
func (b *ResultBackend) SetError(ctx context.Context, r *job.Result) error {
	return b.set(r)
}

// GetResult returns the stored success value, or nil when absent.
func (b *ResultBackend) GetResult(ctx context.Context, id string) (any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.records[id]
	if !ok || r.Status != job.Success {
		return nil, nil
	}
	return r.Value, nil
}

// GetError returns the failure record, or nil when absent.
func (b *ResultBackend) GetError(ctx context.Context, id string) (*job.Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.records[id]
	if !ok || (r.Status != job.Failed && r.Status != job.Timeout && r.Status != job.Cancelled) {
		return nil, nil
	}
	return cloneResult(r), nil
}

// GetFull returns the complete stored record, or nil when the id is
// unknown.
func (b *ResultBackend) GetFull(ctx context.Context, id string) (*job.Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.records[id]
	if !ok {
		return nil, nil
	}
	return cloneResult(r), nil
}

func matches(r *job.Result, filter nuvom.ListFilter) bool {
	if filter.HasStatus && r.Status != filter.Status {
		return false
	}
	if filter.Before != nil && r.FinishedAt.After(*filter.Before) {
		return false
	}
	return true
}

// ListJobs returns records matching the filter, newest first by
// FinishedAt.
func (b *ResultBackend) ListJobs(ctx context.Context, filter nuvom.ListFilter) ([]*job.Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var ret []*job.Result
	for _, r := range b.records {
		if matches(r, filter) {
			ret = append(ret, cloneResult(r))
		}
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].FinishedAt.After(ret[j].FinishedAt)
	})
	if filter.Limit > 0 && len(ret) > filter.Limit {
		ret = ret[:filter.Limit]
	}
	return ret, nil
}

// Delete removes records matching the filter and returns the number
// removed.
func (b *ResultBackend) Delete(ctx context.Context, filter nuvom.ListFilter) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var count int64
	for id, r := range b.records {
		if matches(r, filter) {
			delete(b.records, id)
			count++
		}
	}
	return count, nil
}

// Close is a no-op for the in-memory store.
func (b *ResultBackend) Close() error {
	return nil
}

var _ nuvom.ResultBackend = (*ResultBackend)(nil)
