package file

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nahom-zewdu/nuvom"
	"github.com/nahom-zewdu/nuvom/codec"
	"github.com/nahom-zewdu/nuvom/job"
)

const resExt = ".res"

// ResultBackend stores one codec-encoded terminal record per job id
// under a single directory.
type ResultBackend struct {
	root  string
	codec codec.Codec
	log   *slog.Logger
}

// NewResultBackend opens (or creates) a file result store rooted at dir.
func NewResultBackend(dir string, c codec.Codec, log *slog.Logger) (*ResultBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create result dir: %w", err)
	}
	return &ResultBackend{
		root:  dir,
		codec: c,
		log:   log,
	}, nil
}

func (b *ResultBackend) path(id string) string {
	return filepath.Join(b.root, id+resExt)
}

// set persists the record unless a terminal record already exists. The
// first terminal write wins.
func (b *ResultBackend) set(r *job.Result) error {
	if existing, err := b.read(r.ID); err == nil && existing != nil && existing.Status.Terminal() {
		return nil
	}
	data, err := b.codec.EncodeResult(r)
	if err != nil {
		return err
	}
	return writeAtomic(b.root, r.ID+resExt, data)
}

func (b *ResultBackend) read(id string) (*job.Result, error) {
	data, err := os.ReadFile(b.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return b.codec.DecodeResult(data)
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
	r, err := b.read(id)
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
	r, err := b.read(id)
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
	return b.read(id)
}

// list reads every record in the store, skipping undecodable files with
// a diagnostic.
func (b *ResultBackend) list() ([]*job.Result, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, err
	}
	var ret []*job.Result
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, resExt) {
			continue
		}
		r, err := b.read(strings.TrimSuffix(name, resExt))
		if err != nil {
			b.log.Warn("skipping unreadable result record", "file", name, "err", err)
			continue
		}
		if r != nil {
			ret = append(ret, r)
		}
	}
	return ret, nil
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
	all, err := b.list()
	if err != nil {
		return nil, err
	}
	var ret []*job.Result
	for _, r := range all {
		if matches(r, filter) {
			ret = append(ret, r)
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
	all, err := b.list()
	if err != nil {
		return 0, err
	}
	var count int64
	for _, r := range all {
		if !matches(r, filter) {
			continue
		}
		if err := os.Remove(b.path(r.ID)); err != nil && !os.IsNotExist(err) {
			return count, err
		}
		count++
	}
	syncDir(b.root)
	return count, nil
}

// Close is a no-op: every write is already flushed at rename time.
func (b *ResultBackend) Close() error {
	return nil
}

var _ nuvom.ResultBackend = (*ResultBackend)(nil)
