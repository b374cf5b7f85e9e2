package nuvom

import (
	"context"
	"sync/atomic"
)

// Snapshot is a point-in-time view of runtime load, pulled by monitoring
// plugins at their own cadence. No push channel is defined.
type Snapshot struct {
	QueueSize    int
	InflightJobs int
	WorkerCount  int
}

// MetricsProvider is the pull interface exposed to monitoring plugins.
//
// The dispatcher installs itself as the current provider on start; the
// plugin holds the provider handle, never the dispatcher itself.
type MetricsProvider interface {
	MetricsSnapshot(ctx context.Context) (Snapshot, error)
}

var provider atomic.Pointer[MetricsProvider]

// SetMetricsProvider installs p as the process-wide metrics provider.
// Passing nil uninstalls the current provider.
func SetMetricsProvider(p MetricsProvider) {
	if p == nil {
		provider.Store(nil)
		return
	}
	provider.Store(&p)
}

// CurrentMetricsProvider returns the installed provider, or nil when no
// dispatcher is running.
func CurrentMetricsProvider() MetricsProvider {
	ptr := provider.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}
