package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/nahom-zewdu/nuvom"
	"github.com/nahom-zewdu/nuvom/config"
)

// APIVersion is the plugin protocol version this runtime speaks.
// Loaders refuse plugins whose major version differs.
const APIVersion = "1.0"

// ErrPluginLoad indicates that a plugin could not be loaded, resolved
// or started. Plugin load failures are fatal during startup.
var ErrPluginLoad = errors.New("plugin load error")

// Capability names a runtime extension point a plugin can provide.
type Capability string

const (
	CapQueueBackend  Capability = "queue_backend"
	CapResultBackend Capability = "result_backend"
	CapMonitoring    Capability = "monitoring"
)

// QueueFactory builds a queue backend from the runtime configuration.
type QueueFactory func(cfg *config.Config) (nuvom.Queue, error)

// ResultFactory builds a result backend from the runtime configuration.
type ResultFactory func(cfg *config.Config) (nuvom.ResultBackend, error)

// Settings is handed to Plugin.Start once configuration is ready.
type Settings struct {
	Config   *config.Config
	Registry *Registry
	Log      *slog.Logger
}

// Plugin is the contract a user-supplied module exposes through its
// descriptor symbol.
//
// Start is called once after configuration is ready and is expected to
// register factories for the capabilities it provides. Stop is called
// during graceful shutdown in reverse start order.
type Plugin interface {
	APIVersion() string
	Name() string
	Provides() []Capability
	Start(settings *Settings) error
	Stop() error
}

// Registry holds the backend factories and monitoring sinks provided
// by built-ins and started plugins.
//
// The registry is written during startup only; steady-state access is
// read-only.
type Registry struct {
	mu       sync.RWMutex
	queues   map[string]QueueFactory
	results  map[string]ResultFactory
	monitors []string
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{
		queues:  make(map[string]QueueFactory),
		results: make(map[string]ResultFactory),
	}
}

// RegisterQueueBackend makes a queue backend constructible by name.
// Later registrations under the same name replace earlier ones, so
// plugins may shadow built-ins.
func (r *Registry) RegisterQueueBackend(name string, factory QueueFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[name] = factory
}

// RegisterResultBackend makes a result backend constructible by name.
func (r *Registry) RegisterResultBackend(name string, factory ResultFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[name] = factory
}

// InstallMonitor records that a monitoring sink with the given name is
// active. Monitoring plugins poll the process metrics provider
// themselves; the registry only tracks them for diagnostics.
func (r *Registry) InstallMonitor(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.monitors = append(r.monitors, name)
}

// OpenQueue constructs the queue backend registered under name.
func (r *Registry) OpenQueue(name string, cfg *config.Config) (nuvom.Queue, error) {
	r.mu.RLock()
	factory, ok := r.queues[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: queue backend %q (have: %s)",
			nuvom.ErrUnknownBackend, name, strings.Join(r.QueueBackends(), ", "))
	}
	return factory(cfg)
}

// OpenResult constructs the result backend registered under name.
func (r *Registry) OpenResult(name string, cfg *config.Config) (nuvom.ResultBackend, error) {
	r.mu.RLock()
	factory, ok := r.results[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: result backend %q (have: %s)",
			nuvom.ErrUnknownBackend, name, strings.Join(r.ResultBackends(), ", "))
	}
	return factory(cfg)
}

// QueueBackends returns the registered queue backend names, sorted.
func (r *Registry) QueueBackends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]string, 0, len(r.queues))
	for name := range r.queues {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// ResultBackends returns the registered result backend names, sorted.
func (r *Registry) ResultBackends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]string, 0, len(r.results))
	for name := range r.results {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// Monitors returns the names of installed monitoring sinks.
func (r *Registry) Monitors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]string, len(r.monitors))
	copy(ret, r.monitors)
	return ret
}
