package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"plugin"
	"strings"
)

// compatible reports whether a plugin's protocol version can be loaded
// by this runtime. Versions agree when their major components match.
func compatible(version string) bool {
	major := func(v string) string {
		if i := strings.IndexByte(v, '.'); i >= 0 {
			return v[:i]
		}
		return v
	}
	return major(version) == major(APIVersion)
}

// Loader resolves descriptor entries into live Plugin values and drives
// their start/stop lifecycle.
type Loader struct {
	log     *slog.Logger
	plugins []Plugin
	started []Plugin
}

// NewLoader creates an empty loader.
func NewLoader(log *slog.Logger) *Loader {
	return &Loader{
		log: log,
	}
}

// open resolves one descriptor entry to a Plugin value via the Go
// plugin mechanism. The exported symbol may be a Plugin value or a
// pointer to one.
func open(entry string) (Plugin, error) {
	path, symbol, err := splitEntry(entry)
	if err != nil {
		return nil, err
	}
	so, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrPluginLoad, path, err)
	}
	sym, err := so.Lookup(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s has no symbol %q", ErrPluginLoad, path, symbol)
	}
	switch p := sym.(type) {
	case Plugin:
		return p, nil
	case *Plugin:
		return *p, nil
	default:
		return nil, fmt.Errorf("%w: symbol %q in %s does not implement Plugin", ErrPluginLoad, symbol, path)
	}
}

// Load resolves every descriptor entry, verifying protocol versions and
// name uniqueness. It must be called exactly once, before Start.
func (l *Loader) Load(desc *Descriptor) error {
	seen := make(map[string]bool)
	for _, entry := range desc.Entries() {
		p, err := open(entry)
		if err != nil {
			return err
		}
		if !compatible(p.APIVersion()) {
			return fmt.Errorf("%w: plugin %q speaks api %s, runtime speaks %s",
				ErrPluginLoad, p.Name(), p.APIVersion(), APIVersion)
		}
		if seen[p.Name()] {
			return fmt.Errorf("%w: duplicate plugin name %q", ErrPluginLoad, p.Name())
		}
		seen[p.Name()] = true
		l.plugins = append(l.plugins, p)
	}
	return nil
}

// Add appends an in-process plugin, bypassing the dynamic loader. Used
// by hosts that compile their plugins into the binary; the same version
// and lifecycle rules apply.
func (l *Loader) Add(p Plugin) error {
	if !compatible(p.APIVersion()) {
		return fmt.Errorf("%w: plugin %q speaks api %s, runtime speaks %s",
			ErrPluginLoad, p.Name(), p.APIVersion(), APIVersion)
	}
	for _, existing := range l.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("%w: duplicate plugin name %q", ErrPluginLoad, p.Name())
		}
	}
	l.plugins = append(l.plugins, p)
	return nil
}

// Start starts every loaded plugin in load order. The first failure
// aborts startup; plugins already started are stopped again in reverse
// order before returning.
func (l *Loader) Start(settings *Settings) error {
	for _, p := range l.plugins {
		if err := p.Start(settings); err != nil {
			err = fmt.Errorf("%w: start %q: %v", ErrPluginLoad, p.Name(), err)
			return errors.Join(err, l.Stop())
		}
		l.started = append(l.started, p)
		l.log.Info("plugin started", "name", p.Name(), "provides", p.Provides())
	}
	return nil
}

// Stop stops started plugins in reverse start order, collecting every
// stop error.
func (l *Loader) Stop() error {
	var errs []error
	for i := len(l.started) - 1; i >= 0; i-- {
		p := l.started[i]
		if err := p.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %q: %w", p.Name(), err))
		} else {
			l.log.Info("plugin stopped", "name", p.Name())
		}
	}
	l.started = nil
	return errors.Join(errs...)
}

// Plugins returns the loaded plugins in load order.
func (l *Loader) Plugins() []Plugin {
	ret := make([]Plugin, len(l.plugins))
	copy(ret, l.plugins)
	return ret
}
