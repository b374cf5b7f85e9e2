package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrCorruptManifest indicates that a manifest file could not be parsed
// or references a symbol the host did not provide a callable for.
var ErrCorruptManifest = errors.New("corrupt manifest")

// ManifestEntry is one discovered task in a manifest document.
//
// The discovery pipeline that authors manifests is external; the runtime
// only consumes them. Metadata carries the task's default execution
// parameters.
type ManifestEntry struct {
	File     string           `json:"file"`
	Line     int              `json:"line"`
	Name     string           `json:"name"`
	Metadata ManifestMetadata `json:"metadata"`
}

// ManifestMetadata holds the execution defaults recorded at discovery
// time. Durations are expressed in seconds to stay language-neutral.
type ManifestMetadata struct {
	Retries        int      `json:"retries"`
	RetryDelaySecs float64  `json:"retry_delay_secs"`
	TimeoutSecs    float64  `json:"timeout_secs"`
	StoreResult    bool     `json:"store_result"`
	Tags           []string `json:"tags"`
	Description    string   `json:"description"`
}

// Manifest maps fully-qualified symbols to discovered task entries.
type Manifest map[string]ManifestEntry

// LoadManifest reads and parses a manifest document from path.
//
// Parse failures and entries without a task name are reported as
// ErrCorruptManifest.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var ret Manifest
	if err := json.Unmarshal(data, &ret); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
	}
	for symbol, entry := range ret {
		if entry.Name == "" {
			return nil, fmt.Errorf("%w: entry %q has no task name", ErrCorruptManifest, symbol)
		}
	}
	return ret, nil
}

func secs(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Apply registers every manifest entry into reg, binding callables from
// funcs.
//
// Callables are looked up by fully-qualified symbol first, then by bare
// task name. A manifest entry with no bound callable makes the whole
// apply fail with ErrCorruptManifest: a worker that cannot execute a
// discovered task must not start.
func (m Manifest) Apply(reg *Registry, funcs map[string]Func, mode Mode) error {
	for symbol, entry := range m {
		fn, ok := funcs[symbol]
		if !ok {
			fn, ok = funcs[entry.Name]
		}
		if !ok {
			return fmt.Errorf("%w: no callable bound for %q", ErrCorruptManifest, symbol)
		}
		meta := entry.Metadata
		def := &Definition{
			Name:        entry.Name,
			Func:        fn,
			Retries:     meta.Retries,
			RetryDelay:  secs(meta.RetryDelaySecs),
			Timeout:     secs(meta.TimeoutSecs),
			StoreResult: meta.StoreResult,
			Tags:        meta.Tags,
			Description: meta.Description,
		}
		if err := reg.Register(def, mode); err != nil {
			return err
		}
	}
	return nil
}
