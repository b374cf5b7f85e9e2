package plugin

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Descriptor is the parsed form of the plugin descriptor file.
type Descriptor struct {
	Plugins DescriptorPlugins `toml:"plugins"`
}

// DescriptorPlugins groups plugin entries by capability.
//
// Each entry has the form "<path-to-shared-object>:<ExportedSymbol>".
type DescriptorPlugins struct {
	QueueBackend  []string `toml:"queue_backend"`
	ResultBackend []string `toml:"result_backend"`
	Monitoring    []string `toml:"monitoring"`
}

// Entries returns every descriptor entry in capability order:
// queue backends, result backends, monitoring.
func (d *Descriptor) Entries() []string {
	var ret []string
	ret = append(ret, d.Plugins.QueueBackend...)
	ret = append(ret, d.Plugins.ResultBackend...)
	ret = append(ret, d.Plugins.Monitoring...)
	return ret
}

// ParseDescriptor reads and parses the descriptor file at path.
//
// A missing file is not an error: it yields an empty descriptor, since
// running without user plugins is the common case.
func ParseDescriptor(path string) (*Descriptor, error) {
	var ret Descriptor
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &ret, nil
	}
	if _, err := toml.DecodeFile(path, &ret); err != nil {
		return nil, fmt.Errorf("%w: parse descriptor %s: %v", ErrPluginLoad, path, err)
	}
	for _, entry := range ret.Entries() {
		if _, _, err := splitEntry(entry); err != nil {
			return nil, err
		}
	}
	return &ret, nil
}

// splitEntry splits "path/to/plugin.so:Symbol" on the last colon.
func splitEntry(entry string) (path string, symbol string, err error) {
	i := strings.LastIndexByte(entry, ':')
	if i <= 0 || i == len(entry)-1 {
		return "", "", fmt.Errorf("%w: malformed entry %q, want \"path.so:Symbol\"", ErrPluginLoad, entry)
	}
	return entry[:i], entry[i+1:], nil
}
