package codec

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nahom-zewdu/nuvom/job"
)

// ErrCorruptRecord indicates that a payload could not be decoded: it is
// truncated, malformed, or was produced by an incompatible codec version.
var ErrCorruptRecord = errors.New("corrupt record")

// ErrUnknownCodec indicates that no codec is registered under the
// requested name.
var ErrUnknownCodec = errors.New("unknown codec")

// Codec encodes and decodes job and result records.
//
// Encode is total for any record whose field values the codec can
// represent; unrepresentable values yield a typed error and no payload.
// Decode is the inverse and must round-trip every record field exactly.
// Encoding is deterministic for equal inputs.
type Codec interface {

	// Name returns the registry name of the codec.
	Name() string

	// EncodeJob serializes a job record.
	EncodeJob(j *job.Job) ([]byte, error)

	// DecodeJob deserializes a job record.
	//
	// Malformed or version-mismatched input yields an error wrapping
	// ErrCorruptRecord.
	DecodeJob(data []byte) (*job.Job, error)

	// EncodeResult serializes a terminal result record.
	EncodeResult(r *job.Result) ([]byte, error)

	// DecodeResult deserializes a terminal result record.
	DecodeResult(data []byte) (*job.Result, error)
}

var (
	mu     sync.RWMutex
	codecs = make(map[string]Codec)
)

// Register adds a codec to the process-wide registry.
//
// Registering a second codec under an existing name replaces the previous
// one. Register is intended to be called from init functions or during
// startup, before any worker is created.
func Register(c Codec) {
	mu.Lock()
	defer mu.Unlock()
	codecs[c.Name()] = c
}

// Get returns the codec registered under the given name.
func Get(name string) (Codec, error) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, name)
	}
	return c, nil
}

// Names returns the registered codec names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	ret := make([]string, 0, len(codecs))
	for name := range codecs {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}
