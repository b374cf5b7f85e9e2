package codec

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/nahom-zewdu/nuvom/job"
)

// magic prefixes every encoded record. The trailing byte is the format
// version; decoders reject any other value.
var magic = []byte{'N', 'V', 'M', 0x01}

// Msgpack is the default codec. It frames a msgpack body with a 4-byte
// magic prefix so that decoders can distinguish damaged files from
// records written by a different format version.
type Msgpack struct{}

func init() {
	Register(Msgpack{})
}

// Name returns "msgpack".
func (Msgpack) Name() string {
	return "msgpack"
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(magic)
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("msgpack encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v any) error {
	if len(data) < len(magic) || !bytes.Equal(data[:len(magic)], magic) {
		return fmt.Errorf("%w: bad magic", ErrCorruptRecord)
	}
	if err := msgpack.Unmarshal(data[len(magic):], v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return nil
}

// EncodeJob serializes a job record. Map keys are sorted so that equal
// jobs encode to identical bytes.
func (Msgpack) EncodeJob(j *job.Job) ([]byte, error) {
	return encode(j)
}

// DecodeJob deserializes a job record, returning ErrCorruptRecord for
// malformed or version-mismatched payloads.
func (Msgpack) DecodeJob(data []byte) (*job.Job, error) {
	var ret job.Job
	if err := decode(data, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

// EncodeResult serializes a terminal result record.
func (Msgpack) EncodeResult(r *job.Result) ([]byte, error) {
	return encode(r)
}

// DecodeResult deserializes a terminal result record.
func (Msgpack) DecodeResult(data []byte) (*job.Result, error) {
	var ret job.Result
	if err := decode(data, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}
