// Package codec provides the binary serialization layer for job and
// result records.
//
// A Codec turns records into a compact, cross-language-friendly byte form
// and back. Encoded payloads carry a short magic prefix with a format
// version; Decode rejects payloads whose prefix does not match with
// ErrCorruptRecord, which lets queue backends quarantine damaged or
// foreign files instead of failing the process.
//
// Codecs are registered by name in a process-wide registry. The msgpack
// codec is registered by default and selected by the configuration key
// serialization_backend. Registration happens at startup; the registry is
// read-only afterwards.
package codec
