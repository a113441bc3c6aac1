// Package codec maps PostgreSQL type OIDs to Go values using the wire
// protocol's text format: each codec parses a column's UTF-8 text bytes
// into a Go value and formats a Go value back into the text a parameter
// placeholder sends. Binary format is out of scope (spec.md Non-goals).
package codec

import (
	"fmt"
)

// Well-known OIDs for the built-in codecs (pg_type.oid).
const (
	OIDBool        = 16
	OIDBytea       = 17
	OIDInt8        = 20
	OIDInt2        = 21
	OIDInt4        = 23
	OIDText        = 25
	OIDFloat4      = 700
	OIDFloat8      = 701
	OIDJSON        = 114
	OIDJSONB       = 3802
	OIDTimestamptz = 1184
)

// Codec parses a column's text-format bytes into a Go value and formats a
// Go value back into text-format bytes for a Bind parameter. Format
// returning (nil, nil) encodes SQL NULL.
type Codec interface {
	// Name identifies the codec for error messages (e.g. "int4", "bool").
	Name() string
	// Parse decodes text-format bytes into a Go value. b is nil for SQL NULL.
	Parse(b []byte) (any, error)
	// Format encodes a Go value into text-format bytes. v == nil formats
	// as SQL NULL ((nil, nil) return).
	Format(v any) ([]byte, error)
}

// Registry maps type OIDs to Codecs, falling back to the text codec
// (OID 0 conceptually, i.e. "unknown") for anything not registered —
// spec.md §4.1's "codec fallback" invariant: lookup never fails.
type Registry struct {
	byOID map[int32]Codec
}

// NewRegistry returns a Registry pre-populated with the built-in codecs:
// bool, text, int2/4/8, float4/8, timestamptz, bytea, json/jsonb.
func NewRegistry() *Registry {
	r := &Registry{byOID: make(map[int32]Codec)}
	r.Register(OIDBool, boolCodec{})
	r.Register(OIDText, textCodec{})
	r.Register(OIDInt2, intCodec{name: "int2", bits: 16})
	r.Register(OIDInt4, intCodec{name: "int4", bits: 32})
	r.Register(OIDInt8, intCodec{name: "int8", bits: 64})
	r.Register(OIDFloat4, floatCodec{name: "float4", bits: 32})
	r.Register(OIDFloat8, floatCodec{name: "float8", bits: 64})
	r.Register(OIDTimestamptz, timestamptzCodec{})
	r.Register(OIDBytea, byteaCodec{})
	r.Register(OIDJSON, jsonCodec{name: "json"})
	r.Register(OIDJSONB, jsonCodec{name: "jsonb"})
	return r
}

// Register installs or overrides the codec used for oid.
func (r *Registry) Register(oid int32, c Codec) {
	r.byOID[oid] = c
}

// Lookup returns the codec registered for oid, or the text codec if none
// is registered — lookup never fails.
func (r *Registry) Lookup(oid int32) Codec {
	if c, ok := r.byOID[oid]; ok {
		return c
	}
	return textCodec{}
}

// TypeError reports a value a codec refused to format, or text a codec
// could not parse — spec.md §7's "type errors" family.
type TypeError struct {
	Codec string
	Value any
	Err   error
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("codec %s: %v (value %#v)", e.Codec, e.Err, e.Value)
}

func (e *TypeError) Unwrap() error { return e.Err }

func typeErr(codec string, v any, err error) error {
	return &TypeError{Codec: codec, Value: v, Err: err}
}
