package pglue

import "github.com/jkantaria/pglue/internal/wireproto"

// Row is one result row: named (map-like) and positional (index) access
// over the values the server returned, decoded through the codec
// registry (spec.md §3/§9 "JIT-compiled row constructor" design note).
type Row = wireproto.Row
