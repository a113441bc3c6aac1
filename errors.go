package pglue

import (
	"errors"

	"github.com/jkantaria/pglue/codec"
	"github.com/jkantaria/pglue/internal/wireproto"
)

// WireError is the connection/protocol error family: connection closed,
// bad nonce, unsupported auth mechanism, malformed stream, resource
// misuse (spec.md §7).
type WireError = wireproto.WireError

// PgError wraps a server ErrorResponse; it derives from WireError per
// spec.md §7 ("Postgres errors derive from wire errors").
type PgError = wireproto.PgError

// TypeError reports a value a codec refused to format or parse
// (spec.md §7's "type errors" family), distinct from WireError/PgError.
type TypeError = codec.TypeError

// Sentinel errors comparable with errors.Is.
var (
	ErrClosed              = wireproto.ErrClosed
	ErrChannelNotListening = wireproto.ErrChannelNotListening
	ErrTransactionNotOpen  = wireproto.ErrTransactionNotOpen

	// ErrNoRows is returned by Query.First when the result set is empty.
	// spec.md §7 classifies this as a type error ("expected one row, got
	// none"), so ErrNoRows is a *TypeError, not a bare sentinel — callers
	// doing errors.As(err, new(*pglue.TypeError)) catch it along with
	// every other type error, while errors.Is(err, ErrNoRows) still works
	// since First always returns this same value. Named after
	// database/sql's identical sentinel since it is the idiomatic Go
	// spelling of the same condition.
	ErrNoRows = &TypeError{Codec: "pglue.Query.First", Err: errors.New("expected one row, got none")}
)
