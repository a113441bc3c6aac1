package wireproto

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by any operation attempted against a wire that has
// been closed (deliberately or due to an unsolicited disconnect).
var ErrClosed = errors.New("pglue: wire closed")

// ErrChannelNotListening is returned by Unlisten for a name not currently
// registered.
var ErrChannelNotListening = errors.New("pglue: channel not listening")

// ErrTransactionNotOpen is returned by Commit/Rollback called on a
// transaction entry no longer present in the savepoint stack.
var ErrTransactionNotOpen = errors.New("pglue: transaction not open")

// WireError is the base error family from spec.md §7: connection closed,
// bad nonce, unsupported auth mechanism, malformed stream, resource
// misuse. PgError embeds one of these; plain wire errors are returned
// standalone for protocol/connection-level failures.
type WireError struct {
	Op  string
	Err error
}

func (e *WireError) Error() string {
	return fmt.Sprintf("pglue: %s: %v", e.Op, e.Err)
}

func (e *WireError) Unwrap() error { return e.Err }

func wireErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &WireError{Op: op, Err: err}
}

// ErrorField indexes into PgError.Fields by the PostgreSQL error-field
// letter code (spec.md §4.1).
type ErrorField byte

const (
	FieldSeverity     ErrorField = 'S'
	FieldSeverityV    ErrorField = 'V'
	FieldCode         ErrorField = 'C'
	FieldMessage      ErrorField = 'M'
	FieldDetail       ErrorField = 'D'
	FieldHint         ErrorField = 'H'
	FieldPosition     ErrorField = 'P'
	FieldWhere        ErrorField = 'W'
	FieldSchema       ErrorField = 's'
	FieldTable        ErrorField = 't'
	FieldColumn       ErrorField = 'c'
	FieldDataType     ErrorField = 'd'
	FieldConstraint   ErrorField = 'n'
	FieldFile         ErrorField = 'F'
	FieldLine         ErrorField = 'L'
	FieldRoutine      ErrorField = 'R'
)

// PgError wraps a server ErrorResponse. It derives from WireError per
// spec.md §7 ("Postgres errors derive from wire errors").
type PgError struct {
	*WireError
	Fields map[byte]string
}

// NewPgError builds a PgError from an ErrorResponse's decoded fields,
// defaulting Code to "XX000" and Severity to "ERROR" when the server
// omits them (spec.md §4.1).
func NewPgError(fields map[byte]string) *PgError {
	msg := fields[byte(FieldMessage)]
	if msg == "" {
		msg = "unknown server error"
	}
	return &PgError{
		WireError: &WireError{Op: "query", Err: errors.New(msg)},
		Fields:    fields,
	}
}

func (e *PgError) field(f ErrorField) string { return e.Fields[byte(f)] }

func (e *PgError) Severity() string  { return orDefault(e.field(FieldSeverity), "ERROR") }
func (e *PgError) Code() string      { return orDefault(e.field(FieldCode), "XX000") }
func (e *PgError) Message() string   { return e.field(FieldMessage) }
func (e *PgError) Detail() string    { return e.field(FieldDetail) }
func (e *PgError) Hint() string      { return e.field(FieldHint) }
func (e *PgError) Position() string  { return e.field(FieldPosition) }
func (e *PgError) Where() string     { return e.field(FieldWhere) }
func (e *PgError) Schema() string    { return e.field(FieldSchema) }
func (e *PgError) Table() string     { return e.field(FieldTable) }
func (e *PgError) Column() string    { return e.field(FieldColumn) }
func (e *PgError) DataType() string  { return e.field(FieldDataType) }
func (e *PgError) Constraint() string { return e.field(FieldConstraint) }
func (e *PgError) File() string      { return e.field(FieldFile) }
func (e *PgError) Line() string      { return e.field(FieldLine) }
func (e *PgError) Routine() string   { return e.field(FieldRoutine) }

func (e *PgError) Error() string {
	return fmt.Sprintf("pglue: pg error %s (%s): %s", e.Code(), e.Severity(), e.Message())
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
