package pglue

import (
	"errors"
	"testing"
)

func TestFirstReturnsErrNoRowsAsTypeError(t *testing.T) {
	// First returns the package-level ErrNoRows value directly, so both
	// errors.Is against the sentinel and errors.As against the broader
	// *TypeError family must succeed from the same returned error.
	var err error = ErrNoRows
	if !errors.Is(err, ErrNoRows) {
		t.Fatalf("errors.Is failed")
	}
	var te *TypeError
	if !errors.As(err, &te) {
		t.Fatalf("errors.As(*TypeError) failed")
	}
	if te.Codec != "pglue.Query.First" {
		t.Fatalf("TypeError.Codec = %q", te.Codec)
	}
}
