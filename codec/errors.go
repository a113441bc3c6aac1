package codec

import "errors"

var (
	errInvalidBool  = errors.New("invalid boolean text literal")
	errInvalidBytea = errors.New("invalid bytea text literal, want \\x-prefixed hex")
	errWrongGoType  = errors.New("value is not assignable to this codec's Go type")
	errOutOfRange   = errors.New("value out of range for this codec's width")
)
