package proto

import (
	"encoding/binary"
	"io"
)

// Header frames an incoming wire message. Typed messages carry Type and a
// Length that includes the length field itself but not Type; untyped
// messages (StartupMessage, CancelRequest) set Type to 0 and Length is the
// full on-wire length including the length field.
type Header struct {
	Type   byte
	Length int32
}

// ReadHeader reads a 5-byte typed header {type:i8, length:i32} from r.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [5]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	return Header{
		Type:   buf[0],
		Length: int32(binary.BigEndian.Uint32(buf[1:5])),
	}, nil
}

// ReadUntypedHeader reads the 4-byte length-only header used by
// StartupMessage and CancelRequest (no leading type byte).
func ReadUntypedHeader(r io.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

// BodyLen returns how many bytes follow the header on the wire: Length
// counts itself (4 bytes) but not the leading type byte.
func (h Header) BodyLen() int {
	n := int(h.Length) - 4
	if n < 0 {
		return 0
	}
	return n
}
