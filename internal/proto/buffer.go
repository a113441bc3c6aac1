// Package proto implements the byte-level codec and message schema for the
// PostgreSQL v3 frontend/backend wire protocol: big-endian integers,
// length-prefixed byte strings, C strings, and the length-backfilled
// message framing every wire message shares.
package proto

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Builder assembles a single wire message, backfilling its length prefix
// once the body is known. Layout: [type:1 if tagged][length:4][body]. The
// length field counts itself and the body, but never the type byte.
type Builder struct {
	buf      bytes.Buffer
	lenAt    int
	err      error
}

// NewBuilder starts a message. typ is 0 for untyped messages (StartupMessage,
// CancelRequest), which carry no leading type byte.
func NewBuilder(typ byte) *Builder {
	b := &Builder{}
	if typ != 0 {
		b.buf.WriteByte(typ)
	}
	b.lenAt = b.buf.Len()
	b.buf.Write([]byte{0, 0, 0, 0})
	return b
}

func (b *Builder) Int8(v int8) *Builder {
	b.buf.WriteByte(byte(v))
	return b
}

func (b *Builder) Int16(v int16) *Builder {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(v))
	b.buf.Write(tmp[:])
	return b
}

func (b *Builder) Int32(v int32) *Builder {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	b.buf.Write(tmp[:])
	return b
}

// Byte writes a single raw byte, used for one-character enum fields like
// the transaction-status byte in ReadyForQuery.
func (b *Builder) Byte(v byte) *Builder {
	b.buf.WriteByte(v)
	return b
}

// Char writes a "char1" field: 0 encodes as an absent char, anything else
// as its first byte.
func (b *Builder) Char(v byte) *Builder {
	return b.Byte(v)
}

// Bytes writes raw bytes with no length prefix (used for fixed-size fields
// and as the last field of a message, e.g. CopyData's payload).
func (b *Builder) Bytes(p []byte) *Builder {
	b.buf.Write(p)
	return b
}

// ByteN writes exactly n bytes, zero-padding or truncating p to fit. Used
// for fixed-width fields such as BackendKeyData's two int32s when built
// generically.
func (b *Builder) ByteN(p []byte, n int) *Builder {
	tmp := make([]byte, n)
	copy(tmp, p)
	b.buf.Write(tmp)
	return b
}

// BytesLP writes an int32-length-prefixed byte string. nil encodes the
// length as -1 (SQL NULL) with no following bytes.
func (b *Builder) BytesLP(p []byte) *Builder {
	if p == nil {
		return b.Int32(-1)
	}
	b.Int32(int32(len(p)))
	b.buf.Write(p)
	return b
}

// CString writes a NUL-terminated string. Embedding a NUL byte in s is a
// caller bug (it would desynchronize the wire) and is latched as an error
// returned from Finish.
func (b *Builder) CString(s string) *Builder {
	if b.err != nil {
		return b
	}
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			b.err = fmt.Errorf("proto: embedded NUL in cstring %q", s)
			return b
		}
	}
	b.buf.WriteString(s)
	b.buf.WriteByte(0)
	return b
}

// Finish backfills the length field and returns the complete message, or
// the first error latched while building it (e.g. an embedded NUL).
func (b *Builder) Finish() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	body := b.buf.Bytes()
	binary.BigEndian.PutUint32(body[b.lenAt:b.lenAt+4], uint32(len(body)-b.lenAt))
	return body, nil
}

// Reader decodes fields sequentially out of one message body, in the order
// the codec for that message type declares them. Errors are latched so
// call sites can chain reads and check Err() once at the end.
type Reader struct {
	buf []byte
	pos int
	err error
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Err() error { return r.err }

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.buf) {
		r.fail(fmt.Errorf("proto: short read: need %d bytes, have %d", n, len(r.buf)-r.pos))
		return false
	}
	return true
}

func (r *Reader) Int8() int8 {
	if !r.need(1) {
		return 0
	}
	v := int8(r.buf[r.pos])
	r.pos++
	return v
}

func (r *Reader) Byte() byte {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.pos]
	r.pos++
	return v
}

func (r *Reader) Int16() int16 {
	if !r.need(2) {
		return 0
	}
	v := int16(binary.BigEndian.Uint16(r.buf[r.pos : r.pos+2]))
	r.pos += 2
	return v
}

func (r *Reader) Int32() int32 {
	if !r.need(4) {
		return 0
	}
	v := int32(binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4]))
	r.pos += 4
	return v
}

// ByteN reads exactly n raw bytes.
func (r *Reader) ByteN(n int) []byte {
	if !r.need(n) {
		return nil
	}
	v := append([]byte(nil), r.buf[r.pos:r.pos+n]...)
	r.pos += n
	return v
}

// BytesLP reads an int32-length-prefixed byte string; -1 decodes as nil.
func (r *Reader) BytesLP() []byte {
	n := r.Int32()
	if r.err != nil {
		return nil
	}
	if n < 0 {
		return nil
	}
	return r.ByteN(int(n))
}

// CString reads a NUL-terminated string.
func (r *Reader) CString() string {
	if r.err != nil {
		return ""
	}
	start := r.pos
	for r.pos < len(r.buf) {
		if r.buf[r.pos] == 0 {
			s := string(r.buf[start:r.pos])
			r.pos++
			return s
		}
		r.pos++
	}
	r.fail(fmt.Errorf("proto: unterminated cstring"))
	return ""
}

// Remainder returns every byte not yet consumed.
func (r *Reader) Remainder() []byte {
	if r.err != nil {
		return nil
	}
	v := r.buf[r.pos:]
	r.pos = len(r.buf)
	return v
}

// Done reports whether every byte has been consumed, used by message
// decoders that want to reject trailing garbage.
func (r *Reader) Done() bool {
	return r.pos >= len(r.buf)
}
