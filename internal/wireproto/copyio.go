package wireproto

import (
	"bufio"
	"fmt"
	"io"

	"github.com/jkantaria/pglue/internal/proto"
)

// CopySource supplies the bytes for a COPY IN stream. A plain io.Reader
// satisfies this; writeCopyIn wraps it to chunk reads into CopyData
// messages.
type CopySource = io.Reader

// writeCopyIn iterates src, wrapping each chunk in CopyData, ending with
// CopyDone on clean EOF or CopyFail{cause} on a read error (spec.md §4.3
// "COPY plumbing"). Called from inside a pipeline's write closure, so it
// returns an error rather than sending Sync itself.
func (c *Conn) writeCopyIn(src CopySource) error {
	if src == nil {
		return nil
	}
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if sendErr := c.encodeAndSend(proto.CopyData{Data: append([]byte(nil), buf[:n]...)}); sendErr != nil {
				return sendErr
			}
		}
		if err == io.EOF {
			return c.encodeAndSend(proto.CopyDone{})
		}
		if err != nil {
			_ = c.encodeAndSend(proto.CopyFail{Reason: err.Error()})
			return err
		}
	}
}

// CopySink receives the bytes of a COPY OUT stream. A plain io.Writer
// satisfies this.
type CopySink = io.Writer

// readCopyOut reads CopyData payloads into sink (or discards them if
// sink is nil) until CopyDone or CommandComplete (the walsender path,
// spec.md §4.3).
func (c *Conn) readCopyOut(sink CopySink) error {
	var w io.Writer = io.Discard
	if sink != nil {
		w = sink
	}
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	for {
		msg, err := c.recv()
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case proto.CopyData:
			if _, err := bw.Write(m.Data); err != nil {
				return err
			}
		case proto.CopyDone:
			return bw.Flush()
		case proto.CommandComplete:
			return bw.Flush()
		case proto.ErrorResponse:
			return NewPgError(m.Fields)
		default:
			// Unexpected message mid-COPY-OUT: surface as a protocol
			// error rather than silently dropping it.
			return wireErr("copy out", fmt.Errorf("unexpected message %T during COPY OUT", m))
		}
	}
}
