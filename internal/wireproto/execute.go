package wireproto

import (
	"context"
	"fmt"

	"github.com/jkantaria/pglue/internal/proto"
)

// ExecResult is one statement's worth of extended- or simple-query output:
// every row read plus the server's command tag (e.g. "INSERT 0 1").
type ExecResult struct {
	CommandTag string
	Rows       []Row
}

// fastExecute runs st once with params under a single Bind/Execute(0)/Close
// pipeline (spec.md §4.3 "Fast execute": chunk_size == 0, no PortalSuspended
// possible since RowLimit 0 means unlimited). copyIn/copyOut wire up COPY
// IN/OUT should st's query be a COPY statement.
func (c *Conn) fastExecute(ctx context.Context, st *Statement, params []any, copyIn CopySource, copyOut CopySink) (ExecResult, error) {
	values, err := c.serializeParams(st, params)
	if err != nil {
		return ExecResult{}, err
	}
	portal := st.nextPortal()
	ctor := NewRowCtor(st.RowFields)

	return Pipeline(ctx, c, func() error {
		if err := c.encodeAndSend(proto.Bind{
			Portal:    portal,
			Statement: st.Name,
			Params:    values,
		}); err != nil {
			return err
		}
		if err := c.encodeAndSend(proto.Execute{Portal: portal, RowLimit: 0}); err != nil {
			return err
		}
		return c.encodeAndSend(proto.Close{Which: 'P', Name: portal})
	}, func() (ExecResult, error) {
		return c.readExtendedResult(ctor, copyIn, copyOut)
	})
}

// chunkedExecute streams st's rows in bounds of chunkSize per round trip
// (spec.md §4.3 "Chunked execute"): Bind once, then alternate Execute(N)
// with reads, calling onChunk after each PortalSuspended, until
// CommandComplete. Unlike fastExecute this needs several read/write
// round trips against one open portal, so it manages wlock/rlock directly
// rather than going through the single-shot Pipeline helper.
func (c *Conn) chunkedExecute(ctx context.Context, st *Statement, params []any, chunkSize int32, onChunk func(rows []Row) error) (ExecResult, error) {
	if chunkSize <= 0 {
		return ExecResult{}, wireErr("chunked execute", fmt.Errorf("chunk size must be positive, got %d", chunkSize))
	}
	values, err := c.serializeParams(st, params)
	if err != nil {
		return ExecResult{}, err
	}
	portal := st.nextPortal()
	ctor := NewRowCtor(st.RowFields)

	select {
	case <-c.wlock:
	case <-c.done:
		return ExecResult{}, c.closeError()
	}
	select {
	case <-c.rlock:
	case <-c.done:
		c.wlock <- struct{}{}
		return ExecResult{}, c.closeError()
	}
	defer func() {
		c.wlock <- struct{}{}
		c.rlock <- struct{}{}
	}()

	result, err := func() (ExecResult, error) {
		if err := c.encodeAndSend(proto.Bind{Portal: portal, Statement: st.Name, Params: values}); err != nil {
			return ExecResult{}, err
		}
		if err := c.encodeAndSend(proto.Flush{}); err != nil {
			return ExecResult{}, err
		}
		if _, err := expect[proto.BindComplete](c); err != nil {
			return ExecResult{}, err
		}

		var res ExecResult
		for {
			if err := c.encodeAndSend(proto.Execute{Portal: portal, RowLimit: chunkSize}); err != nil {
				return res, err
			}
			if err := c.encodeAndSend(proto.Flush{}); err != nil {
				return res, err
			}

			var chunk []Row
			done := false
		readChunk:
			for {
				msg, err := c.recv()
				if err != nil {
					return res, err
				}
				switch m := msg.(type) {
				case proto.DataRow:
					row, err := ctor.Build(m.Columns)
					if err != nil {
						return res, err
					}
					chunk = append(chunk, row)
				case proto.PortalSuspended:
					break readChunk
				case proto.CommandComplete:
					res.CommandTag = m.Tag
					done = true
					break readChunk
				case proto.EmptyQueryResponse:
					done = true
					break readChunk
				case proto.ErrorResponse:
					return res, NewPgError(m.Fields)
				default:
					return res, wireErr("chunked execute", fmt.Errorf("unexpected message %T", m))
				}
			}
			if len(chunk) > 0 {
				res.Rows = append(res.Rows, chunk...)
				if onChunk != nil {
					if err := onChunk(chunk); err != nil {
						return res, err
					}
				}
			}
			if done {
				return res, nil
			}
		}
	}()

	if err := c.encodeAndSend(proto.Close{Which: 'P', Name: portal}); err != nil {
		if err2 := c.send(mustEncode(proto.Sync{})); err2 != nil && err == nil {
			err = err2
		}
		_ = c.drainToReadyForQuery()
		return result, err
	}
	if sErr := c.send(mustEncode(proto.Sync{})); sErr != nil {
		_ = c.drainToReadyForQuery()
		if err == nil {
			err = sErr
		}
		return result, err
	}
	if _, cErr := expect[proto.CloseComplete](c); cErr != nil && err == nil {
		err = cErr
	}
	if dErr := c.drainToReadyForQuery(); dErr != nil && err == nil {
		err = dErr
	}
	return result, err
}

// readExtendedResult is the extended-protocol read_rows loop shared by
// fastExecute: BindComplete, then rows/CommandComplete/COPY handoff/error
// (spec.md §4.3 "read_rows loop").
func (c *Conn) readExtendedResult(ctor *RowCtor, copyIn CopySource, copyOut CopySink) (ExecResult, error) {
	var res ExecResult
	for {
		msg, err := c.recv()
		if err != nil {
			return res, err
		}
		switch m := msg.(type) {
		case proto.BindComplete:
			continue
		case proto.DataRow:
			row, err := ctor.Build(m.Columns)
			if err != nil {
				return res, err
			}
			res.Rows = append(res.Rows, row)
		case proto.CommandComplete:
			res.CommandTag = m.Tag
			continue
		case proto.EmptyQueryResponse:
			continue
		case proto.CloseComplete:
			return res, nil
		case proto.CopyResponse:
			if m.Tag == proto.TagCopyInResponse {
				if err := c.writeCopyIn(copyIn); err != nil {
					return res, err
				}
				continue
			}
			if err := c.readCopyOut(copyOut); err != nil {
				return res, err
			}
			continue
		case proto.ErrorResponse:
			return res, NewPgError(m.Fields)
		default:
			return res, wireErr("execute", fmt.Errorf("unexpected message %T", m))
		}
	}
}

// simpleQuery runs sql (possibly several semicolon-separated statements)
// via the simple-query protocol, collecting one ExecResult per statement
// (spec.md §4.3 "Simple query").
func (c *Conn) simpleQuery(ctx context.Context, sql string, copyOut CopySink) ([]ExecResult, error) {
	var results []ExecResult
	_, err := PipelineSimple(ctx, c, func() error {
		return c.encodeAndSend(proto.Query{SQL: sql})
	}, func() (struct{}, error) {
		return struct{}{}, c.drainSimpleQuery(&results, copyOut)
	})
	return results, err
}

// drainSimpleQuery consumes one simple-query response series up to and
// including its terminating ReadyForQuery (spec.md §4.3 "Simple query"):
// any number of RowDescription/DataRow*/CommandComplete groups, in order.
// Unlike readExtendedResult it must consume ReadyForQuery itself, since
// PipelineSimple sends no trailing Sync and so no second one is coming.
// results may be nil to discard row data (callers like Begin/Listen that
// only care about success/failure).
func (c *Conn) drainSimpleQuery(results *[]ExecResult, copyOut CopySink) error {
	var cur ExecResult
	var ctor *RowCtor
	var pending error
	for {
		msg, err := c.recv()
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case proto.RowDescription:
			cur = ExecResult{}
			ctor = NewRowCtor(toFieldSpecs(c, m))
		case proto.DataRow:
			if ctor == nil {
				return wireErr("simple query", fmt.Errorf("DataRow with no preceding RowDescription"))
			}
			row, err := ctor.Build(m.Columns)
			if err != nil {
				return err
			}
			cur.Rows = append(cur.Rows, row)
		case proto.CommandComplete:
			cur.CommandTag = m.Tag
			if results != nil {
				*results = append(*results, cur)
			}
			cur = ExecResult{}
			ctor = nil
		case proto.EmptyQueryResponse:
			if results != nil {
				*results = append(*results, ExecResult{})
			}
		case proto.CopyResponse:
			if m.Tag == proto.TagCopyInResponse {
				return wireErr("simple query", fmt.Errorf("COPY IN is not supported via the simple query protocol"))
			}
			if err := c.readCopyOut(copyOut); err != nil {
				return err
			}
		case proto.ErrorResponse:
			// Latch the error and keep reading up to ReadyForQuery so
			// the connection stays in step for the next pipeline.
			if pending == nil {
				pending = NewPgError(m.Fields)
			}
		case proto.ReadyForQuery:
			c.setTxStatus(m.TxStatus)
			return pending
		default:
			return wireErr("simple query", fmt.Errorf("unexpected message %T", m))
		}
	}
}
