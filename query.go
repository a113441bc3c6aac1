package pglue

import (
	"context"
	"errors"
	"io"

	"github.com/jkantaria/pglue/fragment"
	"github.com/jkantaria/pglue/internal/wireproto"
)

// errEarlyStop is never returned to a caller: it unwinds the read loop
// once a terminal method (First, Count via no early stop, etc.) has
// what it needs, and is swallowed before Each returns.
var errEarlyStop = errors.New("pglue: internal early stop")

// errSimpleQueryParams is returned by Query.Execute/Each/etc. when a
// fragment carrying Param values is run under Simple(true): the simple
// query protocol has no parameter placeholders at all.
var errSimpleQueryParams = errors.New("pglue: simple queries take no parameters; use the default extended protocol")

// Query is a lazy, re-runnable handle over one statement (spec.md §4.4
// "Query object"): building it does nothing on the wire. Each builder
// method (Simple/Chunked/Stdin/Stdout/Map/Filter) returns a new Query
// overlaying the option, leaving the receiver untouched, so a Query can
// be built once and safely reused or branched.
type Query struct {
	wire *Wire
	pool *Pool

	frag fragment.Fragment
	sql  string

	simple    bool
	chunkSize int32
	stdin     io.Reader
	stdout    io.Writer

	transforms []func(Row) (Row, bool, error)
}

func (q *Query) clone() *Query {
	cp := *q
	cp.transforms = append([]func(Row) (Row, bool, error){}, q.transforms...)
	return &cp
}

// Simple switches between the extended (prepare/bind/execute) protocol
// and the simple multi-statement protocol.
func (q *Query) Simple(b bool) *Query {
	cp := q.clone()
	cp.simple = b
	return cp
}

// Chunked streams rows in bounds of n per round trip instead of fetching
// the full result set in one shot (spec.md §4.3 "Chunked execute").
// Ignored when Simple(true) is also set, since the simple protocol has
// no row-limit concept.
func (q *Query) Chunked(n int32) *Query {
	cp := q.clone()
	cp.chunkSize = n
	return cp
}

// Stdin supplies the source for a COPY IN statement's input stream.
func (q *Query) Stdin(r io.Reader) *Query {
	cp := q.clone()
	cp.stdin = r
	return cp
}

// Stdout supplies the sink for a COPY OUT statement's output stream;
// bytes are discarded if never set.
func (q *Query) Stdout(w io.Writer) *Query {
	cp := q.clone()
	cp.stdout = w
	return cp
}

// Map appends a per-row transform applied lazily as rows are consumed,
// preserving chunk structure (spec.md §4.4).
func (q *Query) Map(fn func(Row) (Row, error)) *Query {
	cp := q.clone()
	cp.transforms = append(cp.transforms, func(r Row) (Row, bool, error) {
		nr, err := fn(r)
		return nr, true, err
	})
	return cp
}

// Filter appends a per-row predicate; rows it rejects never reach
// downstream transforms or the terminal method's callback.
func (q *Query) Filter(pred func(Row) bool) *Query {
	cp := q.clone()
	cp.transforms = append(cp.transforms, func(r Row) (Row, bool, error) {
		return r, pred(r), nil
	})
	return cp
}

func (q *Query) applyTransforms(r Row) (Row, bool, error) {
	var err error
	keep := true
	for _, t := range q.transforms {
		if !keep {
			break
		}
		r, keep, err = t(r)
		if err != nil {
			return Row{}, false, err
		}
	}
	return r, keep, nil
}

// Each drives the query to completion, invoking fn for every row that
// survives Map/Filter, and returns the server's final command tag.
// Returning an error from fn stops further rows from reaching fn (for
// Chunked queries this also stops the server round trips; for a
// fast-execute or simple query the rows were already fully fetched, so
// it only stops local delivery).
func (q *Query) Each(ctx context.Context, fn func(Row) error) (string, error) {
	var tag string
	runErr := q.run(ctx, func(rows []Row) error {
		for _, r := range rows {
			rr, keep, err := q.applyTransforms(r)
			if err != nil {
				return err
			}
			if !keep {
				continue
			}
			if err := fn(rr); err != nil {
				return err
			}
		}
		return nil
	}, &tag)
	if errors.Is(runErr, errEarlyStop) {
		return tag, nil
	}
	return tag, runErr
}

// Collect gathers every surviving row into a slice alongside the final
// command tag.
func (q *Query) Collect(ctx context.Context) ([]Row, string, error) {
	var rows []Row
	tag, err := q.Each(ctx, func(r Row) error {
		rows = append(rows, r)
		return nil
	})
	return rows, tag, err
}

// Execute drains the query for its side effects and returns the final
// command tag, discarding rows.
func (q *Query) Execute(ctx context.Context) (string, error) {
	return q.Each(ctx, func(Row) error { return nil })
}

// Count returns the number of surviving rows.
func (q *Query) Count(ctx context.Context) (int, error) {
	n := 0
	_, err := q.Each(ctx, func(Row) error {
		n++
		return nil
	})
	return n, err
}

// First returns the first surviving row, or ErrNoRows if the result set
// is empty (spec.md §7: "first() on an empty result is a type error").
// Unless the caller already set chunking or the simple protocol, First
// implicitly chunks by 1 so only as much of the result set as necessary
// reaches the client.
func (q *Query) First(ctx context.Context) (Row, error) {
	qq := q
	if !q.simple && q.chunkSize == 0 {
		qq = q.Chunked(1)
	}
	var found Row
	var ok bool
	_, err := qq.Each(ctx, func(r Row) error {
		found = r
		ok = true
		return errEarlyStop
	})
	if err != nil {
		return Row{}, err
	}
	if !ok {
		return Row{}, ErrNoRows
	}
	return found, nil
}

// FirstOr returns the first surviving row, or def if the result set is
// empty.
func (q *Query) FirstOr(ctx context.Context, def Row) (Row, error) {
	row, err := q.First(ctx)
	if errors.Is(err, ErrNoRows) {
		return def, nil
	}
	return row, err
}

// run dispatches to the simple, fast-execute, or chunked-execute path
// and feeds every chunk of rows to onRows, recording the final command
// tag into *tag.
func (q *Query) run(ctx context.Context, onRows func([]Row) error, tag *string) error {
	var conn *wireproto.Conn
	if q.pool != nil {
		w, err := q.pool.Acquire(ctx)
		if err != nil {
			return err
		}
		defer q.pool.Release(w)
		c, err := w.conn()
		if err != nil {
			return err
		}
		conn = c
	} else {
		c, err := q.wire.conn()
		if err != nil {
			return err
		}
		conn = c
	}

	if q.simple {
		sql := q.sql
		if sql == "" && q.frag != nil {
			text, params := fragment.Format(q.frag)
			if len(params) > 0 {
				return errSimpleQueryParams
			}
			sql = text
		}
		results, err := conn.SimpleQuery(ctx, sql, q.stdout)
		for _, r := range results {
			*tag = r.CommandTag
			if len(r.Rows) > 0 {
				if cbErr := onRows(r.Rows); cbErr != nil {
					return cbErr
				}
			}
		}
		return err
	}

	var text string
	var params []any
	if q.frag != nil {
		text, params = fragment.Format(q.frag)
	} else {
		text = q.sql
	}

	st, err := conn.Prepare(ctx, text)
	if err != nil {
		return err
	}

	if q.chunkSize > 0 {
		res, err := conn.ChunkedExecute(ctx, st, params, q.chunkSize, func(rows []wireproto.Row) error {
			return onRows(rows)
		})
		*tag = res.CommandTag
		return err
	}

	res, err := conn.FastExecute(ctx, st, params, q.stdin, q.stdout)
	*tag = res.CommandTag
	if err != nil {
		return err
	}
	if len(res.Rows) > 0 {
		return onRows(res.Rows)
	}
	return nil
}
