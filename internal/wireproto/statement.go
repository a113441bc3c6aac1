package wireproto

import (
	"context"
	"fmt"

	"github.com/jkantaria/pglue/internal/proto"
)

// Statement is a server-side prepared statement cached client-side by
// exact query text (spec.md §3 "Prepared statement", §4.3 "Prepared-
// statement cache"). ParamTypes/RowFields are populated once Parse
// succeeds; a failed parse leaves no cache entry, so the next call retries.
type Statement struct {
	Name       string
	Query      string
	ParamTypes []int32
	RowFields  []FieldSpec // nil if the statement returns no rows

	portalCounter int32
}

// nextPortal returns the next portal name for this statement:
// "<stmt>_<k>" with k a per-statement monotonic counter (spec.md §3
// "Portal").
func (st *Statement) nextPortal() string {
	st.portalCounter++
	return fmt.Sprintf("%s_%d", st.Name, st.portalCounter)
}

// prepare returns the cached Statement for query, parsing it on first use.
// Parse/Describe run inside their own pipeline so a failure resynchronizes
// the connection the same way query pipelines do.
func (c *Conn) prepare(ctx context.Context, query string) (*Statement, error) {
	c.mu.Lock()
	if st, ok := c.stmtCache[query]; ok {
		c.mu.Unlock()
		return st, nil
	}
	c.stmtCounter++
	name := fmt.Sprintf("__st%d", c.stmtCounter)
	c.mu.Unlock()

	st, err := Pipeline(ctx, c, func() error {
		if err := c.encodeAndSend(proto.Parse{Statement: name, Query: query}); err != nil {
			return err
		}
		return c.encodeAndSend(proto.Describe{Which: 'S', Name: name})
	}, func() (*Statement, error) {
		if _, err := expect[proto.ParseComplete](c); err != nil {
			return nil, err
		}
		pd, err := expect[proto.ParameterDescription](c)
		if err != nil {
			return nil, err
		}
		msg, err := c.recv()
		if err != nil {
			return nil, err
		}
		var fields []FieldSpec
		switch m := msg.(type) {
		case proto.NoData:
			fields = nil
		case proto.RowDescription:
			fields = toFieldSpecs(c, m)
		default:
			return nil, wireErr("prepare", fmt.Errorf("unexpected message %T after ParameterDescription", m))
		}
		return &Statement{Name: name, Query: query, ParamTypes: pd.OIDs, RowFields: fields}, nil
	})
	if err != nil {
		// Parse failed: no memoized future to clear (we never inserted
		// one), so the next call simply retries from scratch.
		return nil, err
	}

	c.mu.Lock()
	c.stmtCache[query] = st
	c.mu.Unlock()
	return st, nil
}

func toFieldSpecs(c *Conn, rd proto.RowDescription) []FieldSpec {
	fields := make([]FieldSpec, len(rd.Fields))
	for i, f := range rd.Fields {
		fields[i] = FieldSpec{Name: f.Name, Codec: c.codecs.Lookup(f.TypeOID)}
	}
	return fields
}

// expect reads the next inbox message and type-asserts it to T, returning
// a wire error naming the mismatch otherwise. ErrorResponse is unwrapped
// into a *PgError so callers don't have to special-case it separately.
func expect[T any](c *Conn) (T, error) {
	var zero T
	msg, err := c.recv()
	if err != nil {
		return zero, err
	}
	if er, ok := msg.(proto.ErrorResponse); ok {
		return zero, NewPgError(er.Fields)
	}
	v, ok := msg.(T)
	if !ok {
		return zero, wireErr("protocol", fmt.Errorf("expected %T, got %T", zero, msg))
	}
	return v, nil
}

// serializeParams formats params using each position's codec (looked up
// by the statement's declared OID, falling back to text), mapping nil to
// a SQL NULL element (spec.md §4.3 "param_serializer").
func (c *Conn) serializeParams(st *Statement, params []any) ([][]byte, error) {
	out := make([][]byte, len(params))
	for i, v := range params {
		var oid int32
		if i < len(st.ParamTypes) {
			oid = st.ParamTypes[i]
		}
		codec := c.codecs.Lookup(oid)
		b, err := codec.Format(v)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}
