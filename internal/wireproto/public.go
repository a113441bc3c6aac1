package wireproto

import "context"

// Prepare exposes prepare for callers outside this package (the pglue
// root package's Query implementation).
func (c *Conn) Prepare(ctx context.Context, query string) (*Statement, error) {
	return c.prepare(ctx, query)
}

// FastExecute exposes fastExecute.
func (c *Conn) FastExecute(ctx context.Context, st *Statement, params []any, copyIn CopySource, copyOut CopySink) (ExecResult, error) {
	return c.fastExecute(ctx, st, params, copyIn, copyOut)
}

// ChunkedExecute exposes chunkedExecute.
func (c *Conn) ChunkedExecute(ctx context.Context, st *Statement, params []any, chunkSize int32, onChunk func(rows []Row) error) (ExecResult, error) {
	return c.chunkedExecute(ctx, st, params, chunkSize, onChunk)
}

// SimpleQuery exposes simpleQuery.
func (c *Conn) SimpleQuery(ctx context.Context, sql string, copyOut CopySink) ([]ExecResult, error) {
	return c.simpleQuery(ctx, sql, copyOut)
}
