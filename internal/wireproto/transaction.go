package wireproto

import (
	"context"

	"github.com/jkantaria/pglue/internal/proto"
)

// Savepoint is the caller-visible handle returned by Begin: an entry in
// the wire's nested-transaction stack (spec.md §3 "Transaction",
// §4.3 "Transactions (savepoint stack)").
type Savepoint struct {
	conn  *Conn
	entry *txEntry
}

// Begin pushes a new transaction frame: BEGIN if the stack was empty,
// otherwise SAVEPOINT __pglue_tx.
func (c *Conn) Begin(ctx context.Context) (*Savepoint, error) {
	c.mu.Lock()
	depth := len(c.txStack)
	c.mu.Unlock()

	sql := "BEGIN"
	if depth > 0 {
		sql = "SAVEPOINT __pglue_tx"
	}

	_, err := PipelineSimple(ctx, c, func() error {
		return c.encodeAndSend(proto.Query{SQL: sql})
	}, func() (struct{}, error) {
		return struct{}{}, c.drainSimpleQuery(nil, nil)
	})
	if err != nil {
		return nil, err
	}

	entry := &txEntry{tag: sql, depth: depth}
	c.mu.Lock()
	c.txStack = append(c.txStack, *entry)
	idx := len(c.txStack) - 1
	c.mu.Unlock()

	return &Savepoint{conn: c, entry: &c.txStack[idx]}, nil
}

func (c *Conn) indexOf(entry *txEntry) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.txStack {
		if &c.txStack[i] == entry || (c.txStack[i].tag == entry.tag && c.txStack[i].depth == entry.depth) {
			return i, true
		}
	}
	return 0, false
}

// Commit locates sp in the stack, truncates at its index, and issues
// COMMIT (index 0) or RELEASE __pglue_tx (nested).
func (sp *Savepoint) Commit(ctx context.Context) error {
	idx, ok := sp.conn.indexOf(sp.entry)
	if !ok {
		return ErrTransactionNotOpen
	}
	sql := "RELEASE __pglue_tx"
	if idx == 0 {
		sql = "COMMIT"
	}
	_, err := PipelineSimple(ctx, sp.conn, func() error {
		return sp.conn.encodeAndSend(proto.Query{SQL: sql})
	}, func() (struct{}, error) {
		return struct{}{}, sp.conn.drainSimpleQuery(nil, nil)
	})
	sp.conn.mu.Lock()
	sp.conn.txStack = sp.conn.txStack[:idx]
	sp.conn.mu.Unlock()
	return err
}

// Rollback locates sp in the stack, truncates at its index, and issues
// ROLLBACK (index 0) or ROLLBACK TO __pglue_tx; RELEASE __pglue_tx (nested).
func (sp *Savepoint) Rollback(ctx context.Context) error {
	idx, ok := sp.conn.indexOf(sp.entry)
	if !ok {
		return ErrTransactionNotOpen
	}
	sql := "ROLLBACK TO __pglue_tx; RELEASE __pglue_tx"
	if idx == 0 {
		sql = "ROLLBACK"
	}
	_, err := PipelineSimple(ctx, sp.conn, func() error {
		return sp.conn.encodeAndSend(proto.Query{SQL: sql})
	}, func() (struct{}, error) {
		return struct{}{}, sp.conn.drainSimpleQuery(nil, nil)
	})
	sp.conn.mu.Lock()
	sp.conn.txStack = sp.conn.txStack[:idx]
	sp.conn.mu.Unlock()
	return err
}

// Open reports whether sp is still present in the connection's
// transaction stack.
func (sp *Savepoint) Open() bool {
	_, ok := sp.conn.indexOf(sp.entry)
	return ok
}

// DisposeRollback implements scope-exit disposal: rolls back iff still
// open (spec.md §4.3, §7 "Transaction auto-dispose").
func (sp *Savepoint) DisposeRollback(ctx context.Context) error {
	if !sp.Open() {
		return nil
	}
	return sp.Rollback(ctx)
}
