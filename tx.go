package pglue

import (
	"context"

	"github.com/jkantaria/pglue/fragment"
	"github.com/jkantaria/pglue/internal/wireproto"
)

// Tx is a transaction handle: an entry in its wire's nested-transaction
// stack (spec.md §3 "Transaction"). Nesting is via SAVEPOINTs: calling
// Begin again on the same Wire (or through Tx.Begin, equivalently) pushes
// another frame onto the same underlying stack.
type Tx struct {
	wire *Wire
	sp   *wireproto.Savepoint
}

// Query builds a query that runs on this transaction's wire.
func (tx *Tx) Query(frag fragment.Fragment) *Query {
	return &Query{wire: tx.wire, frag: frag}
}

// QuerySQL builds a simple-protocol query that runs on this
// transaction's wire.
func (tx *Tx) QuerySQL(sql string) *Query {
	return &Query{wire: tx.wire, sql: sql, simple: true}
}

// Begin pushes a nested SAVEPOINT frame on the same wire.
func (tx *Tx) Begin(ctx context.Context) (*Tx, error) {
	return tx.wire.Begin(ctx)
}

// Commit releases this frame: COMMIT at stack depth 0, RELEASE
// __pglue_tx otherwise.
func (tx *Tx) Commit(ctx context.Context) error {
	return tx.sp.Commit(ctx)
}

// Rollback unwinds this frame: ROLLBACK at stack depth 0, ROLLBACK TO
// __pglue_tx; RELEASE __pglue_tx otherwise.
func (tx *Tx) Rollback(ctx context.Context) error {
	return tx.sp.Rollback(ctx)
}

// Open reports whether this frame is still present in the wire's
// transaction stack.
func (tx *Tx) Open() bool { return tx.sp.Open() }

// DisposeRollback implements scope-exit disposal: rolls back iff still
// open (spec.md §4.3, §7 "Transaction auto-dispose").
func (tx *Tx) DisposeRollback(ctx context.Context) error {
	return tx.sp.DisposeRollback(ctx)
}
