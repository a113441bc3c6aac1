package pglue

import (
	"context"
	"sync"
	"time"

	"github.com/jkantaria/pglue/fragment"
)

// PoolConfig configures a Pool's sizing and idle-reclamation behavior
// (spec.md §4.5, plus the [SUPPLEMENT] idle-reaping and pre-warming
// additions grounded on the teacher's TenantPool.reapLoop/warmUp).
type PoolConfig struct {
	// MaxConnections bounds the counting semaphore gating wire
	// acquisition. Defaults to 10 if zero.
	MaxConnections int

	// MinConnections pre-warms the pool with this many wires at
	// construction time ([SUPPLEMENT] 3, grounded on TenantPool.warmUp).
	MinConnections int

	// IdleTimeout, if non-zero, arms a reaping loop that closes free
	// wires idle longer than this, down to MinConnections
	// ([SUPPLEMENT] 2, grounded on TenantPool.reapLoop/reapIdle,
	// resolving spec.md §9 Open Question (b)).
	IdleTimeout time.Duration
}

const reapInterval = 30 * time.Second

// Pool is a bounded set of wires with borrow/release semantics
// (spec.md §4.5): a counting semaphore, a free list, and an "all
// wires" set, each wire subscribed to its own close event so a dead
// wire is forgotten rather than handed out again.
type Pool struct {
	connCfg *ConnConfig
	minConn int

	sem chan struct{}

	mu     sync.Mutex
	all    map[*Wire]time.Time // value: time the wire was last released (zero if borrowed)
	free   []*Wire
	closed bool

	reapStop chan struct{}
}

// NewPool dials MinConnections wires up front (if any) and returns a
// Pool ready to Acquire from.
func NewPool(ctx context.Context, connCfg *ConnConfig, poolCfg PoolConfig) (*Pool, error) {
	maxConn := poolCfg.MaxConnections
	if maxConn <= 0 {
		maxConn = 10
	}
	p := &Pool{
		connCfg: connCfg,
		minConn: poolCfg.MinConnections,
		sem:     make(chan struct{}, maxConn),
		all:     make(map[*Wire]time.Time),
	}
	for i := 0; i < maxConn; i++ {
		p.sem <- struct{}{}
	}

	for i := 0; i < poolCfg.MinConnections; i++ {
		w, err := p.dial(ctx)
		if err != nil {
			p.Close()
			return nil, err
		}
		// Warmed wires sit in free without taking a permit, like released ones.
		p.mu.Lock()
		p.all[w] = time.Now()
		p.free = append(p.free, w)
		p.mu.Unlock()
	}

	if poolCfg.IdleTimeout > 0 {
		p.reapStop = make(chan struct{})
		go p.reapLoop(poolCfg.IdleTimeout)
	}
	return p, nil
}

func (p *Pool) dial(ctx context.Context) (*Wire, error) {
	w, err := Connect(ctx, p.connCfg)
	if err != nil {
		return nil, err
	}
	w.OnClose(func(error) { p.forget(w) })
	return w, nil
}

// Acquire takes one semaphore permit and returns a free wire, dialing a
// new one if none is idle.
func (p *Pool) Acquire(ctx context.Context) (*Wire, error) {
	select {
	case <-p.sem:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem <- struct{}{}
		return nil, ErrClosed
	}
	if n := len(p.free); n > 0 {
		w := p.free[n-1]
		p.free = p.free[:n-1]
		p.all[w] = time.Time{}
		p.mu.Unlock()
		return w, nil
	}
	p.mu.Unlock()

	w, err := p.dial(ctx)
	if err != nil {
		p.sem <- struct{}{}
		return nil, err
	}
	p.mu.Lock()
	p.all[w] = time.Time{}
	p.mu.Unlock()
	return w, nil
}

// Release returns w to the free list if it's still tracked (spec.md
// §4.5 "release"). Releasing a wire not currently borrowed from this
// pool, or already forgotten, is a no-op.
func (p *Pool) Release(w *Wire) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.all[w]; !ok {
		return
	}
	for _, f := range p.free {
		if f == w {
			return
		}
	}
	p.free = append(p.free, w)
	p.all[w] = time.Now()
	p.sem <- struct{}{}
}

// forget removes w from the pool entirely (spec.md §4.5 "forget"),
// called from w's own close event. If w was borrowed (not in free) its
// permit is returned since no Release is coming.
func (p *Pool) forget(w *Wire) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.all[w]; !ok {
		return
	}
	delete(p.all, w)
	for i, f := range p.free {
		if f == w {
			p.free = append(p.free[:i], p.free[i+1:]...)
			return
		}
	}
	select {
	case p.sem <- struct{}{}:
	default:
	}
}

func (p *Pool) reapLoop(idleTimeout time.Duration) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.reapIdle(idleTimeout)
		case <-p.reapStop:
			return
		}
	}
}

func (p *Pool) reapIdle(idleTimeout time.Duration) {
	p.mu.Lock()
	now := time.Now()
	survivors := p.free[:0:0]
	var toClose []*Wire
	for _, w := range p.free {
		if len(p.all) <= p.minConn {
			survivors = append(survivors, w)
			continue
		}
		since := p.all[w]
		if !since.IsZero() && now.Sub(since) > idleTimeout {
			delete(p.all, w)
			toClose = append(toClose, w)
			continue
		}
		survivors = append(survivors, w)
	}
	p.free = survivors
	p.mu.Unlock()

	for _, w := range toClose {
		w.Close()
	}
}

// Query builds a query that acquires a wire for the duration of its
// terminal method (Each/Collect/Execute/Count/First) and releases it
// on completion (spec.md §4.5 "the pool's query(fragment) is a
// convenience that acquires on each iteration").
func (p *Pool) Query(frag fragment.Fragment) *Query {
	return &Query{pool: p, frag: frag}
}

// QuerySQL builds a simple-protocol query against a pool-acquired wire.
func (p *Pool) QuerySQL(sql string) *Query {
	return &Query{pool: p, sql: sql, simple: true}
}

// Begin acquires a wire and opens a transaction on it; the wire is
// released on Commit or Rollback.
func (p *Pool) Begin(ctx context.Context) (*PoolTx, error) {
	w, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := w.Begin(ctx)
	if err != nil {
		p.Release(w)
		return nil, err
	}
	return &PoolTx{pool: p, wire: w, tx: tx}, nil
}

// BeginFunc acquires a wire, runs fn inside a transaction on it, and
// releases the wire after committing (on success) or rolling back (on
// fn's error).
func (p *Pool) BeginFunc(ctx context.Context, fn func(*PoolTx) error) error {
	tx, err := p.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Close closes every pooled wire and stops the reap loop, if any.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	wires := make([]*Wire, 0, len(p.all))
	for w := range p.all {
		wires = append(wires, w)
	}
	p.all = make(map[*Wire]time.Time)
	p.free = nil
	p.mu.Unlock()

	if p.reapStop != nil {
		close(p.reapStop)
	}
	for _, w := range wires {
		w.Close()
	}
}

// PoolTx is a transaction opened against a pool-acquired wire; the wire
// is released back to the pool on Commit or Rollback.
type PoolTx struct {
	pool *Pool
	wire *Wire
	tx   *Tx
}

// Query builds a query that runs on this transaction's wire (not
// reacquired from the pool).
func (pt *PoolTx) Query(frag fragment.Fragment) *Query {
	return pt.tx.Query(frag)
}

// QuerySQL builds a simple-protocol query on this transaction's wire.
func (pt *PoolTx) QuerySQL(sql string) *Query {
	return pt.tx.QuerySQL(sql)
}

// Commit commits the transaction and releases the wire back to the
// pool regardless of the commit's outcome.
func (pt *PoolTx) Commit(ctx context.Context) error {
	err := pt.tx.Commit(ctx)
	pt.pool.Release(pt.wire)
	return err
}

// Rollback rolls the transaction back and releases the wire back to the
// pool regardless of the rollback's outcome.
func (pt *PoolTx) Rollback(ctx context.Context) error {
	err := pt.tx.Rollback(ctx)
	pt.pool.Release(pt.wire)
	return err
}
