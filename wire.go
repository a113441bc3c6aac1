package pglue

import (
	"context"
	"log/slog"

	"github.com/jkantaria/pglue/fragment"
	"github.com/jkantaria/pglue/internal/wireproto"
)

// Wire is a single connection: the public facade over internal/wireproto's
// Conn, surfacing query/begin/listen/notify/params/events/dispose per
// spec.md §6. Reconnect (if configured) is transparent to callers: Wire
// always delegates to whatever Conn its Supervisor currently considers
// live.
type Wire struct {
	sup      *wireproto.Supervisor
	channels *wireproto.ChannelRegistry
	events   *eventRegistry
}

// Connect dials a new Wire per cfg, performing authentication before
// returning (spec.md §4.3 "Connect/reconnect").
func Connect(ctx context.Context, cfg *ConnConfig) (*Wire, error) {
	events := newEventRegistry()
	channels := wireproto.NewChannelRegistry()
	sup := wireproto.NewSupervisor(cfg.opt, events.toHooks(), cfg.codecs, channels)
	if err := sup.Connect(ctx); err != nil {
		return nil, err
	}
	return &Wire{sup: sup, channels: channels, events: events}, nil
}

// conn returns the currently live Conn, or ErrClosed if the wire (or its
// current incarnation, mid-reconnect) is unavailable.
func (w *Wire) conn() (*wireproto.Conn, error) {
	c := w.sup.Current()
	if c == nil || c.Closed() {
		return nil, ErrClosed
	}
	return c, nil
}

// Query builds a lazy, re-runnable query from a composed SQL fragment
// (spec.md §4.4). Nothing runs on the wire until a terminal method
// (First/FirstOr/Collect/Execute/Count/Each) is called.
func (w *Wire) Query(frag fragment.Fragment) *Query {
	return &Query{wire: w, frag: frag}
}

// QuerySQL builds a query from raw SQL text with no parameters, run via
// the simple-query protocol by default (spec.md §4.3 "Simple query") —
// the entry point for multi-statement scripts.
func (w *Wire) QuerySQL(sql string) *Query {
	return &Query{wire: w, sql: sql, simple: true}
}

// Begin pushes a new transaction frame (spec.md §4.3 "Transactions").
func (w *Wire) Begin(ctx context.Context) (*Tx, error) {
	c, err := w.conn()
	if err != nil {
		return nil, err
	}
	sp, err := c.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{wire: w, sp: sp}, nil
}

// BeginFunc runs fn inside a transaction, committing on success and
// rolling back (and propagating fn's error) on failure.
func (w *Wire) BeginFunc(ctx context.Context, fn func(*Tx) error) error {
	tx, err := w.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Listen registers handler under channel name, issuing LISTEN on first
// registration (spec.md §4.3 "Channels").
func (w *Wire) Listen(ctx context.Context, name string, handler wireproto.NotifyHandler) error {
	c, err := w.conn()
	if err != nil {
		return err
	}
	return c.Listen(ctx, name, handler)
}

// Unlisten removes name from the registry and issues UNLISTEN.
func (w *Wire) Unlisten(ctx context.Context, name string) error {
	c, err := w.conn()
	if err != nil {
		return err
	}
	return c.Unlisten(ctx, name)
}

// Notify sends a NOTIFY to channel with payload via pg_notify.
func (w *Wire) Notify(ctx context.Context, channel, payload string) error {
	c, err := w.conn()
	if err != nil {
		return err
	}
	return c.Notify(ctx, channel, payload)
}

// Params returns a snapshot of the current server-parameters map.
func (w *Wire) Params() map[string]string {
	c, err := w.conn()
	if err != nil {
		return nil
	}
	return c.Params()
}

// Close tears the wire down: no further reconnect attempts, socket
// closed, a close event emitted.
func (w *Wire) Close() error {
	w.sup.Close()
	return nil
}

// OnLog registers a structured-log handler.
func (w *Wire) OnLog(fn func(level slog.Level, msg string, args ...any)) { w.events.onLog(fn) }

// OnConnect registers a handler fired after every successful
// connect/reconnect.
func (w *Wire) OnConnect(fn func()) { w.events.onConnect(fn) }

// OnNotice registers a handler for server NoticeResponse messages.
func (w *Wire) OnNotice(fn func(Notice)) { w.events.onNotice(fn) }

// OnNotify registers a handler for every NOTIFY delivery on this wire,
// called in addition to any Listen subscription for that channel (e.g.
// for observability).
func (w *Wire) OnNotify(fn func(channel, payload string, pid int32)) { w.events.onNotify(fn) }

// OnParameter registers a handler for server ParameterStatus updates.
func (w *Wire) OnParameter(fn func(name, value string, prev *string)) { w.events.onParameter(fn) }

// OnClose registers a handler fired when the wire closes, deliberately
// or not.
func (w *Wire) OnClose(fn func(error)) { w.events.onClose(fn) }
