// Package wireproto implements the per-connection wire engine: the
// reader/writer tasks, pipelining locks, prepared-statement cache,
// transaction stack, channel registry, and COPY plumbing described in
// spec.md §4.3 ("Wire engine").
package wireproto

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/jkantaria/pglue/codec"
	"github.com/jkantaria/pglue/internal/proto"
)

// Hooks receives the asynchronous/lifecycle events a Conn emits, the
// idiomatic-Go replacement for the source's EventEmitter surface
// (spec.md §6 "events log/connect/notice/notify/parameter/close").
type Hooks struct {
	Log      func(level slog.Level, msg string, args ...any)
	Connect  func()
	Notice   func(fields map[byte]string)
	Notify   func(channel, payload string, pid int32)
	Parameter func(name, value string, prev *string)
	Close    func(err error)
}

func (h *Hooks) log(level slog.Level, msg string, args ...any) {
	if h != nil && h.Log != nil {
		h.Log(level, msg, args...)
	}
}

// txEntry is one frame of the nested-transaction savepoint stack
// (spec.md §3 "Transaction").
type txEntry struct {
	tag   string
	depth int
}

// Conn is one wire: a single socket multiplexing the asynchronous
// message stream, an ordered sequence of pipelines, and COPY byte
// streams. Exactly one reader task and one writer task exist per open
// Conn (spec.md §3 invariant).
type Conn struct {
	opt    Options
	hooks  *Hooks
	codecs *codec.Registry

	netConn net.Conn
	w       *bufio.Writer

	// wlock/wlock/rlock are capacity-1 cooperative FIFO locks (spec.md
	// §4.3, §9 "Cooperative locks"): acquire by receiving, release by
	// sending back.
	wlock chan struct{}
	rlock chan struct{}

	inbox  chan any // decoded backend messages, post async-filter
	outbox chan []byte

	readerDone chan struct{}
	writerDone chan struct{}
	closeErr   atomic.Value // error

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	mu           sync.Mutex
	serverParams map[string]string
	paramOrder   []string
	txStatus     byte
	txStack      []txEntry

	stmtCache   map[string]*Statement
	stmtCounter int

	channels *ChannelRegistry

	backendPID int32
	backendKey int32
}

// Dial opens a new Conn: socket connect, spawns reader/writer, and runs
// authentication before the Conn is returned, so no pipeline can use it
// until authentication has finished (spec.md §4.3 "Connect/reconnect").
// The wlock/rlock are not taken during authentication.
func Dial(ctx context.Context, opt Options, hooks *Hooks, codecs *codec.Registry, channels *ChannelRegistry) (*Conn, error) {
	nc, err := dial(ctx, opt)
	if err != nil {
		return nil, wireErr("connect", err)
	}
	return newConn(ctx, nc, opt, hooks, codecs, channels)
}

// newConn runs the handshake over an already-established net.Conn,
// factored out of Dial so tests can hand it a net.Pipe() half driven by
// a scripted fake backend instead of a real socket.
func newConn(ctx context.Context, nc net.Conn, opt Options, hooks *Hooks, codecs *codec.Registry, channels *ChannelRegistry) (*Conn, error) {
	c := &Conn{
		opt:          opt,
		hooks:        hooks,
		codecs:       codecs,
		netConn:      nc,
		w:            bufio.NewWriter(nc),
		wlock:        make(chan struct{}, 1),
		rlock:        make(chan struct{}, 1),
		inbox:        make(chan any, 64),
		outbox:       make(chan []byte, 64),
		readerDone:   make(chan struct{}),
		writerDone:   make(chan struct{}),
		done:         make(chan struct{}),
		serverParams: make(map[string]string),
		stmtCache:    make(map[string]*Statement),
		txStatus:     'I',
		channels:     channels,
	}
	c.wlock <- struct{}{}
	c.rlock <- struct{}{}

	go c.readLoop()
	go c.writeLoop()

	if err := c.authenticate(ctx); err != nil {
		c.Close(err)
		return nil, err
	}

	if c.hooks != nil && c.hooks.Connect != nil {
		c.hooks.Connect()
	}
	return c, nil
}

// readLoop frames incoming bytes, applies the asynchronous-message
// filter inline, and pushes everything else to inbox (spec.md §4.3).
func (c *Conn) readLoop() {
	defer close(c.readerDone)
	r := bufio.NewReader(c.netConn)
	for {
		hdr, err := proto.ReadHeader(r)
		if err != nil {
			c.fail(fmt.Errorf("reading message header: %w", err))
			return
		}
		body := make([]byte, hdr.BodyLen())
		if len(body) > 0 {
			if _, err := readFull(r, body); err != nil {
				c.fail(fmt.Errorf("reading message body: %w", err))
				return
			}
		}
		msg, err := proto.DecodeBackend(hdr.Type, body)
		if err != nil {
			c.fail(fmt.Errorf("decoding message %q: %w", hdr.Type, err))
			return
		}
		if c.filterAsync(msg) {
			continue
		}
		select {
		case c.inbox <- msg:
		case <-c.done:
			return
		}
	}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// filterAsync handles NoticeResponse/ParameterStatus/NotificationResponse
// inline and reports whether msg was consumed (spec.md §4.3 "Asynchronous
// message filter").
func (c *Conn) filterAsync(msg any) bool {
	switch m := msg.(type) {
	case proto.NoticeResponse:
		if c.hooks != nil && c.hooks.Notice != nil {
			c.hooks.Notice(m.Fields)
		}
		c.hooks.log(noticeLevel(m.Fields), "postgres notice", "message", m.Fields[byte('M')])
		return true
	case proto.ParameterStatus:
		c.mu.Lock()
		prevVal, existed := c.serverParams[m.Name]
		if !existed {
			c.paramOrder = append(c.paramOrder, m.Name)
		}
		c.serverParams[m.Name] = m.Value
		c.mu.Unlock()
		if c.hooks != nil && c.hooks.Parameter != nil {
			var prev *string
			if existed {
				prev = &prevVal
			}
			c.hooks.Parameter(m.Name, m.Value, prev)
		}
		return true
	case proto.NotificationResponse:
		if c.hooks != nil && c.hooks.Notify != nil {
			c.hooks.Notify(m.Channel, m.Payload, m.ProcessID)
		}
		if c.channels != nil {
			c.channels.dispatch(m.Channel, m.Payload, m.ProcessID)
		}
		return true
	default:
		return false
	}
}

func noticeLevel(fields map[byte]string) slog.Level {
	switch fields[byte('S')] {
	case "WARNING":
		return slog.LevelWarn
	case "ERROR", "FATAL", "PANIC":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// writeLoop drains outbox, opportunistically coalescing any messages
// already queued into a single socket write (spec.md §4.3).
func (c *Conn) writeLoop() {
	defer close(c.writerDone)
	for {
		select {
		case b, ok := <-c.outbox:
			if !ok {
				return
			}
			if _, err := c.w.Write(b); err != nil {
				c.fail(fmt.Errorf("writing message: %w", err))
				return
			}
		drain:
			for {
				select {
				case b, ok := <-c.outbox:
					if !ok {
						break drain
					}
					if _, err := c.w.Write(b); err != nil {
						c.fail(fmt.Errorf("writing message: %w", err))
						return
					}
				default:
					break drain
				}
			}
			if err := c.w.Flush(); err != nil {
				c.fail(fmt.Errorf("flushing socket: %w", err))
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) send(b []byte) error {
	select {
	case c.outbox <- b:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *Conn) recv() (any, error) {
	select {
	case m, ok := <-c.inbox:
		if !ok {
			return nil, ErrClosed
		}
		return m, nil
	case <-c.done:
		return nil, c.closeError()
	}
}

func (c *Conn) fail(err error) {
	c.Close(err)
}

func (c *Conn) closeError() error {
	if e, ok := c.closeErr.Load().(error); ok {
		return e
	}
	return ErrClosed
}

// Close closes the wire: cancels pending reads/writes, closes the
// socket, clears transient state, and emits a close event (spec.md
// §4.3). err is nil for a deliberate close.
func (c *Conn) Close(err error) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if err != nil {
			c.closeErr.Store(err)
		} else {
			c.closeErr.Store(ErrClosed)
		}
		close(c.done)
		_ = c.netConn.Close()

		c.mu.Lock()
		c.serverParams = make(map[string]string)
		c.paramOrder = nil
		c.stmtCache = make(map[string]*Statement)
		c.stmtCounter = 0
		c.txStatus = 'I'
		c.txStack = nil
		c.mu.Unlock()

		if c.hooks != nil && c.hooks.Close != nil {
			c.hooks.Close(err)
		}
	})
}

// Closed reports whether this wire has been closed.
func (c *Conn) Closed() bool { return c.closed.Load() }

// Params returns a snapshot of the current server-parameters map. The
// returned map carries no ordering; paramOrder records first-observed
// order internally but is not exposed here.
func (c *Conn) Params() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.serverParams))
	for k, v := range c.serverParams {
		out[k] = v
	}
	return out
}

// TxStatus returns the current transaction status byte ('I'/'T'/'E').
func (c *Conn) TxStatus() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txStatus
}

func (c *Conn) setTxStatus(s byte) {
	c.mu.Lock()
	c.txStatus = s
	c.mu.Unlock()
}

// Pipeline runs write (under wlock) and read (under rlock, always
// drained to ReadyForQuery) concurrently, matching spec.md §4.3's
// pipeline(w, r) pseudocode: whichever side fails is reported, and the
// connection is guaranteed to be resynchronized at a ReadyForQuery
// boundary before Pipeline returns.
//
// Extended-protocol callers (Parse/Bind/Execute/Close) always follow
// their write with an explicit Sync. The simple-query protocol's own
// Query message already ends in a server-emitted ReadyForQuery, so
// PipelineSimple below skips the redundant Sync a generic
// write-then-always-Sync rule would otherwise inject (a second,
// spurious ReadyForQuery that would desynchronize the next pipeline).
func Pipeline[T any](ctx context.Context, c *Conn, write func() error, read func() (T, error)) (T, error) {
	return pipeline(ctx, c, write, read, true)
}

// PipelineSimple is Pipeline without the trailing Sync, for callers that
// use the simple-query protocol (Query messages), which already
// terminate in their own ReadyForQuery.
func PipelineSimple[T any](ctx context.Context, c *Conn, write func() error, read func() (T, error)) (T, error) {
	return pipeline(ctx, c, write, read, false)
}

func pipeline[T any](ctx context.Context, c *Conn, write func() error, read func() (T, error), sync bool) (T, error) {
	var zero T
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-c.wlock:
		case <-c.done:
			return c.closeError()
		}
		defer func() { c.wlock <- struct{}{} }()

		werr := write()
		if sync {
			if sErr := c.send(mustEncode(proto.Sync{})); sErr != nil && werr == nil {
				werr = sErr
			}
		}
		return werr
	})

	var result T
	var readErr error
	g.Go(func() error {
		select {
		case <-c.rlock:
		case <-c.done:
			return c.closeError()
		}
		defer func() { c.rlock <- struct{}{} }()

		result, readErr = read()
		if sync {
			// finally: drain until ReadyForQuery regardless of success/failure.
			if drainErr := c.drainToReadyForQuery(); drainErr != nil {
				return drainErr
			}
		}
		// PipelineSimple has no trailing Sync: the simple query's own
		// ReadyForQuery is the only one coming, and read() (normally
		// drainSimpleQuery) is responsible for consuming it itself.
		return nil
	})

	if err := g.Wait(); err != nil {
		return zero, err
	}
	if readErr != nil {
		return zero, readErr
	}
	return result, nil
}

// drainToReadyForQuery consumes messages until (and including) a
// ReadyForQuery, updating tx_status from it. Used as the "finally" arm
// of every pipelined read (spec.md §4.3, §8 invariant).
func (c *Conn) drainToReadyForQuery() error {
	for {
		msg, err := c.recv()
		if err != nil {
			return err
		}
		if rfq, ok := msg.(proto.ReadyForQuery); ok {
			c.setTxStatus(rfq.TxStatus)
			return nil
		}
		// ErrorResponse and other mid-stream messages during drain are
		// swallowed here; the read() closure is responsible for
		// surfacing any ErrorResponse it cares about before drain runs.
	}
}

// mustEncode is only for fixed, data-free protocol messages (Sync) whose
// Encode() cannot fail short of a bug in this package. Anything carrying
// caller- or user-supplied text (SQL, passwords, ...) must go through
// encodeAndSend instead, which reports an Encode failure as an error.
func mustEncode(m interface{ Encode() ([]byte, error) }) []byte {
	b, err := m.Encode()
	if err != nil {
		panic(fmt.Sprintf("wireproto: BUG: encoding %T: %v", m, err))
	}
	return b
}

// encodeAndSend encodes an arbitrary outgoing message and sends it. Unlike
// mustEncode (used only for fixed, data-free messages like Sync), m here can
// carry caller- or user-supplied text — e.g. proto.Query{SQL: sql} built
// straight from Wire.QuerySQL — so an Encode failure (an embedded NUL byte
// in a cstring field) is a plain wire error, not a panic-worthy bug.
func (c *Conn) encodeAndSend(m interface{ Encode() ([]byte, error) }) error {
	b, err := m.Encode()
	if err != nil {
		return wireErr("encode", err)
	}
	return c.send(b)
}

// WaitClosed blocks until the wire is closed, for reconnect supervisors.
func (c *Conn) WaitClosed() <-chan struct{} { return c.done }

// BackendKey returns the process ID and secret key captured during
// authentication (spec.md §9 Open Question (a): not used for
// cancellation by this implementation, but captured for a future one).
func (c *Conn) BackendKey() (pid, key int32) { return c.backendPID, c.backendKey }
