package wireproto

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jkantaria/pglue/internal/proto"
)

// NotifyHandler receives a channel's delivered payload and the
// originating backend's process ID.
type NotifyHandler func(payload string, pid int32)

// ChannelRegistry tracks LISTEN subscriptions independent of any one
// connection's identity (spec.md §3 "Channel", §9 "Retain-on-reconnect
// channels"): a Pool or standalone Wire owns one registry and hands it
// to each Conn it dials, so reconnect can replay LISTEN without losing
// subscribers.
type ChannelRegistry struct {
	mu       sync.Mutex
	channels map[string][]NotifyHandler
}

// NewChannelRegistry returns an empty registry.
func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{channels: make(map[string][]NotifyHandler)}
}

// Names returns every currently registered channel name, for replay after
// reconnect.
func (r *ChannelRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	return names
}

func (r *ChannelRegistry) dispatch(name, payload string, pid int32) {
	r.mu.Lock()
	handlers := append([]NotifyHandler(nil), r.channels[name]...)
	r.mu.Unlock()
	for _, h := range handlers {
		h(payload, pid)
	}
}

// quoteIdent double-quotes name per spec.md §4.3 "LISTEN "<quoted name>"".
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Listen registers handler under name, issuing LISTEN on c if name was
// not already registered (spec.md §4.3 "Channels"). Warns via the
// connection's hooks if a LISTEN is issued mid-transaction (Open
// Question (c): surfaced as a log, not enforced).
func (c *Conn) Listen(ctx context.Context, name string, handler NotifyHandler) error {
	c.channels.mu.Lock()
	_, existed := c.channels.channels[name]
	c.channels.mu.Unlock()

	if existed {
		c.channels.mu.Lock()
		c.channels.channels[name] = append(c.channels.channels[name], handler)
		c.channels.mu.Unlock()
		return nil
	}

	if c.TxStatus() != 'I' {
		c.hooks.log(slog.LevelWarn, "LISTEN issued inside a transaction; subscription may be rolled back", "channel", name)
	}

	_, err := PipelineSimple(ctx, c, func() error {
		return c.encodeAndSend(proto.Query{SQL: fmt.Sprintf("LISTEN %s", quoteIdent(name))})
	}, func() (struct{}, error) {
		return struct{}{}, c.drainSimpleQuery(nil, nil)
	})
	if err != nil {
		return err
	}

	// Re-check after the await: a concurrent Listen(name) may have
	// already inserted it while this one was in flight.
	c.channels.mu.Lock()
	defer c.channels.mu.Unlock()
	if _, ok := c.channels.channels[name]; !ok {
		c.channels.channels[name] = nil
	}
	c.channels.channels[name] = append(c.channels.channels[name], handler)
	return nil
}

// Unlisten removes name from the registry and issues UNLISTEN.
func (c *Conn) Unlisten(ctx context.Context, name string) error {
	c.channels.mu.Lock()
	_, ok := c.channels.channels[name]
	if ok {
		delete(c.channels.channels, name)
	}
	c.channels.mu.Unlock()
	if !ok {
		return ErrChannelNotListening
	}

	_, err := PipelineSimple(ctx, c, func() error {
		return c.encodeAndSend(proto.Query{SQL: fmt.Sprintf("UNLISTEN %s", quoteIdent(name))})
	}, func() (struct{}, error) {
		return struct{}{}, c.drainSimpleQuery(nil, nil)
	})
	return err
}

// Notify sends a NOTIFY to channel with payload via pg_notify, avoiding
// any text-splicing of payload into the query (spec.md §4.3).
func (c *Conn) Notify(ctx context.Context, channel, payload string) error {
	st, err := c.prepare(ctx, "SELECT pg_notify($1, $2)")
	if err != nil {
		return err
	}
	_, err = c.fastExecute(ctx, st, []any{channel, payload}, nil, nil)
	return err
}

// replayListens re-issues LISTEN for every currently registered channel
// name after a reconnect, concurrently, before releasing any waiters
// (spec.md §4.3 "Connect/reconnect", §8 invariant on reconnect).
func (c *Conn) replayListens(ctx context.Context) error {
	names := c.channels.Names()
	errs := make(chan error, len(names))
	for _, name := range names {
		name := name
		go func() {
			_, err := PipelineSimple(ctx, c, func() error {
				return c.encodeAndSend(proto.Query{SQL: fmt.Sprintf("LISTEN %s", quoteIdent(name))})
			}, func() (struct{}, error) {
				return struct{}{}, c.drainSimpleQuery(nil, nil)
			})
			errs <- err
		}()
	}
	var firstErr error
	for range names {
		if err := <-errs; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
