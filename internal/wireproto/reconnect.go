package wireproto

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jkantaria/pglue/codec"
)

// Supervisor owns the reconnect loop for one logical wire: it holds the
// currently live Conn, and on an unsolicited close redials after
// opt.ReconnectDelay, replaying every registered LISTEN channel before
// handing the new Conn out (spec.md §4.3 "Connect/reconnect", §9
// "Retain-on-reconnect channels"). In-flight work on the old Conn is
// never retried: it already failed with the old Conn's close error, per
// spec.md §5 "Cancellation and timeouts".
type Supervisor struct {
	opt      Options
	hooks    *Hooks
	codecs   *codec.Registry
	channels *ChannelRegistry

	mu     sync.Mutex
	conn   *Conn
	closed bool
}

// NewSupervisor constructs a Supervisor; call Connect to dial the first
// Conn.
func NewSupervisor(opt Options, hooks *Hooks, codecs *codec.Registry, channels *ChannelRegistry) *Supervisor {
	if channels == nil {
		channels = NewChannelRegistry()
	}
	return &Supervisor{opt: opt, hooks: hooks, codecs: codecs, channels: channels}
}

// Connect dials the initial Conn and arms the reconnect watcher.
func (s *Supervisor) Connect(ctx context.Context) error {
	c, err := Dial(ctx, s.opt, s.hooks, s.codecs, s.channels)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
	go s.watch(c)
	return nil
}

// Current returns the presently live Conn. Callers should check
// Conn.Closed() before use: a stale handle from just before a reconnect
// is possible but harmless, since the next pipeline call on a closed
// Conn simply returns ErrClosed.
func (s *Supervisor) Current() *Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Close tears the supervisor down: no further reconnect attempts, and
// the current Conn (if any) is closed.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	c := s.conn
	s.mu.Unlock()
	if c != nil {
		c.Close(nil)
	}
}

func (s *Supervisor) watch(c *Conn) {
	<-c.WaitClosed()

	s.mu.Lock()
	closed := s.closed
	delay := s.opt.ReconnectDelay
	s.mu.Unlock()

	if closed || delay == 0 {
		return
	}

	for {
		time.Sleep(delay)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.hooks.log(slog.LevelInfo, "pglue: attempting reconnect")
		nc, err := Dial(context.Background(), s.opt, s.hooks, s.codecs, s.channels)
		if err != nil {
			s.hooks.log(slog.LevelWarn, "pglue: reconnect attempt failed", "error", err)
			continue
		}

		if err := nc.replayListens(context.Background()); err != nil {
			s.hooks.log(slog.LevelWarn, "pglue: reconnect LISTEN replay failed", "error", err)
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			nc.Close(nil)
			return
		}
		s.conn = nc
		s.mu.Unlock()

		go s.watch(nc)
		return
	}
}
