package pglue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jkantaria/pglue/internal/wireproto"
)

// Notice wraps a NoticeResponse's fields, giving access the same way
// PgError does for errors (spec.md §6 "events log/connect/notice/
// notify/parameter/close").
type Notice struct {
	Fields map[byte]string
}

func (n Notice) field(c byte) string { return n.Fields[c] }

func (n Notice) Severity() string { return orDefault(n.field('S'), "NOTICE") }
func (n Notice) Code() string     { return orDefault(n.field('C'), "00000") }
func (n Notice) Message() string  { return n.field('M') }
func (n Notice) Detail() string   { return n.field('D') }
func (n Notice) Hint() string     { return n.field('H') }

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// eventRegistry is a typed callback registry standing in for the
// source's EventEmitter (spec.md §6): every On* method appends a
// handler, and toHooks fans engine events out to all of them.
type eventRegistry struct {
	mu        sync.Mutex
	logFns    []func(slog.Level, string, ...any)
	connectFn []func()
	noticeFn  []func(Notice)
	notifyFn  []func(channel, payload string, pid int32)
	paramFn   []func(name, value string, prev *string)
	closeFn   []func(error)
}

func newEventRegistry() *eventRegistry { return &eventRegistry{} }

func (r *eventRegistry) onLog(fn func(slog.Level, string, ...any)) {
	r.mu.Lock()
	r.logFns = append(r.logFns, fn)
	r.mu.Unlock()
}

func (r *eventRegistry) onConnect(fn func()) {
	r.mu.Lock()
	r.connectFn = append(r.connectFn, fn)
	r.mu.Unlock()
}

func (r *eventRegistry) onNotice(fn func(Notice)) {
	r.mu.Lock()
	r.noticeFn = append(r.noticeFn, fn)
	r.mu.Unlock()
}

func (r *eventRegistry) onNotify(fn func(channel, payload string, pid int32)) {
	r.mu.Lock()
	r.notifyFn = append(r.notifyFn, fn)
	r.mu.Unlock()
}

func (r *eventRegistry) onParameter(fn func(name, value string, prev *string)) {
	r.mu.Lock()
	r.paramFn = append(r.paramFn, fn)
	r.mu.Unlock()
}

func (r *eventRegistry) onClose(fn func(error)) {
	r.mu.Lock()
	r.closeFn = append(r.closeFn, fn)
	r.mu.Unlock()
}

// toHooks builds the wireproto.Hooks value that fans engine-level
// events out to every registered handler.
func (r *eventRegistry) toHooks() *wireproto.Hooks {
	return &wireproto.Hooks{
		Log: func(level slog.Level, msg string, args ...any) {
			r.mu.Lock()
			fns := append([]func(slog.Level, string, ...any){}, r.logFns...)
			r.mu.Unlock()
			if len(fns) == 0 {
				slog.Default().Log(context.Background(), level, msg, args...)
				return
			}
			for _, fn := range fns {
				fn(level, msg, args...)
			}
		},
		Connect: func() {
			r.mu.Lock()
			fns := append([]func(){}, r.connectFn...)
			r.mu.Unlock()
			for _, fn := range fns {
				fn()
			}
		},
		Notice: func(fields map[byte]string) {
			r.mu.Lock()
			fns := append([]func(Notice){}, r.noticeFn...)
			r.mu.Unlock()
			for _, fn := range fns {
				fn(Notice{Fields: fields})
			}
		},
		Notify: func(channel, payload string, pid int32) {
			r.mu.Lock()
			fns := append([]func(string, string, int32){}, r.notifyFn...)
			r.mu.Unlock()
			for _, fn := range fns {
				fn(channel, payload, pid)
			}
		},
		Parameter: func(name, value string, prev *string) {
			r.mu.Lock()
			fns := append([]func(string, string, *string){}, r.paramFn...)
			r.mu.Unlock()
			for _, fn := range fns {
				fn(name, value, prev)
			}
		},
		Close: func(err error) {
			r.mu.Lock()
			fns := append([]func(error){}, r.closeFn...)
			r.mu.Unlock()
			for _, fn := range fns {
				fn(err)
			}
		},
	}
}
