package wireproto

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// Options configures how a Conn dials and authenticates, the Go-native
// form of spec.md §3's "Connection parameters" entity.
type Options struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string

	// RuntimeParams are additional startup parameters; values here are
	// overridden for the forced set (bytea_output, client_encoding,
	// DateStyle, user, database) per spec.md §6.
	RuntimeParams map[string]string

	DialTimeout time.Duration

	// ReconnectDelay, if non-zero, arms the reconnect timer on
	// unsolicited close. Zero disables reconnect.
	ReconnectDelay time.Duration
}

// dial opens the underlying socket: TCP with TCP_NODELAY and keepalive,
// unless Host begins with "/", in which case a Unix stream socket at
// "<host>/.s.PGSQL.<port>" is used (spec.md §6).
func dial(ctx context.Context, opt Options) (net.Conn, error) {
	if strings.HasPrefix(opt.Host, "/") {
		addr := fmt.Sprintf("%s/.s.PGSQL.%s", opt.Host, opt.Port)
		d := net.Dialer{Timeout: opt.DialTimeout}
		return d.DialContext(ctx, "unix", addr)
	}

	addr := net.JoinHostPort(opt.Host, opt.Port)
	d := net.Dialer{
		Timeout:   opt.DialTimeout,
		KeepAlive: 30 * time.Second,
	}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(30 * time.Second)
	}
	return conn, nil
}

// startupParams builds the full startup parameter set: application name
// and session defaults, overlaid with user overrides, with the forced
// set (user/database/bytea_output/client_encoding/DateStyle) always
// winning — spec.md §6.
func startupParams(opt Options) (map[string]string, []string) {
	params := map[string]string{
		"application_name":     "pglue",
		"idle_session_timeout": "0",
		"bytea_output":         "hex",
		"client_encoding":      "utf8",
		"DateStyle":            "ISO",
	}
	order := []string{"application_name", "idle_session_timeout", "bytea_output", "client_encoding", "DateStyle"}

	for k, v := range opt.RuntimeParams {
		if _, exists := params[k]; !exists {
			order = append(order, k)
		}
		params[k] = v
	}

	database := opt.Database
	if database == "" {
		database = opt.User
	}
	forced := map[string]string{
		"user":            opt.User,
		"database":        database,
		"bytea_output":    "hex",
		"client_encoding": "utf8",
		"DateStyle":       "ISO",
	}
	for k, v := range forced {
		if _, exists := params[k]; !exists {
			order = append(order, k)
		}
		params[k] = v
	}

	return params, order
}
