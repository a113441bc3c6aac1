package pglue

import (
	"time"

	"github.com/jkantaria/pglue/codec"
	"github.com/jkantaria/pglue/internal/wireproto"
)

// ConnConfig is the immutable-once-built configuration for a single
// wire, spec.md §3's "Connection parameters" entity, constructed with a
// functional-options constructor (grounded on the teacher's
// internal/config defaults-then-override style, expressed here as Go
// options instead of a struct literal with zero values).
type ConnConfig struct {
	opt    wireproto.Options
	codecs *codec.Registry
}

// ConnOption configures a ConnConfig built by NewConnConfig.
type ConnOption func(*ConnConfig)

// NewConnConfig constructs connection parameters for host:port, applying
// opts in order. Defaults: no password, database defaults to user,
// no dial timeout, reconnect disabled, the built-in codec registry.
func NewConnConfig(host, port string, opts ...ConnOption) *ConnConfig {
	cfg := &ConnConfig{
		opt: wireproto.Options{
			Host:          host,
			Port:          port,
			RuntimeParams: make(map[string]string),
		},
		codecs: codec.NewRegistry(),
	}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// WithUser sets the connecting role.
func WithUser(user string) ConnOption {
	return func(c *ConnConfig) { c.opt.User = user }
}

// WithPassword sets the password used for cleartext/MD5/SCRAM auth.
func WithPassword(password string) ConnOption {
	return func(c *ConnConfig) { c.opt.Password = password }
}

// WithDatabase sets the target database, defaulting to the user name
// if never set.
func WithDatabase(database string) ConnOption {
	return func(c *ConnConfig) { c.opt.Database = database }
}

// WithRuntimeParam sets an additional startup parameter. user, database,
// bytea_output, client_encoding, and DateStyle are always forced by the
// engine regardless of this option (spec.md §6).
func WithRuntimeParam(name, value string) ConnOption {
	return func(c *ConnConfig) { c.opt.RuntimeParams[name] = value }
}

// WithDialTimeout bounds the initial socket connect.
func WithDialTimeout(d time.Duration) ConnOption {
	return func(c *ConnConfig) { c.opt.DialTimeout = d }
}

// WithReconnectDelay arms the reconnect loop: on an unsolicited close,
// the wire redials after d. Zero (the default) disables reconnect.
func WithReconnectDelay(d time.Duration) ConnOption {
	return func(c *ConnConfig) { c.opt.ReconnectDelay = d }
}

// WithCodec registers a codec for a PostgreSQL type OID, overriding or
// extending the default registry (bool, text, int2/4/8, float4/8,
// timestamptz, bytea, json/jsonb).
func WithCodec(oid int32, c codec.Codec) ConnOption {
	return func(cfg *ConnConfig) { cfg.codecs.Register(oid, c) }
}
