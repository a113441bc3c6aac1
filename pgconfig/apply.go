package pgconfig

import "github.com/jkantaria/pglue"

// ConnConfig builds a pglue.ConnConfig from a loaded File.
func (f File) ConnConfig() *pglue.ConnConfig {
	opts := []pglue.ConnOption{
		pglue.WithUser(f.Username),
		pglue.WithPassword(f.Password),
		pglue.WithDialTimeout(f.DialTimeout),
		pglue.WithReconnectDelay(f.ReconnectDelay),
	}
	if f.Database != "" {
		opts = append(opts, pglue.WithDatabase(f.Database))
	}
	for name, value := range f.RuntimeParams {
		opts = append(opts, pglue.WithRuntimeParam(name, value))
	}
	return pglue.NewConnConfig(f.Host, f.Port, opts...)
}

// PoolConfig builds a pglue.PoolConfig from a loaded File.
func (f File) PoolConfig() pglue.PoolConfig {
	return pglue.PoolConfig{
		MinConnections: f.MinConnections,
		MaxConnections: f.MaxConnections,
		IdleTimeout:    f.IdleTimeout,
	}
}
