// Package pgconfig loads pglue.PoolConfig/ConnConfig sizing from YAML,
// with environment-variable substitution and optional hot-reload
// (SPEC_FULL.md's [AMBIENT] Configuration section).
package pgconfig

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a pglue connection/pool configuration
// file.
type File struct {
	Host     string        `yaml:"host"`
	Port     string        `yaml:"port"`
	Database string        `yaml:"dbname"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`

	MinConnections int           `yaml:"min_connections"`
	MaxConnections int           `yaml:"max_connections"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	RuntimeParams map[string]string `yaml:"runtime_params"`
}

// Redacted returns a copy of f with the password masked, safe for
// logging.
func (f File) Redacted() File {
	c := f
	if c.Password != "" {
		c.Password = "***REDACTED***"
	}
	return c
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(name)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file, substituting ${VAR} with
// environment values before parsing, and applying defaults afterward.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validate(f); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(f)
	return f, nil
}

func validate(f *File) error {
	if f.Host == "" {
		return fmt.Errorf("host is required")
	}
	if f.Port == "" {
		return fmt.Errorf("port is required")
	}
	if f.Username == "" {
		return fmt.Errorf("username is required")
	}
	return nil
}

func applyDefaults(f *File) {
	if f.MinConnections == 0 {
		f.MinConnections = 2
	}
	if f.MaxConnections == 0 {
		f.MaxConnections = 10
	}
	if f.IdleTimeout == 0 {
		f.IdleTimeout = 5 * time.Minute
	}
	if f.DialTimeout == 0 {
		f.DialTimeout = 10 * time.Second
	}
}
