package mcpsession

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config holds the tunables of a Session. Zero fields fall back to
// DefaultConfig values.
type Config struct {
	// RequestTimeout bounds how long Call waits for a response. ENV: MCP_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"MCP_REQUEST_TIMEOUT,default=30s"`
	// SweepInterval is how often expired outbound requests are failed. ENV: MCP_SWEEP_INTERVAL
	SweepInterval time.Duration `env:"MCP_SWEEP_INTERVAL,default=1s"`
	// ParseErrorsFatal closes the session after replying to a frame that is
	// not JSON. ENV: MCP_PARSE_ERRORS_FATAL
	ParseErrorsFatal bool `env:"MCP_PARSE_ERRORS_FATAL,default=false"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 30 * time.Second,
		SweepInterval:  time.Second,
	}
}

// LoadConfig decodes Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode session config: %w", err)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	return c
}
