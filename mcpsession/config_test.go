package mcpsession

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, time.Second, cfg.SweepInterval)
	assert.False(t, cfg.ParseErrorsFatal)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("MCP_REQUEST_TIMEOUT", "5s")
	t.Setenv("MCP_SWEEP_INTERVAL", "250ms")
	t.Setenv("MCP_PARSE_ERRORS_FATAL", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.SweepInterval)
	assert.True(t, cfg.ParseErrorsFatal)
}

func TestWithConfigThenOverride(t *testing.T) {
	_, tr := newRawPeer(t)
	s := New(tr,
		WithConfig(Config{RequestTimeout: time.Minute}),
		WithSweepInterval(time.Millisecond),
	)
	assert.Equal(t, time.Minute, s.cfg.RequestTimeout)
	assert.Equal(t, time.Millisecond, s.cfg.SweepInterval)
}
