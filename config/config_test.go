package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/c360/nccheck/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nccheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
control_endpoint: ws://device.local:8000/x-nmos/ncp/v1.0
connection_api: http://device.local:8080/x-nmos/connection/v1.1
message_timeout: 2s
status_reporting_delay: 4s
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://device.local:8000/x-nmos/ncp/v1.0", cfg.ControlEndpoint)
	assert.Equal(t, 2*time.Second, cfg.MessageTimeout.Std())
	assert.Equal(t, 4*time.Second, cfg.StatusReportingDelay.Std())
	assert.Equal(t, "debug", cfg.LogLevel)

	// Absent fields keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout.Std())
	assert.Equal(t, 2*time.Second, cfg.SettleTime.Std())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "control_endpoint: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDurationDecoding(t *testing.T) {
	t.Run("duration string", func(t *testing.T) {
		var d Duration
		require.NoError(t, yaml.Unmarshal([]byte(`1m30s`), &d))
		assert.Equal(t, 90*time.Second, d.Std())
	})

	t.Run("bare seconds", func(t *testing.T) {
		var d Duration
		require.NoError(t, yaml.Unmarshal([]byte(`2.5`), &d))
		assert.Equal(t, 2500*time.Millisecond, d.Std())
	})

	t.Run("garbage", func(t *testing.T) {
		var d Duration
		assert.Error(t, yaml.Unmarshal([]byte(`soon`), &d))
	})

	t.Run("round trip", func(t *testing.T) {
		out, err := yaml.Marshal(Duration(5 * time.Second))
		require.NoError(t, err)
		assert.Equal(t, "5s\n", string(out))
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.ControlEndpoint = "ws://device.local:8000/x-nmos/ncp/v1.0"
		return cfg
	}

	validCfg := valid()
	require.NoError(t, validCfg.Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing endpoint", func(c *Config) { c.ControlEndpoint = "" }},
		{"http endpoint", func(c *Config) { c.ControlEndpoint = "http://device.local:8000" }},
		{"bad connection api scheme", func(c *Config) { c.ConnectionAPI = "ftp://device.local" }},
		{"zero message timeout", func(c *Config) { c.MessageTimeout = 0 }},
		{"negative handshake timeout", func(c *Config) { c.HandshakeTimeout = Duration(-time.Second) }},
		{"zero reporting delay", func(c *Config) { c.StatusReportingDelay = 0 }},
		{"zero settle time", func(c *Config) { c.SettleTime = 0 }},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}
