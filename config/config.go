// Package config loads and validates the tool configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/nccheck/errors"
)

// Duration wraps time.Duration to accept "5s" style YAML strings.
type Duration time.Duration

// UnmarshalYAML decodes either a duration string or a number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var seconds float64
	if err := value.Decode(&seconds); err != nil {
		return fmt.Errorf("invalid duration value at line %d", value.Line)
	}
	*d = Duration(time.Duration(seconds * float64(time.Second)))
	return nil
}

// MarshalYAML encodes the duration in its string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the complete runtime configuration for a conformance run.
type Config struct {
	// ControlEndpoint is the device's IS-12 WebSocket URL.
	ControlEndpoint string `yaml:"control_endpoint"`
	// ConnectionAPI is the device's IS-05 Connection API base URL. Empty
	// disables the status monitor checks that need resource activation.
	ConnectionAPI string `yaml:"connection_api"`

	// MessageTimeout bounds each command round trip.
	MessageTimeout Duration `yaml:"message_timeout"`
	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout Duration `yaml:"handshake_timeout"`

	// StatusReportingDelay is written to monitors before activation.
	StatusReportingDelay Duration `yaml:"status_reporting_delay"`
	// SettleTime is the wait after activation or deactivation before
	// evaluating notifications.
	SettleTime Duration `yaml:"settle_time"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration defaults applied before loading.
func Default() Config {
	return Config{
		MessageTimeout:       Duration(5 * time.Second),
		HandshakeTimeout:     Duration(10 * time.Second),
		StatusReportingDelay: Duration(3 * time.Second),
		SettleTime:           Duration(2 * time.Second),
		LogLevel:             "info",
	}
}

// Load reads a YAML configuration file, applies defaults for absent fields
// and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "config", "Load", "read "+path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "config", "Load", "parse "+path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.ControlEndpoint == "" {
		return validationError("control_endpoint is required")
	}
	u, err := url.Parse(c.ControlEndpoint)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return validationError("control_endpoint must be a ws:// or wss:// URL, got %q", c.ControlEndpoint)
	}

	if c.ConnectionAPI != "" {
		u, err := url.Parse(c.ConnectionAPI)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return validationError("connection_api must be an http:// or https:// URL, got %q", c.ConnectionAPI)
		}
	}

	if c.MessageTimeout <= 0 {
		return validationError("message_timeout must be positive, got %v", c.MessageTimeout.Std())
	}
	if c.HandshakeTimeout <= 0 {
		return validationError("handshake_timeout must be positive, got %v", c.HandshakeTimeout.Std())
	}
	if c.StatusReportingDelay <= 0 {
		return validationError("status_reporting_delay must be positive, got %v", c.StatusReportingDelay.Std())
	}
	if c.SettleTime <= 0 {
		return validationError("settle_time must be positive, got %v", c.SettleTime.Std())
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return validationError("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	return nil
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("config: %w: %s", errors.ErrInvalidConfig, fmt.Sprintf(format, args...))
}
