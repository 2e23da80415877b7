// Package config loads the game server's tunables from a YAML file. Only
// MaxMessageSize is consumed by the session core itself; the rest configure
// the listeners and logging around it.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/cyberinferno/go-gameserver/session"
)

// Duration wraps time.Duration so YAML values like "90s" or "5m" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(v)
	return nil
}

// Config holds the server configuration.
type Config struct {
	// Addr is the TCP listen address.
	Addr string `yaml:"addr"`
	// WSAddr is the websocket listen address; empty disables the websocket listener.
	WSAddr string `yaml:"ws_addr"`
	// MaxMessageSize is the per-session cap on unparsed buffered inbound bytes.
	MaxMessageSize int `yaml:"max_message_size"`
	// ReadBufferSize is the per-session transport read buffer size.
	ReadBufferSize int `yaml:"read_buffer_size"`
	// IdleTimeout is how long a session read may sit idle before the idle
	// event is logged. Zero disables it.
	IdleTimeout Duration `yaml:"idle_timeout"`
	// LogLevel is the minimum log level ("debug", "info", "warn", "error").
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Addr:           ":9000",
		MaxMessageSize: 1024 * 1024,
		ReadBufferSize: 4096,
		IdleTimeout:    Duration(5 * time.Minute),
		LogLevel:       "info",
	}
}

// Load reads a YAML config file, applying defaults for any field the file
// omits.
//
// Parameters:
//   - path: Path to the YAML file
//
// Returns:
//   - The merged configuration, or an error if the file cannot be read or parsed
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if cfg.MaxMessageSize <= 0 {
		return cfg, fmt.Errorf("max_message_size must be positive, got %d", cfg.MaxMessageSize)
	}

	return cfg, nil
}

// SessionOptions converts the configuration into the session options it
// governs. Codec and handler still have to be supplied by the caller.
func (c Config) SessionOptions() []session.Option {
	return []session.Option{
		session.WithMaxMessageSize(c.MaxMessageSize),
		session.WithReadBufferSize(c.ReadBufferSize),
		session.WithIdleTimeout(time.Duration(c.IdleTimeout)),
	}
}
