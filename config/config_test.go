package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
addr: ":7777"
ws_addr: ":7778"
max_message_size: 65536
read_buffer_size: 8192
idle_timeout: "90s"
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.Addr)
	assert.Equal(t, ":7778", cfg.WSAddr)
	assert.Equal(t, 65536, cfg.MaxMessageSize)
	assert.Equal(t, 8192, cfg.ReadBufferSize)
	assert.Equal(t, 90*time.Second, time.Duration(cfg.IdleTimeout))
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_DefaultsForOmittedFields(t *testing.T) {
	path := writeConfig(t, `addr: ":7777"`)

	cfg, err := Load(path)
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, ":7777", cfg.Addr)
	assert.Equal(t, def.MaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, def.ReadBufferSize, cfg.ReadBufferSize)
	assert.Equal(t, def.IdleTimeout, cfg.IdleTimeout)
	assert.Equal(t, def.LogLevel, cfg.LogLevel)
	assert.Empty(t, cfg.WSAddr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `idle_timeout: "soon"`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidMaxMessageSize(t *testing.T) {
	path := writeConfig(t, `max_message_size: -1`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSessionOptions(t *testing.T) {
	cfg := Default()
	opts := cfg.SessionOptions()
	assert.Len(t, opts, 3)
}
