package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "env: dev\n"))
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, 2, cfg.Room.Capacity)
	assert.EqualValues(t, 65536, cfg.WebSocket.MaxMessageSize)
	assert.Equal(t, 256, cfg.WebSocket.SendQueue)
	assert.Empty(t, cfg.WebSocket.AllowedOrigins)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
env: prod
http:
  address: ":9000"
room:
  capacity: 3
websocket:
  allowed_origins: ["https://a.example"]
`)
	t.Setenv("WARPCALL_HTTP_ADDRESS", ":9100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.HTTP.Address)
	assert.Equal(t, 3, cfg.Room.Capacity)
	assert.Equal(t, []string{"https://a.example"}, cfg.WebSocket.AllowedOrigins)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("WARPCALL_ROOM_CAPACITY", "4")
	t.Setenv("WARPCALL_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Room.Capacity)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.WebSocket.AllowedOrigins)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrNoConfigFile)

	_, err = Load(writeConfig(t, "room:\n  capacity: -1\n"))
	assert.Error(t, err)

	assert.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "missing.yaml")) })
}
