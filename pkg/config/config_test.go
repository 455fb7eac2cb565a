package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Run from an empty directory so no stray aman.yaml is picked up.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "@hourly", cfg.Server.PurgeSchedule)
	assert.Equal(t, time.Minute, cfg.Agent.GetHeartbeat())
	assert.Equal(t, 15*time.Second, cfg.Agent.GetProbeInterval())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aman.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
  max_ttl_hours: 48
  tokens:
    tok-alpha: u1
agent:
  server_url: http://sync.example.org:9090
  heartbeat: 30s
logging:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 48*time.Hour, cfg.Server.MaxTTL())
	assert.Equal(t, "u1", cfg.Server.Tokens["tok-alpha"])
	assert.Equal(t, "http://sync.example.org:9090", cfg.Agent.ServerURL)
	assert.Equal(t, 30*time.Second, cfg.Agent.GetHeartbeat())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })

	t.Setenv("AMAN_SERVER_PORT", "7777")
	t.Setenv("AMAN_AGENT_USER_ID", "u9")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "u9", cfg.Agent.UserID)
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aman.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
