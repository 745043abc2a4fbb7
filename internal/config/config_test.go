package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// These tests share the process environment via t.Setenv, so none of them run
// in parallel.

func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("PARLEY_HOME_DIR", home)
	for _, name := range []string{
		"PARLEY_SERVER_URL", "PARLEY_TOKEN", "PARLEY_MOCK",
		"PARLEY_DEBUG", "DEBUG", "PARLEY_LOG_LEVEL",
		"PARLEY_RECONNECT_MAX_RETRIES",
	} {
		t.Setenv(name, "")
	}
	return home
}

func TestLoad_Defaults(t *testing.T) {
	home := isolateEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8917", cfg.ServerURL)
	require.Equal(t, home, cfg.ParleyHome)
	require.False(t, cfg.Mock)
	require.False(t, cfg.Debug)
	require.Equal(t, 1000, cfg.Reconnect.BaseDelayMs)
	require.Equal(t, 30000, cfg.Reconnect.MaxDelayMs)
	require.Equal(t, 10, cfg.Reconnect.MaxRetries)
	require.Equal(t, 0.5, cfg.Reconnect.JitterRatio)
	require.Equal(t, time.Second, cfg.Reconnect.BaseDelay())
	require.Equal(t, 30*time.Second, cfg.Reconnect.MaxDelay())
}

func TestLoad_ConfigFile(t *testing.T) {
	home := isolateEnv(t)

	raw := `
server_url: http://daemon.local:9000
debug: true
log_level: trace
reconnect:
  base_delay_ms: 250
  max_delay_ms: 4000
  max_retries: 3
  jitter_ratio: 0.1
`
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(raw), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://daemon.local:9000", cfg.ServerURL)
	require.True(t, cfg.Debug)
	require.Equal(t, "trace", cfg.LogLevel)
	require.Equal(t, 250, cfg.Reconnect.BaseDelayMs)
	require.Equal(t, 4000, cfg.Reconnect.MaxDelayMs)
	require.Equal(t, 3, cfg.Reconnect.MaxRetries)
	require.Equal(t, 0.1, cfg.Reconnect.JitterRatio)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	home := isolateEnv(t)

	raw := "server_url: http://from-file:9000\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(raw), 0o600))

	t.Setenv("PARLEY_SERVER_URL", "http://from-env:9001")
	t.Setenv("PARLEY_TOKEN", "tok-123")
	t.Setenv("PARLEY_MOCK", "1")
	t.Setenv("PARLEY_RECONNECT_MAX_RETRIES", "7")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://from-env:9001", cfg.ServerURL)
	require.Equal(t, "tok-123", cfg.Token)
	require.True(t, cfg.Mock)
	require.Equal(t, 7, cfg.Reconnect.MaxRetries)
}

func TestLoad_DebugFallsBackToBareEnv(t *testing.T) {
	isolateEnv(t)

	t.Setenv("DEBUG", "true")
	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.Debug)

	// PARLEY_DEBUG wins over DEBUG.
	t.Setenv("PARLEY_DEBUG", "0")
	cfg, err = Load()
	require.NoError(t, err)
	require.False(t, cfg.Debug)
}

func TestLoad_MalformedFileFails(t *testing.T) {
	home := isolateEnv(t)

	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte("server_url: [\n"), 0o600))

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_BadRetriesEnvIsIgnored(t *testing.T) {
	isolateEnv(t)

	t.Setenv("PARLEY_RECONNECT_MAX_RETRIES", "not-a-number")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 10, cfg.Reconnect.MaxRetries)
}
