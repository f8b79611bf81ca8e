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
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_ENV", "missing")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 20*time.Second, cfg.Call.NegotiationTimeout)
	require.Len(t, cfg.ICE.Servers, 1)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICE.Servers[0].URLs)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	yaml := []byte(`
port: 9000
secret: cookie
bookings:
  - id: sess-42
    participants:
      - user_id: t1
        name: Ada
        role: teacher
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), yaml, 0o644))
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("LIVECLASS_CALL_NEGOTIATION_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "cookie", cfg.Auth.JWTSecret)
	assert.Equal(t, 5*time.Second, cfg.Call.NegotiationTimeout)
	require.Len(t, cfg.Bookings, 1)
	assert.Equal(t, "t1", cfg.Bookings[0].Participants[0].UserID)
}
