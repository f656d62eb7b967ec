package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-claims/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := config.New()
	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, time.Hour, c.GetAccessTokenValidity())
	require.Equal(t, 100*24*time.Hour, c.GetRefreshTokenValidity())
	require.False(t, c.GetAntiCSRF())
	require.Empty(t, c.GetDatabaseURL())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ACCESS_TOKEN_VALIDITY", "15m")
	t.Setenv("ANTI_CSRF", "true")

	c := config.New()
	require.Equal(t, ":9000", c.GetPort())
	require.Equal(t, 15*time.Minute, c.GetAccessTokenValidity())
	require.True(t, c.GetAntiCSRF())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 7000
session_secret: from-file
session_issuer: https://issuer.example.com
refresh_token_validity: 48h
`), 0o600))

	t.Setenv("SESSION_ISSUER", "https://env.example.com")
	t.Setenv("CONFIG_FILE", path)

	c, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, ":7000", c.GetPort())
	require.Equal(t, "from-file", c.GetSessionSecret())
	require.Equal(t, "https://env.example.com", c.GetSessionIssuer())
	require.Equal(t, 48*time.Hour, c.GetRefreshTokenValidity())

	_, err = config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
