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

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
database:
  driver: mysql
  port: 3306
tasks:
  signup:
    actions: [new_project_with_user]
    token_ttl: 2h
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Contains(t, cfg.Database.DSN(), "@tcp(localhost:3306)/stackgate")

	require.Contains(t, cfg.Tasks, "signup")
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL("signup"))
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL("unknown"))
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
auth:
  jwt_secret: from-file
`)
	t.Setenv("STACKGATE_SERVER_PORT", "9100")
	t.Setenv("STACKGATE_AUTH_JWT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDefaultDSN(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "host=localhost port=5432 user=stackgate password= dbname=stackgate sslmode=disable", cfg.Database.DSN())
	assert.Equal(t, 12*time.Hour, cfg.TokenTTL("reset_password"))
}

func TestLoadRejectsOversizedTokens(t *testing.T) {
	path := writeConfig(t, `
tokens:
  length: 65
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tokens.length")

	path = writeConfig(t, `
tokens:
  length: 64
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, MaxTokenLength, cfg.Tokens.Length)
}
