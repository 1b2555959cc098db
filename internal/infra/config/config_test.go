package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
http:
  addr: ":8080"
storage:
  base_dir: ./uploads
database:
  dsn: pdftoxml.db
auth:
  jwt_secret: 0123456789abcdef
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes())
	assert.Equal(t, QueueLocal, cfg.Queue.Driver)
	assert.Equal(t, 64, cfg.Queue.Capacity)
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, 2*time.Minute, cfg.Conversion.Timeout)
	assert.Equal(t, 6*time.Minute, cfg.Conversion.StaleAfter)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "pdftoxml", cfg.Auth.Issuer)
	assert.Equal(t, "pdftoxml.conversions", cfg.NATS.Subject)
}

func TestLoadDurations(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal+`
conversion:
  timeout: 30s
  sweep_interval: 10s
`))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Conversion.Timeout)
	assert.Equal(t, 90*time.Second, cfg.Conversion.StaleAfter)
	assert.Equal(t, 10*time.Second, cfg.Conversion.SweepInterval)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PDFTOXML_JWT_SECRET", "from-env-0123456789")
	t.Setenv("PDFTOXML_DATABASE_DRIVER", "postgres")
	t.Setenv("PDFTOXML_DATABASE_DSN", "postgres://u:p@db/pdftoxml")
	t.Setenv("PDFTOXML_REDIS_ADDR", "redis:6379")

	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, "from-env-0123456789", cfg.Auth.JWTSecret)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://u:p@db/pdftoxml", cfg.Database.DSN)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing addr", "storage: {base_dir: x}\ndatabase: {dsn: x}\nauth: {jwt_secret: 0123456789abcdef}\n", "http.addr"},
		{"short secret", strings.Replace(minimal, "0123456789abcdef", "short", 1), "jwt_secret"},
		{"bad driver", minimal + "queue:\n  driver: kafka\n", "queue.driver"},
		{"nats without url", minimal + "queue:\n  driver: nats\n", "nats.url"},
		{"unknown field", minimal + "surprise: true\n", "surprise"},
		{"bad log level", minimal + "log_level: loud\n", "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PDFTOXML_TEST_DOTENV=loaded\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("PDFTOXML_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "loaded", os.Getenv("PDFTOXML_TEST_DOTENV"))
}
