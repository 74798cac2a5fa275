package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv clears keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok {
			t.Setenv(key, value)
			os.Unsetenv(key)
		}
	}
}

func TestDecodeDefaults(t *testing.T) {
	unsetEnv(t, "PORT", "ENV", "LOANPERIOD", "DASHBOARDTTL", "LENABLED", "RENABLED", "SMTPHOST", "BUCKET", "REGION", "SHUTDOWNTIMEOUT", "WRITETIMEOUT")
	cfg, err := Decode("")
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 14*24*time.Hour, cfg.Loans.Period)
	assert.Equal(t, time.Minute, cfg.Cache.DashboardTTL)
	assert.True(t, cfg.Limiter.Enabled)
	assert.False(t, cfg.Reminders.Enabled)
	assert.False(t, cfg.SMTPEnabled())
	assert.False(t, cfg.S3Enabled())
}

func TestDecodeFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := []byte(`
server:
  port: 8080
  env: staging
database:
  dsn: postgres://circulation@localhost/circulation?sslmode=disable
loans:
  period: 168h
cors:
  trusted_origins:
    - http://localhost:3000
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	unsetEnv(t, "ENV", "DSN", "LOANPERIOD", "TRUSTEDORIGINS")
	t.Setenv("PORT", "9090")

	cfg, err := Decode(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "staging", cfg.Server.Env)
	assert.Equal(t, "postgres://circulation@localhost/circulation?sslmode=disable", cfg.Database.DSN)
	assert.Equal(t, 7*24*time.Hour, cfg.Loans.Period)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Cors.TrustedOrigins)
}

func TestDecodeMissingFile(t *testing.T) {
	_, err := Decode(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
