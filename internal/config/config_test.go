// AngelaMos | 2026
// config_test.go

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const memoryConfig = `
database:
  driver: memory
`

func TestLoad_Defaults(t *testing.T) {
	c, err := load(writeConfig(t, memoryConfig), nil)
	require.NoError(t, err)

	assert.Equal(t, 3000, c.Server.Port)
	assert.Equal(t, "token", c.Session.CookieName)
	assert.Equal(t, 24*time.Hour, c.Session.Lifetime)
	assert.Equal(t, 10, c.Auth.BcryptCost)
	assert.Equal(t, 20*time.Minute, c.Auth.ResetTokenTTL)
	assert.Equal(t, "http://localhost:3000/api/v1", c.Auth.BaseURL)
	assert.False(t, c.Auth.ConcealUnknownEmail)
	assert.Equal(t, MailDriverLog, c.Mail.Driver)
	assert.False(t, c.SecureCookies())
}

func TestLoad_Layering(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: memory
server:
  port: 8080
auth:
  base_url: https://shop.example.com/api/v1/
  reset_token_ttl: 30m
`)

	t.Run("file overrides defaults and base url is trimmed", func(t *testing.T) {
		c, err := load(path, nil)
		require.NoError(t, err)
		assert.Equal(t, 8080, c.Server.Port)
		assert.Equal(t, "https://shop.example.com/api/v1", c.Auth.BaseURL)
		assert.Equal(t, 30*time.Minute, c.Auth.ResetTokenTTL)
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("PORT", "9090")
		t.Setenv("AUTH_CONCEAL_UNKNOWN_EMAIL", "true")

		c, err := load(path, nil)
		require.NoError(t, err)
		assert.Equal(t, 9090, c.Server.Port)
		assert.True(t, c.Auth.ConcealUnknownEmail)
	})

	t.Run("changed flags override env", func(t *testing.T) {
		t.Setenv("PORT", "9090")

		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.Int("server.port", 0, "")
		flags.String("log.level", "", "")
		require.NoError(t, flags.Parse([]string{"--server.port=7070"}))

		c, err := load(path, flags)
		require.NoError(t, err)
		assert.Equal(t, 7070, c.Server.Port)
		assert.Equal(t, "info", c.Log.Level)
	})
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
		msg  string
	}{
		{
			name: "postgres without url",
			body: "database:\n  driver: postgres\n",
			msg:  "DATABASE_URL",
		},
		{
			name: "unknown driver",
			body: "database:\n  driver: sqlite\n",
			msg:  "unknown database driver",
		},
		{
			name: "memory driver in production",
			body: memoryConfig,
			env:  map[string]string{"ENVIRONMENT": "production"},
			msg:  "production",
		},
		{
			name: "redis mail without redis",
			body: memoryConfig + "mail:\n  driver: redis\n",
			msg:  "REDIS_URL",
		},
		{
			name: "relative base url",
			body: memoryConfig + "auth:\n  base_url: /api/v1\n",
			msg:  "auth.base_url",
		},
		{
			name: "bcrypt cost out of range",
			body: memoryConfig + "auth:\n  bcrypt_cost: 40\n",
			msg:  "bcrypt_cost",
		},
		{
			name: "short tokens",
			body: memoryConfig + "auth:\n  token_bytes: 8\n",
			msg:  "token_bytes",
		},
		{
			name: "cors wildcard with credentials",
			body: memoryConfig + "cors:\n  allowed_origins: ['*']\n",
			msg:  "CORS wildcard",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := load(writeConfig(t, tt.body), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestSecureCookies(t *testing.T) {
	c := &Config{}
	assert.False(t, c.SecureCookies())

	c.Session.Secure = true
	assert.True(t, c.SecureCookies())

	c.Session.Secure = false
	c.App.Environment = "production"
	assert.True(t, c.SecureCookies())
}
