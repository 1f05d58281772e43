package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/accesscore/internal/security/secretbox"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, "memory", c.Storage.Driver)
	assert.Equal(t, 15*time.Minute, c.AccessTTL())
	assert.Equal(t, 720*time.Hour, c.RefreshTTL())
	assert.True(t, *c.JWT.RotateRefresh)
	assert.Equal(t, 5, c.Lockout.MaxAttempts)
	assert.Equal(t, 15*time.Minute, c.LockoutDuration())
	assert.Equal(t, 24*time.Hour, c.AttemptTTL())
	assert.True(t, *c.Rate.Enabled)
	assert.Equal(t, time.Minute, c.RateWindow())
	assert.Equal(t, 5, c.Rate.AuthLimit)
	assert.Equal(t, 60, c.Rate.DefaultLimit)
	assert.Equal(t, []string{"/v1/auth/"}, c.Rate.AuthPrefixes)
	assert.Equal(t, []string{"/static/", "/public/"}, c.Rate.BypassPrefixes)
	assert.True(t, *c.Rate.TrustForwarded)
	assert.Equal(t, 10*time.Minute, c.PurgeInterval())
	assert.Equal(t, "USER", c.Auth.DefaultRole)
	assert.Equal(t, 8, c.Security.PasswordPolicy.MinLength)
	assert.True(t, *c.Security.PasswordPolicy.RequireSymbol)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	p := writeYAML(t, `
jwt:
  secret: "`+testSecret+`"
  access_ttl: 5m
  rotate_refresh: false
lockout:
  max_attempts: 3
  duration: 30m
rate:
  enabled: false
  auth_limit: 10
  bypass_prefixes: []
security:
  password_policy:
    require_symbol: false
  password_blacklist_path: lists/common.txt
`)
	t.Setenv("LOCKOUT_MAX_ATTEMPTS", "7")
	t.Setenv("RATE_DEFAULT_LIMIT", "120")

	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, c.AccessTTL())
	assert.False(t, *c.JWT.RotateRefresh)
	assert.Equal(t, 7, c.Lockout.MaxAttempts, "env wins over file")
	assert.Equal(t, 30*time.Minute, c.LockoutDuration())
	assert.False(t, *c.Rate.Enabled)
	assert.Equal(t, 10, c.Rate.AuthLimit)
	assert.Equal(t, 120, c.Rate.DefaultLimit)
	assert.Empty(t, c.Rate.BypassPrefixes, "explicit empty list is kept")
	assert.False(t, *c.Security.PasswordPolicy.RequireSymbol)
	assert.True(t, *c.Security.PasswordPolicy.RequireUpper)
	assert.Equal(t, filepath.Join(filepath.Dir(p), "lists", "common.txt"), c.Security.PasswordBlacklistPath)
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"short secret", `jwt: {secret: "short"}`, "jwt.secret"},
		{"bad duration", `jwt: {secret: "` + testSecret + `", access_ttl: "soon"}`, "jwt.access_ttl"},
		{"negative window", `jwt: {secret: "` + testSecret + `"}` + "\nrate: {window: -1m}", "rate.window must be positive"},
		{"postgres without dsn", `jwt: {secret: "` + testSecret + `"}` + "\nstorage: {driver: postgres}", "storage.dsn"},
		{"unknown driver", `jwt: {secret: "` + testSecret + `"}` + "\nstorage: {driver: mongo}", "storage.driver"},
		{"redis without addr", `jwt: {secret: "` + testSecret + `"}` + "\nlockout: {backend: redis}", "redis.addr"},
		{"email without smtp", `jwt: {secret: "` + testSecret + `"}` + "\nnotify: {lockout_email: true}", "smtp.host"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeYAML(t, tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_OpensSealedSecrets(t *testing.T) {
	const key = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="
	box, err := secretbox.New(key)
	require.NoError(t, err)
	sealed, err := box.Seal(testSecret)
	require.NoError(t, err)

	t.Setenv(secretbox.EnvVar, key)
	t.Setenv("JWT_SECRET", sealed)
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, testSecret, c.JWT.Secret)
}

func TestLoad_SealedSecretWithoutKey(t *testing.T) {
	t.Setenv(secretbox.EnvVar, "")
	t.Setenv("JWT_SECRET", "enc:abc|def")
	_, err := Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, secretbox.ErrNoKey)
	assert.Contains(t, err.Error(), "jwt.secret")
}
