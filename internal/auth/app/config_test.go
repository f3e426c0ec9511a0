package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickqr/qrbot/internal/auth/service"
)

func validConfig() Config {
	return Config{
		Issuer:             "qrbot-auth",
		JWTSecret:          "0123456789abcdef0123456789abcdef",
		TokenTTL:           24 * time.Hour,
		LockoutThreshold:   5,
		LockoutDuration:    30 * time.Minute,
		PasswordMinLength:  8,
		PasswordMinClasses: 2,
		RateLimits: map[string]service.Limit{
			service.ActionLogin: {Requests: 5, Window: 5 * time.Minute},
		},
		Env:      "prod",
		LogLevel: "info",
		Port:     8080,
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestConfigValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short jwt secret in prod", func(c *Config) { c.JWTSecret = "too-short" }},
		{"zero token ttl", func(c *Config) { c.TokenTTL = 0 }},
		{"zero lockout threshold", func(c *Config) { c.LockoutThreshold = 0 }},
		{"negative lockout duration", func(c *Config) { c.LockoutDuration = -time.Minute }},
		{"too many classes", func(c *Config) { c.PasswordMinClasses = 5 }},
		{"zero-request limit", func(c *Config) {
			c.RateLimits[service.ActionLogin] = service.Limit{Requests: 0, Window: time.Minute}
		}},
		{"unknown log level", func(c *Config) { c.LogLevel = "chatty" }},
		{"port out of range", func(c *Config) { c.Port = 70000 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigRejectsUnparsableValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "AUTH_LOCKOUT_DURATION", "30x"},
		{"bad integer", "AUTH_LOCKOUT_THRESHOLD", "five"},
		{"bad boolean", "RATELIMIT_FAIL_OPEN", "yep"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}

func TestLoadConfigAcceptsBareMinutes(t *testing.T) {
	t.Setenv("AUTH_LOCKOUT_DURATION", "45")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, cfg.LockoutDuration)
}

func TestConfigValidateDevAllowsEmptySecret(t *testing.T) {
	cfg := validConfig()
	cfg.Env = "dev"
	cfg.JWTSecret = ""
	assert.NoError(t, cfg.Validate())
}
