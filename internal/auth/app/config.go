package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/quickqr/qrbot/internal/auth/service"
	"github.com/quickqr/qrbot/pkg/slogx"
)

type Config struct {
	Issuer    string        // Issuer claim for session tokens (default: qrbot-auth)
	JWTSecret string        // Required outside dev: HS256 signing secret, 32+ chars
	TokenTTL  time.Duration // Session token lifetime (default: 24h)

	LockoutThreshold int           // Consecutive failures before lockout (default: 5)
	LockoutDuration  time.Duration // How long a lockout lasts (default: 30m)

	PasswordMinLength  int // Minimum password length (default: 8)
	PasswordMinClasses int // Minimum distinct character classes (default: 2)

	Argon2MemoryKiB   int // Argon2id memory cost (default: 19456)
	Argon2Iterations  int // Argon2id time cost (default: 2)
	Argon2Parallelism int // Argon2id lanes (default: 1)

	RateLimits        map[string]service.Limit // Per-action fixed-window quotas
	RateLimitFailOpen bool                     // Allow requests when the kv store is down (default: false)

	RedisAddr     string // Optional: when set, counters and the token registry use Redis
	RedisPassword string
	RedisDB       int

	DatabaseFile string // Path to the SQLite database file (default: ./auth.db)
	PepperFile   string // Path to the password pepper file (default: ./pepper)

	SentryDSN string // Optional: operational error reporting

	AuditRetention time.Duration // 0 disables pruning of security events (default: 0)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

// envLoader reads typed environment values and collects parse failures so a
// typo surfaces at startup instead of silently running on a default.
type envLoader struct {
	errs []error
}

// LoadConfig reads configuration from the environment, with a .env file as
// fallback for local development. A set-but-unparsable variable is an error.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var e envLoader
	cfg := Config{
		Issuer:    e.str("AUTH_ISSUER", "qrbot-auth"),
		JWTSecret: os.Getenv("AUTH_JWT_SECRET"),
		TokenTTL:  e.duration("AUTH_TOKEN_TTL", 24*time.Hour),

		LockoutThreshold: e.integer("AUTH_LOCKOUT_THRESHOLD", service.DefaultLockoutThreshold),
		LockoutDuration:  e.duration("AUTH_LOCKOUT_DURATION", service.DefaultLockoutDuration),

		PasswordMinLength:  e.integer("AUTH_PASSWORD_MIN_LENGTH", 8),
		PasswordMinClasses: e.integer("AUTH_PASSWORD_MIN_CLASSES", 2),

		Argon2MemoryKiB:   e.integer("ARGON2_MEMORY_KIB", 19*1024),
		Argon2Iterations:  e.integer("ARGON2_ITERATIONS", 2),
		Argon2Parallelism: e.integer("ARGON2_PARALLELISM", 1),

		RateLimits: map[string]service.Limit{
			service.ActionLogin: {
				Requests: int64(e.integer("RATELIMIT_LOGIN_REQUESTS", 5)),
				Window:   e.duration("RATELIMIT_LOGIN_WINDOW", 5*time.Minute),
			},
			service.ActionQRGenerate: {
				Requests: int64(e.integer("RATELIMIT_QR_GENERATE_REQUESTS", 10)),
				Window:   e.duration("RATELIMIT_QR_GENERATE_WINDOW", time.Minute),
			},
			service.ActionAPI: {
				Requests: int64(e.integer("RATELIMIT_API_REQUESTS", 60)),
				Window:   e.duration("RATELIMIT_API_WINDOW", time.Minute),
			},
		},
		RateLimitFailOpen: e.boolean("RATELIMIT_FAIL_OPEN", false),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       e.integer("REDIS_DB", 0),

		DatabaseFile: e.str("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:   e.str("AUTH_PEPPER_FILE", "pepper"),

		SentryDSN: os.Getenv("SENTRY_DSN"),

		AuditRetention: e.duration("AUDIT_RETENTION", 0),

		Env:                  e.str("ENV", "dev"),
		LogLevel:             e.str("LOG_LEVEL", "info"),
		LogFormat:            e.str("LOG_FORMAT", "json"),
		Port:                 e.integer("PORT", 8080),
		ShutdownGracePeriod:  e.duration("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: e.duration("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	if err := errors.Join(e.errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate fails fast on configuration that would let the service start in
// an insecure or broken state.
func (c Config) Validate() error {
	if c.Env != "dev" {
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 characters outside dev (got %d)", len(c.JWTSecret))
		}
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive")
	}
	if c.LockoutThreshold < 1 {
		return fmt.Errorf("AUTH_LOCKOUT_THRESHOLD must be at least 1")
	}
	if c.LockoutDuration <= 0 {
		return fmt.Errorf("AUTH_LOCKOUT_DURATION must be positive")
	}
	if c.PasswordMinLength < 1 {
		return fmt.Errorf("AUTH_PASSWORD_MIN_LENGTH must be at least 1")
	}
	if c.PasswordMinClasses < 1 || c.PasswordMinClasses > 4 {
		return fmt.Errorf("AUTH_PASSWORD_MIN_CLASSES must be 1-4")
	}
	for action, limit := range c.RateLimits {
		if limit.Requests < 1 || limit.Window <= 0 {
			return fmt.Errorf("rate limit for %q must have positive requests and window", action)
		}
	}
	if !slogx.KnownLevel(c.LogLevel) {
		return fmt.Errorf("LOG_LEVEL %q is not a known level", c.LogLevel)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT %d is out of range", c.Port)
	}
	return nil
}

func (e *envLoader) str(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (e *envLoader) integer(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", key, value))
		return defaultValue
	}
	return intValue
}

func (e *envLoader) boolean(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a boolean", key, value))
		return defaultValue
	}
	return boolValue
}

func (e *envLoader) duration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Accept duration syntax ("30m", "24h") and bare integers as minutes.
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	e.errs = append(e.errs, fmt.Errorf("%s: %q is not a duration", key, value))
	return defaultValue
}
