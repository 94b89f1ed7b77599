// Package config loads runtime settings from the environment.
//
// Values come from process environment variables, optionally seeded from a
// .env file in the working directory (the file is optional; real env vars
// win over it). The result is one explicit *Config that main passes to
// constructors. There is no package-level singleton.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Ingest   IngestConfig
	CORS     CORSConfig
}

// ServerConfig holds HTTP server and logging settings.
type ServerConfig struct {
	Env             string        `validate:"oneof=development production test"`
	Port            string        `validate:"required,numeric"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
	LogLevel        string        `validate:"oneof=debug info warn error"`
	LogFormat       string        `validate:"oneof=text json"`
}

// DatabaseConfig selects and tunes the SQL store.
type DatabaseConfig struct {
	Driver       string `validate:"oneof=sqlite postgres"`
	Path         string `validate:"required_if=Driver sqlite"`
	URL          string `validate:"required_if=Driver postgres"`
	MaxOpenConns int    `validate:"gte=1,lte=1000"`
}

// AuthConfig holds token and password settings.
type AuthConfig struct {
	JWTSecret          string        `validate:"required,min=16"`
	JWTAlgorithm       string        `validate:"oneof=HS256 HS384 HS512"`
	JWTIssuer          string        `validate:"required"`
	AccessTokenTTL     time.Duration `validate:"gt=0"`
	RefreshTokenTTL    time.Duration `validate:"gtfield=AccessTokenTTL"`
	PasswordIterations int           `validate:"gte=1000"`

	// LoginErrorFlags restores the legacy login responses that tell an
	// unknown email (flag 1) apart from a wrong password (flag 2).
	LoginErrorFlags bool
}

// IngestConfig controls CSV upload storage and the worker pool.
type IngestConfig struct {
	UploadDir       string        `validate:"required"`
	MaxUploadBytes  int64         `validate:"gt=0"`
	BatchSize       int           `validate:"gte=1,lte=100000"`
	Workers         int           `validate:"gte=1,lte=64"`
	QueueSize       int           `validate:"gte=1"`
	Retention       time.Duration `validate:"gt=0"`
	JanitorSchedule string        `validate:"required"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `validate:"min=1"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads .env (if present) and the environment, applies defaults, and
// validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	var e envReader

	cfg := &Config{
		Server: ServerConfig{
			Env:             e.string("ENV", "development"),
			Port:            e.string("PORT", "8080"),
			ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 30*time.Second),
			LogLevel:        strings.ToLower(e.string("LOG_LEVEL", "info")),
			LogFormat:       strings.ToLower(e.string("LOG_FORMAT", "text")),
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(e.string("DB_DRIVER", "sqlite")),
			Path:         e.string("DB_PATH", "company-ingest.db"),
			URL:          e.string("DATABASE_URL", ""),
			MaxOpenConns: e.int("DB_MAX_OPEN_CONNS", 10),
		},
		Auth: AuthConfig{
			JWTSecret:          e.string("JWT_SECRET", ""),
			JWTAlgorithm:       strings.ToUpper(e.string("JWT_ALGORITHM", "HS256")),
			JWTIssuer:          e.string("JWT_ISSUER", "company-ingest"),
			AccessTokenTTL:     e.duration("ACCESS_TOKEN_TTL", 30*time.Minute),
			RefreshTokenTTL:    e.duration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
			PasswordIterations: e.int("PASSWORD_ITERATIONS", 600000),
			LoginErrorFlags:    e.bool("LOGIN_ERROR_FLAGS", false),
		},
		Ingest: IngestConfig{
			UploadDir:       e.string("UPLOAD_DIR", "uploads"),
			MaxUploadBytes:  e.int64("MAX_UPLOAD_BYTES", 512<<20),
			BatchSize:       e.int("INGEST_BATCH_SIZE", 5000),
			Workers:         e.int("INGEST_WORKERS", 2),
			QueueSize:       e.int("INGEST_QUEUE_SIZE", 16),
			Retention:       e.duration("UPLOAD_RETENTION", 24*time.Hour),
			JanitorSchedule: e.string("JANITOR_SCHEDULE", "@every 1h"),
		},
		CORS: CORSConfig{
			AllowedOrigins: e.list("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
	}

	if err := errors.Join(e.errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct-tag constraints on every section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: invalid configuration: %w", err)
	}
	return nil
}

// Addr is the listen address for http.Server.
func (c *Config) Addr() string {
	return ":" + c.Server.Port
}

// DSN returns the data source name for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "postgres" {
		return d.URL
	}
	return d.Path
}

// envReader looks up typed values and remembers every parse failure, so a
// typo in one variable is reported instead of silently replaced by its
// default.
type envReader struct {
	errs []error
}

func (e *envReader) string(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *envReader) int(key string, def int) int {
	v := e.string(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (e *envReader) int64(key string, def int64) int64 {
	v := e.string(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (e *envReader) bool(key string, def bool) bool {
	v := e.string(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := e.string(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}

// list splits a comma-separated value, dropping empty items.
func (e *envReader) list(key string, def []string) []string {
	v := e.string(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
