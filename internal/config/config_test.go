package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setBaseEnv sets the one variable without a default.
func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret-at-least-16-chars!!")
}

func TestFromEnv_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "company-ingest.db", cfg.Database.DSN())
	assert.Equal(t, "HS256", cfg.Auth.JWTAlgorithm)
	assert.Equal(t, 30*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTokenTTL)
	assert.False(t, cfg.Auth.LoginErrorFlags)
	assert.Equal(t, int64(512<<20), cfg.Ingest.MaxUploadBytes)
	assert.Equal(t, 5000, cfg.Ingest.BatchSize)
	assert.Equal(t, 2, cfg.Ingest.Workers)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestFromEnv_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/db?sslmode=disable")
	t.Setenv("JWT_ALGORITHM", "hs512")
	t.Setenv("LOGIN_ERROR_FLAGS", "true")
	t.Setenv("INGEST_WORKERS", "4")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,,")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr())
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://u:p@localhost:5432/db?sslmode=disable", cfg.Database.DSN())
	assert.Equal(t, "HS512", cfg.Auth.JWTAlgorithm)
	assert.True(t, cfg.Auth.LoginErrorFlags)
	assert.Equal(t, 4, cfg.Ingest.Workers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}},
		{"short secret", map[string]string{"JWT_SECRET": "short"}},
		{"bad algorithm", map[string]string{"JWT_ALGORITHM": "RS256"}},
		{"postgres without url", map[string]string{"DB_DRIVER": "postgres"}},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}},
		{"non-numeric workers", map[string]string{"INGEST_WORKERS": "two"}},
		{"zero workers", map[string]string{"INGEST_WORKERS": "0"}},
		{"bad duration", map[string]string{"ACCESS_TOKEN_TTL": "thirty"}},
		{"refresh shorter than access", map[string]string{"ACCESS_TOKEN_TTL": "2h", "REFRESH_TOKEN_TTL": "1h"}},
		{"bad bool", map[string]string{"LOGIN_ERROR_FLAGS": "maybe"}},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"weak password iterations", map[string]string{"PASSWORD_ITERATIONS": "10"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
