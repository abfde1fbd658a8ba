package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"HTTP_ADDR", "STORE_DRIVER", "POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_USER",
		"POSTGRES_PASSWORD", "POSTGRES_DB", "POSTGRES_SSLMODE", "SQLITE_PATH", "ADMIN_TOKEN",
		"CORS_ORIGINS", "GEOCODE_DELAY_MS", "MAX_RETRIES", "CATALOG_PATH", "LOG_LEVEL",
		"DEVELOPMENT_MODE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, 500*time.Millisecond, cfg.GeocodeDelay())
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.False(t, cfg.DevelopmentMode)
	assert.Equal(t, "host=localhost port=5432 user=survey password= dbname=survey_db sslmode=disable", cfg.DSN())
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/var/lib/survey.db")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("GEOCODE_DELAY_MS", "250")
	t.Setenv("MAX_RETRIES", "not-a-number")
	t.Setenv("DEVELOPMENT_MODE", "true")

	cfg := Load()

	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, "/var/lib/survey.db", cfg.DSN())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.GeocodeDelay())
	assert.Equal(t, 3, cfg.MaxRetries, "unparsable ints fall back to the default")
	assert.True(t, cfg.DevelopmentMode)
}

func TestDevelopmentModeDefaultsToMemoryStore(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEVELOPMENT_MODE", "1")

	cfg := Load()
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.NoError(t, cfg.Validate(), "no admin token needed in development")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			StoreDriver:  StorePostgres,
			PostgresHost: "db",
			PostgresDB:   "survey",
			AdminToken:   "secret",
			MaxRetries:   3,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown driver", func(c *Config) { c.StoreDriver = "mongo" }, `STORE_DRIVER "mongo"`},
		{"missing token", func(c *Config) { c.AdminToken = "" }, "ADMIN_TOKEN is required"},
		{"missing db", func(c *Config) { c.PostgresDB = "" }, "POSTGRES_DB are required"},
		{"sqlite without path", func(c *Config) { c.StoreDriver = StoreSQLite }, "SQLITE_PATH is required"},
		{"negative delay", func(c *Config) { c.GeocodeDelayMs = -1 }, "GEOCODE_DELAY_MS"},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }, "MAX_RETRIES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
