package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted in STORE_DRIVER.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	HTTPAddr    string
	StoreDriver string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	SQLitePath string

	AdminToken  string
	CORSOrigins []string

	GeocodeDelayMs int
	MaxRetries     int

	CatalogPath     string
	LogLevel        string
	DevelopmentMode bool

	// EnvFileLoaded reports whether a .env file was found.
	EnvFileLoaded bool
}

// Load reads the .env file, if any, and returns a populated Config struct.
func Load() *Config {
	loaded := godotenv.Load() == nil

	dev := getEnvBool("DEVELOPMENT_MODE", false)
	defaultDriver := StorePostgres
	if dev {
		defaultDriver = StoreMemory
	}

	return &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8000"),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", defaultDriver)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "survey"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "survey_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		SQLitePath: getEnv("SQLITE_PATH", "./survey.db"),

		AdminToken:  getEnv("ADMIN_TOKEN", ""),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:3000"}),

		GeocodeDelayMs: getEnvInt("GEOCODE_DELAY_MS", 500),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),

		CatalogPath:     getEnv("CATALOG_PATH", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DevelopmentMode: dev,

		EnvFileLoaded: loaded,
	}
}

// Validate reports every setting that would prevent the service from starting.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case StorePostgres:
		if c.PostgresHost == "" || c.PostgresDB == "" {
			errs = append(errs, errors.New("POSTGRES_HOST and POSTGRES_DB are required for the postgres store"))
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q: want postgres, sqlite or memory", c.StoreDriver))
	}

	if c.AdminToken == "" && !c.DevelopmentMode {
		errs = append(errs, errors.New("ADMIN_TOKEN is required outside development mode"))
	}
	if c.GeocodeDelayMs < 0 {
		errs = append(errs, fmt.Errorf("GEOCODE_DELAY_MS must not be negative, got %d", c.GeocodeDelayMs))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES must be at least 1, got %d", c.MaxRetries))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// DSN returns the connection string for the configured SQL driver.
func (c *Config) DSN() string {
	if c.StoreDriver == StoreSQLite {
		return c.SQLitePath
	}
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// GeocodeDelay is the pause between background geocoding requests.
func (c *Config) GeocodeDelay() time.Duration {
	return time.Duration(c.GeocodeDelayMs) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
