// Package config reads service settings from the environment, optionally
// seeded from a .env file.
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

type Config struct {
	ServiceName string
	HTTPAddr    string
	// GRPCAddr is the health/reflection listener; empty disables it.
	GRPCAddr string
	DBPath   string

	RabbitURL      string
	RabbitExchange string

	GoogleBooksURL    string
	GoogleBooksAPIKey string
	CatalogOffline    bool
	CatalogTimeout    time.Duration
	CatalogCacheSize  int
	CatalogCacheTTL   time.Duration

	JWTSecret string
	JWTIssuer string
	// ScannerToken, when set, must accompany every scan.
	ScannerToken string

	CORSAllowedOrigins []string
	LogLevel           string
	LogFormat          string

	ShutdownGrace       time.Duration
	DecisionMaxAttempts int
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load reads the environment. Files named in dotenv (default ".env") are
// loaded first when they exist; real environment variables win.
func Load(dotenv ...string) (Config, error) {
	if len(dotenv) == 0 {
		dotenv = []string{".env"}
	}
	for _, f := range dotenv {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return Config{}, fmt.Errorf("config: load %s: %w", f, err)
			}
		}
	}

	var errs []error
	dur := func(key, def string) time.Duration {
		d, err := time.ParseDuration(getenv(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}
	num := func(key, def string) int {
		n, err := strconv.Atoi(getenv(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return n
	}
	flag := func(key, def string) bool {
		b, err := strconv.ParseBool(getenv(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return b
	}

	cfg := Config{
		ServiceName: getenv("CAMPUSBOOKS_SERVICE_NAME", "campusbooks"),
		HTTPAddr:    getenv("CAMPUSBOOKS_HTTP_ADDR", ":8080"),
		GRPCAddr:    os.Getenv("CAMPUSBOOKS_GRPC_ADDR"),
		DBPath:      getenv("CAMPUSBOOKS_DB_PATH", "campusbooks.db"),

		RabbitURL:      os.Getenv("RABBITMQ_URL"),
		RabbitExchange: getenv("RABBITMQ_EXCHANGE", "campusbooks.events"),

		GoogleBooksURL:    getenv("GOOGLE_BOOKS_API_URL", "https://www.googleapis.com/books/v1/volumes"),
		GoogleBooksAPIKey: os.Getenv("GOOGLE_BOOKS_API_KEY"),
		CatalogOffline:    flag("CATALOG_OFFLINE", "false"),
		CatalogTimeout:    dur("CATALOG_TIMEOUT", "5s"),
		CatalogCacheSize:  num("CATALOG_CACHE_SIZE", "1024"),
		CatalogCacheTTL:   dur("CATALOG_CACHE_TTL", "24h"),

		JWTSecret:    os.Getenv("AUTH_JWT_SECRET"),
		JWTIssuer:    os.Getenv("AUTH_JWT_ISSUER"),
		ScannerToken: os.Getenv("SCANNER_TOKEN"),

		CORSAllowedOrigins: splitList(getenv("CORS_ALLOWED_ORIGINS", "*")),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		LogFormat:          getenv("LOG_FORMAT", "console"),

		ShutdownGrace:       dur("SHUTDOWN_GRACE", "10s"),
		DecisionMaxAttempts: num("DECISION_MAX_ATTEMPTS", "4"),
	}
	if _, set := os.LookupEnv("CAMPUSBOOKS_GRPC_ADDR"); !set {
		cfg.GRPCAddr = ":50061"
	}
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// Validate reports settings the server cannot run without.
func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("CAMPUSBOOKS_HTTP_ADDR must not be empty"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("CAMPUSBOOKS_DB_PATH must not be empty"))
	}
	if c.DecisionMaxAttempts < 1 {
		errs = append(errs, errors.New("DECISION_MAX_ATTEMPTS must be at least 1"))
	}
	if c.CatalogTimeout <= 0 {
		errs = append(errs, errors.New("CATALOG_TIMEOUT must be positive"))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
