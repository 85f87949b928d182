// Package config loads application configuration from defaults, an optional
// YAML file, environment variables and command-line flags, in that order of
// precedence (later wins), and validates it on startup.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Import   ImportConfig   `koanf:"import"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `koanf:"host" env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `koanf:"port" env:"SERVER_PORT" default:"8080"`

	ReadTimeout time.Duration `koanf:"read_timeout" env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is 0 by default so progress streams stay open.
	WriteTimeout time.Duration `koanf:"write_timeout" env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	IdleTimeout     time.Duration `koanf:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `koanf:"request_timeout" env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// APIKeys is a comma-separated list. When empty the API is open.
	APIKeys string `koanf:"api_keys" env:"SERVER_API_KEYS"`

	// TrustedProxies is a comma-separated list of CIDRs or IPs whose
	// X-Real-IP and X-Forwarded-For headers are believed.
	TrustedProxies string `koanf:"trusted_proxies" env:"SERVER_TRUSTED_PROXIES"`

	// RateLimit is requests per client per RateWindow; 0 disables limiting.
	RateLimit  int           `koanf:"rate_limit" env:"SERVER_RATE_LIMIT" default:"100"`
	RateWindow time.Duration `koanf:"rate_window" env:"SERVER_RATE_WINDOW" default:"1m"`
}

// DatabaseConfig holds destination database settings.
type DatabaseConfig struct {
	// Driver selects the store: postgres (COPY via pgx), sqlite, sqlite3,
	// duckdb, or memory (nothing persists; used for dry runs).
	Driver string `koanf:"driver" env:"DB_DRIVER" default:"postgres"`

	// URL is the connection string or file path. DB_URL is accepted too.
	// Required for every driver except memory.
	URL string `koanf:"url" env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `koanf:"max_conns" env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `koanf:"min_conns" env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `koanf:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies pending migrations on startup.
	AutoMigrate bool `koanf:"auto_migrate" env:"DB_AUTO_MIGRATE" default:"false"`
}

// ImportConfig holds import pipeline settings.
type ImportConfig struct {
	// CommitThreshold is the number of rows buffered before a flush.
	CommitThreshold int `koanf:"commit_threshold" env:"IMPORT_COMMIT_THRESHOLD" default:"50000"`

	MaxFileSize   int64         `koanf:"max_file_size" env:"IMPORT_MAX_FILE_SIZE" default:"104857600"`
	MaxConcurrent int           `koanf:"max_concurrent" env:"IMPORT_MAX_CONCURRENT" default:"4"`
	MaxWaitTime   time.Duration `koanf:"max_wait_time" env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single run; 0 disables it.
	Timeout time.Duration `koanf:"timeout" env:"IMPORT_TIMEOUT" default:"30m"`

	ProgressInterval time.Duration `koanf:"progress_interval" env:"IMPORT_PROGRESS_INTERVAL" default:"250ms"`
	Encoding         string        `koanf:"encoding" env:"IMPORT_ENCODING" default:"utf-8"`
	MapFile          string        `koanf:"map_file" env:"IMPORT_MAP_FILE"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level" env:"LOG_LEVEL" default:"info"`

	// Format is text or json.
	Format string `koanf:"format" env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// APIKeyList returns the configured API keys.
func (c *ServerConfig) APIKeyList() []string {
	return splitList(c.APIKeys)
}

// TrustedProxyList returns the configured trusted proxy networks.
func (c *ServerConfig) TrustedProxyList() []string {
	return splitList(c.TrustedProxies)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var validDrivers = map[string]bool{
	"postgres": true, "postgresql": true, "pgx": true,
	"sqlite": true, "sqlite3": true, "duckdb": true, "memory": true,
}

// IsPostgres reports whether the driver targets PostgreSQL.
func (c *DatabaseConfig) IsPostgres() bool {
	switch strings.ToLower(c.Driver) {
	case "postgres", "postgresql", "pgx":
		return true
	}
	return false
}

// IsMemory reports whether the in-process store is selected.
func (c *DatabaseConfig) IsMemory() bool {
	return strings.EqualFold(c.Driver, "memory")
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.URL == "" && !c.Database.IsMemory() {
		errs = append(errs, "DATABASE_URL is required")
	}
	if !validDrivers[strings.ToLower(c.Database.Driver)] {
		errs = append(errs, fmt.Sprintf("DB_DRIVER (%q) must be one of: postgres, sqlite, sqlite3, duckdb, memory", c.Database.Driver))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "SERVER_RATE_LIMIT must be non-negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow <= 0 {
		errs = append(errs, "SERVER_RATE_WINDOW must be positive when rate limiting is on")
	}

	if c.Import.CommitThreshold <= 0 {
		errs = append(errs, "IMPORT_COMMIT_THRESHOLD must be positive")
	}
	if c.Import.MaxFileSize <= 0 {
		errs = append(errs, "IMPORT_MAX_FILE_SIZE must be positive")
	}
	if c.Import.MaxConcurrent <= 0 {
		errs = append(errs, "IMPORT_MAX_CONCURRENT must be positive")
	}
	if c.Import.MaxWaitTime <= 0 {
		errs = append(errs, "IMPORT_MAX_WAIT_TIME must be positive")
	}
	if c.Import.Timeout < 0 {
		errs = append(errs, "IMPORT_TIMEOUT must be non-negative")
	}
	if c.Import.ProgressInterval < 0 {
		errs = append(errs, "IMPORT_PROGRESS_INTERVAL must be non-negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// String returns the config for logging with the database URL masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d, APIKeys: %d}, ", c.Server.Host, c.Server.Port, len(c.Server.APIKeyList()))
	fmt.Fprintf(&b, "Database: {Driver: %q, URL: [MASKED], MaxConns: %d}, ", c.Database.Driver, c.Database.MaxConns)
	fmt.Fprintf(&b, "Import: {CommitThreshold: %d, MaxConcurrent: %d, MaxFileSize: %d}, ",
		c.Import.CommitThreshold, c.Import.MaxConcurrent, c.Import.MaxFileSize)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
