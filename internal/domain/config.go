package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string        `mapstructure:"environment"`
	Server      ServerConfig  `mapstructure:"server"`
	Storage     StorageConfig `mapstructure:"storage"`
	Model       ModelConfig   `mapstructure:"model"`
	Cache       CacheConfig   `mapstructure:"cache"`
	Triage      TriageConfig  `mapstructure:"triage"`
	Logging     LoggingConfig `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	RateLimitPerSec   int           `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst    int           `mapstructure:"rate_limit_burst"`
	RateLimitDisabled bool          `mapstructure:"rate_limit_disabled"`
}

// StorageConfig selects and configures the prediction history store.
// Driver is either "postgres" or "sqlite".
type StorageConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

// PostgresConfig represents database connection configuration
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SQLiteConfig represents the embedded store configuration
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// ModelConfig controls the synthetic training run performed at startup.
type ModelConfig struct {
	Seed            int64 `mapstructure:"seed"`
	Examples        int   `mapstructure:"examples"`
	Trees           int   `mapstructure:"trees"`
	MaxDepth        int   `mapstructure:"max_depth"`
	MinSamplesSplit int   `mapstructure:"min_samples_split"`
	MinSamplesLeaf  int   `mapstructure:"min_samples_leaf"`
}

// CacheConfig represents the prediction result cache configuration
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	MemorySize  int           `mapstructure:"memory_size"`
}

// TriageConfig represents the chat-completion triage assistant configuration
type TriageConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"`
	MaxTokens int           `mapstructure:"max_tokens"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
