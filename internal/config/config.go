package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/healthsense-prediction-server/internal/domain"
)

// Manager loads and validates application configuration using Viper
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	// Set configuration file name and paths
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/healthsense-prediction-server/")

	// Set environment variable prefix and enable automatic env binding
	viper.SetEnvPrefix("HEALTHSENSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values
	m.setDefaults()

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal configuration into struct
	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.rate_limit_per_sec", 20)
	viper.SetDefault("server.rate_limit_burst", 40)
	viper.SetDefault("server.rate_limit_disabled", false)

	// Storage defaults: embedded store unless postgres is configured
	viper.SetDefault("storage.driver", "sqlite")
	viper.SetDefault("storage.sqlite.path", "./data/predictions.db")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", 5432)
	viper.SetDefault("storage.postgres.database", "healthsense")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "")
	viper.SetDefault("storage.postgres.ssl_mode", "disable")
	viper.SetDefault("storage.postgres.max_conns", 25)
	viper.SetDefault("storage.postgres.min_conns", 5)
	viper.SetDefault("storage.postgres.conn_max_lifetime", "5m")
	viper.SetDefault("storage.postgres.conn_max_idle_time", "5m")
	viper.SetDefault("storage.postgres.migrations_path", "./migrations")

	// Model defaults match the stock classifier hyperparameters
	viper.SetDefault("model.seed", 42)
	viper.SetDefault("model.examples", 2500)
	viper.SetDefault("model.trees", 200)
	viper.SetDefault("model.max_depth", 15)
	viper.SetDefault("model.min_samples_split", 4)
	viper.SetDefault("model.min_samples_leaf", 2)

	// Cache defaults
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.redis_url", "")
	viper.SetDefault("cache.default_ttl", "24h")
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.pool_timeout", "4s")
	viper.SetDefault("cache.memory_size", 512)

	// Triage assistant defaults
	viper.SetDefault("triage.enabled", false)
	viper.SetDefault("triage.base_url", "https://api.openai.com/v1/")
	viper.SetDefault("triage.model", "gpt-5")
	viper.SetDefault("triage.timeout", "30s")
	viper.SetDefault("triage.rate_limit", 5)
	viper.SetDefault("triage.max_tokens", 1024)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetStorageConfig returns storage configuration
func (m *Manager) GetStorageConfig() *domain.StorageConfig {
	return &m.config.Storage
}

// GetModelConfig returns model training configuration
func (m *Manager) GetModelConfig() *domain.ModelConfig {
	return &m.config.Model
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Storage.Driver {
	case "postgres":
		if config.Storage.Postgres.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if config.Storage.Postgres.Database == "" {
			return fmt.Errorf("postgres database name is required")
		}
		if config.Storage.Postgres.Username == "" {
			return fmt.Errorf("postgres username is required")
		}
	case "sqlite":
		if config.Storage.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	default:
		return fmt.Errorf("unknown storage driver: %s", config.Storage.Driver)
	}

	if config.Model.Trees <= 0 {
		return fmt.Errorf("model.trees must be positive, got %d", config.Model.Trees)
	}
	if config.Model.MaxDepth <= 0 {
		return fmt.Errorf("model.max_depth must be positive, got %d", config.Model.MaxDepth)
	}
	if config.Model.Examples <= 0 {
		return fmt.Errorf("model.examples must be positive, got %d", config.Model.Examples)
	}

	if config.Triage.Enabled && config.Triage.BaseURL == "" {
		return fmt.Errorf("triage base URL is required when triage is enabled")
	}
	if config.Cache.Enabled && config.Cache.MemorySize <= 0 {
		return fmt.Errorf("cache.memory_size must be positive, got %d", config.Cache.MemorySize)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted postgres connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Storage.Postgres
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetDatabaseURL returns the postgres URL form used by the migration runner
func (m *Manager) GetDatabaseURL() string {
	db := m.config.Storage.Postgres
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.Username, db.Password, db.Host, db.Port, db.Database, db.SSLMode)
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(viper.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(viper.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}
