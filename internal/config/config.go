package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Registry RegistryConfig `mapstructure:"registry"`
	Seed     SeedConfig     `mapstructure:"seed"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// RegistryConfig holds workflow registry configuration
type RegistryConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// SeedConfig holds seed file configuration
type SeedConfig struct {
	Path    string `mapstructure:"path"`
	OnStart bool   `mapstructure:"on_start"`
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// WorkerConfig holds background worker configuration
type WorkerConfig struct {
	ReorderInterval time.Duration `mapstructure:"reorder_interval"`
}

// Load loads configuration from file and environment variables.
// An empty configPath uses defaults and the environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("STOCK_APPROVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/stock_approval.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("registry.cache_ttl", time.Minute)

	v.SetDefault("seed.path", "configs/seed.yaml")
	v.SetDefault("seed.on_start", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("worker.reorder_interval", 5*time.Minute)
}

// bindEnvVars binds the short environment names used by deployments
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"database.path":   "DATABASE_PATH",
		"server.port":     "PORT",
		"logger.level":    "LOG_LEVEL",
		"seed.path":       "SEED_PATH",
		"metrics.enabled": "METRICS_ENABLED",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, "STOCK_APPROVAL_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database.max_open_conns must be at least 1")
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console")
	}

	if c.Registry.CacheTTL < 0 {
		return fmt.Errorf("registry.cache_ttl cannot be negative")
	}
	if c.Seed.OnStart && c.Seed.Path == "" {
		return fmt.Errorf("seed.path is required when seed.on_start is set")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	if c.Worker.ReorderInterval < 0 {
		return fmt.Errorf("worker.reorder_interval cannot be negative")
	}

	return nil
}
