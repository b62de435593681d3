// Package container provides dependency injection and lifecycle management
// for the stock approval engine.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Registry RegistryConfig
	Metrics  MetricsConfig
	Worker   WorkerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// AutoMigrate applies the embedded migrations during Start
	AutoMigrate bool
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RegistryConfig holds workflow registry settings.
type RegistryConfig struct {
	// CacheTTL bounds how long workflow and approver lookups are cached; 0 disables caching
	CacheTTL time.Duration
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	// ReorderInterval is how often the catalog is scanned for low stock; 0 disables the scan
	ReorderInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/stock_approval.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			AutoMigrate:     true,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Registry: RegistryConfig{
			CacheTTL: time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Worker: WorkerConfig{
			ReorderInterval: 5 * time.Minute,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database.max_open_conns must be at least 1")
	}
	if c.Registry.CacheTTL < 0 {
		return fmt.Errorf("registry.cache_ttl cannot be negative")
	}
	if c.Worker.ReorderInterval < 0 {
		return fmt.Errorf("worker.reorder_interval cannot be negative")
	}
	if c.Metrics.Enabled && c.Metrics.Path == "" {
		return fmt.Errorf("metrics.path is required when metrics are enabled")
	}
	return nil
}
