package config

import (
	"github.com/garyjia/stock-approval/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			AutoMigrate:     c.Database.AutoMigrate,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
		Registry: container.RegistryConfig{
			CacheTTL: c.Registry.CacheTTL,
		},
		Metrics: container.MetricsConfig{
			Enabled: c.Metrics.Enabled,
			Path:    c.Metrics.Path,
		},
		Worker: container.WorkerConfig{
			ReorderInterval: c.Worker.ReorderInterval,
		},
	}
}
