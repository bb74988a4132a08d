package config

import (
	"github.com/garyjia/travel-approval/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Redis: container.RedisConfig{
			Enabled:       c.Redis.Enabled,
			Address:       c.Redis.Address,
			Password:      c.Redis.Password,
			DB:            c.Redis.DB,
			ChannelPrefix: c.Redis.ChannelPrefix,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
		Workflow: container.WorkflowConfig{
			ReadTimeout:       c.Workflow.ReadTimeout,
			MaxInFlightEvents: c.Workflow.MaxInFlightEvents,
		},
		Notifications: container.NotificationConfig{
			BaseActionURL: c.Notifications.BaseActionURL,
		},
	}
}
