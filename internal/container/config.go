// Package container provides dependency injection and lifecycle management
// for the travel approval service following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Redis change feed configuration
	Redis RedisConfig

	// Server configuration
	Server ServerConfig

	// Decision processing configuration
	Workflow WorkflowConfig

	// Notification configuration
	Notifications NotificationConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file, or ":memory:"
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// MigrationsDir is the path to migration files; empty uses the embedded schema
	MigrationsDir string
}

// RedisConfig holds the change feed settings.
type RedisConfig struct {
	Enabled       bool
	Address       string
	Password      string
	DB            int
	ChannelPrefix string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration
}

// WorkflowConfig holds decision processing settings.
type WorkflowConfig struct {
	// ReadTimeout bounds loading the request and actor for a decision
	ReadTimeout time.Duration

	// MaxInFlightEvents caps concurrently running async event handlers; 0 is unbounded
	MaxInFlightEvents int
}

// NotificationConfig holds notification settings.
type NotificationConfig struct {
	// BaseActionURL prefixes the link stored on each notification
	BaseActionURL string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/travel.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Address:       "localhost:6379",
			ChannelPrefix: "travel",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Workflow: WorkflowConfig{
			ReadTimeout:       5 * time.Second,
			MaxInFlightEvents: 64,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis.address is required when redis is enabled")
	}

	if c.Workflow.ReadTimeout <= 0 {
		return fmt.Errorf("workflow.read_timeout must be positive")
	}

	return nil
}
