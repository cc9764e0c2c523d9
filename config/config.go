// Package config loads application configuration from a YAML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds SQLite configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// BatchConfig holds daily batch runner configuration
type BatchConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`

	// Scheduler settings for the in-process daily trigger.
	SchedulerEnabled  bool          `mapstructure:"scheduler_enabled"`
	SchedulerInterval time.Duration `mapstructure:"scheduler_interval"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables. An
// empty configPath loads defaults plus environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

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
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/leave.db")

	// Batch defaults
	v.SetDefault("batch.chunk_size", 10)
	v.SetDefault("batch.scheduler_enabled", true)
	v.SetDefault("batch.scheduler_interval", 24*time.Hour)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("server.port", "LEAVE_SERVER_PORT")
	v.BindEnv("database.path", "LEAVE_DATABASE_PATH")
	v.BindEnv("logger.level", "LEAVE_LOG_LEVEL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Batch.ChunkSize < 1 {
		return fmt.Errorf("batch.chunk_size must be positive, got %d", c.Batch.ChunkSize)
	}
	if c.Batch.SchedulerEnabled && c.Batch.SchedulerInterval < time.Minute {
		return fmt.Errorf("batch.scheduler_interval must be at least one minute")
	}
	return nil
}
