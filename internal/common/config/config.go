package config

import (
	"os"
	"regexp"
	"time"

	"github.com/crosspost-io/crosspost/pkg/helper"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	// Config represents the crosspost service configuration
	Config struct {
		Server    ServerConfig    `yaml:"server"`
		Logger    LoggerConfig    `yaml:"logger"`
		Storage   StorageConfig   `yaml:"storage"`
		History   HistoryConfig   `yaml:"history"`
		Metrics   MetricsConfig   `yaml:"metrics"`
		Platforms PlatformsConfig `yaml:"platforms"`
	}

	// MetricsConfig represents the Prometheus metrics configuration
	MetricsConfig struct {
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}

	// ServerConfig represents the HTTP API server configuration
	ServerConfig struct {
		Addr        string        `yaml:"addr"`
		JWTSecret   string        `yaml:"jwt_secret"`
		JWTDuration time.Duration `yaml:"jwt_duration"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
		TimeZone   string `yaml:"time_zone"`   // time zone for log timestamps, default is local
		TimeFormat string `yaml:"time_format"` // time format for log timestamps
	}

	// StorageConfig represents the secure token storage configuration
	StorageConfig struct {
		Type    string             `yaml:"type"` // "disk", "memory" or "redis"
		Dir     string             `yaml:"dir"`  // base directory for disk storage
		KeyFile string             `yaml:"key_file"`
		Redis   StorageRedisConfig `yaml:"redis"`
	}

	// StorageRedisConfig represents the Redis configuration for token storage
	StorageRedisConfig struct {
		Addr     string `yaml:"addr"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	}

	// HistoryConfig represents the post history database configuration
	HistoryConfig struct {
		Type string `yaml:"type"` // "sqlite", "mysql" or "postgres"
		DSN  string `yaml:"dsn"`
	}
)

// LoadConfig loads configuration from a YAML file with environment variable support
func LoadConfig(filename string) (*Config, string, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfgPath := helper.GetCfgPath(filename)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	// Resolve environment variables
	data = resolveEnv(data)
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, cfgPath, err
	}

	cfg.setDefaults()
	return &cfg, cfgPath, nil
}

// LoadDefault builds a configuration entirely from environment variables,
// used when no YAML file is present.
func LoadDefault() *Config {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.Platforms = platformsFromEnv()
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8501"
	}
	if c.Server.JWTSecret == "" {
		c.Server.JWTSecret = os.Getenv("CROSSPOST_JWT_SECRET")
	}
	if c.Server.JWTDuration <= 0 {
		c.Server.JWTDuration = 24 * time.Hour
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "disk"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = ".crosspost_storage"
	}
	if c.Storage.KeyFile == "" {
		c.Storage.KeyFile = ".crosspost_encryption_key"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "crosspost"
	}
	if c.History.Type == "" {
		c.History.Type = "sqlite"
	}
	if c.History.DSN == "" && c.History.Type == "sqlite" {
		c.History.DSN = "crosspost.db"
	}
	if len(c.Platforms) == 0 {
		c.Platforms = platformsFromEnv()
	}
}

// resolveEnv replaces environment variable placeholders in YAML content
func resolveEnv(content []byte) []byte {
	regex := regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

	return regex.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := regex.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
