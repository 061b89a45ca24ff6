package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	Import    ImportConfig    `yaml:"import" envconfig:"IMPORT"`
	Analytics AnalyticsConfig `yaml:"analytics" envconfig:"ANALYTICS"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format string `yaml:"format" envconfig:"FORMAT" default:"json"`
}

// StorageConfig contains persistence configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path" envconfig:"DATABASE_PATH" default:"data/leads.db"`
}

// ImportConfig contains ETL upload configuration
type ImportConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`
}

// AnalyticsConfig contains ranking engine configuration
type AnalyticsConfig struct {
	// StatisticalThreshold is the minimum lead volume for a group to be
	// compared against the global baseline. The default of 10 is a
	// compatibility constant; change it only with downstream agreement.
	StatisticalThreshold int `yaml:"statistical_threshold" envconfig:"STATISTICAL_THRESHOLD" default:"10"`
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	return LoadFrom("config.yaml")
}

// LoadFrom loads configuration from the environment, overlaying the given
// YAML file into fields the environment left at their zero value.
func LoadFrom(configFile string) (*Config, error) {
	var cfg Config

	if err := envconfig.Process("LEADS", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if _, err := os.Stat(configFile); err == nil {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileCfg, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence)
func mergeConfigs(fileConfig, envConfig Config) Config {
	if envConfig.Server.Port == 0 {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if envConfig.Server.ReadTimeout == 0 {
		envConfig.Server.ReadTimeout = fileConfig.Server.ReadTimeout
	}
	if envConfig.Server.WriteTimeout == 0 {
		envConfig.Server.WriteTimeout = fileConfig.Server.WriteTimeout
	}
	if envConfig.Logging.Level == "" {
		envConfig.Logging.Level = fileConfig.Logging.Level
	}
	if envConfig.Storage.DatabasePath == "" {
		envConfig.Storage.DatabasePath = fileConfig.Storage.DatabasePath
	}
	if envConfig.Import.MaxUploadBytes == 0 {
		envConfig.Import.MaxUploadBytes = fileConfig.Import.MaxUploadBytes
	}
	if envConfig.Analytics.StatisticalThreshold == 0 {
		envConfig.Analytics.StatisticalThreshold = fileConfig.Analytics.StatisticalThreshold
	}
	return envConfig
}

// validate checks configuration values for consistency
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage database path is required")
	}
	if c.Import.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid max upload bytes: %d", c.Import.MaxUploadBytes)
	}
	if c.Analytics.StatisticalThreshold < 1 {
		return fmt.Errorf("invalid statistical threshold: %d", c.Analytics.StatisticalThreshold)
	}
	return nil
}
