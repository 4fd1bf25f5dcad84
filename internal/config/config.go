package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	SES      SESConfig      `yaml:"ses"`
	Members  MembersConfig  `yaml:"members"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Trigger  TriggerConfig  `yaml:"trigger"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	LogLevel string         `yaml:"log_level"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds Postgres configuration
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis configuration for the trigger queue
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	QueueKey string `yaml:"queue_key"`
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MembersConfig holds the membership platform API configuration
type MembersConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIToken       string `yaml:"api_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c MembersConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// WebhookConfig holds webhook intake configuration
type WebhookConfig struct {
	SigningSecret string `yaml:"signing_secret"`
	MaxBodyBytes  int64  `yaml:"max_body_bytes"`
}

// TriggerConfig holds trigger worker configuration
type TriggerConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DispatchConfig holds execution dispatcher configuration
type DispatchConfig struct {
	Enabled            bool `yaml:"enabled"`
	NumWorkers         int  `yaml:"num_workers"`
	BatchSize          int  `yaml:"batch_size"`
	PollSeconds        int  `yaml:"poll_seconds"`
	MaxAttempts        int  `yaml:"max_attempts"`
	BackoffBaseSeconds int  `yaml:"backoff_base_seconds"`
	LockTimeoutMinutes int  `yaml:"lock_timeout_minutes"`
}

// PollInterval returns the dispatch poll interval as a duration
func (c DispatchConfig) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

// BackoffBase returns the retry backoff base as a duration
func (c DispatchConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSeconds) * time.Second
}

// LockTimeout returns the stale claim timeout as a duration
func (c DispatchConfig) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMinutes) * time.Minute
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.Members.TimeoutSeconds == 0 {
		cfg.Members.TimeoutSeconds = 15
	}
	if cfg.Webhook.MaxBodyBytes == 0 {
		cfg.Webhook.MaxBodyBytes = 1 << 20
	}
	if cfg.Dispatch.NumWorkers == 0 {
		cfg.Dispatch.NumWorkers = 4
	}
	if cfg.Dispatch.BatchSize == 0 {
		cfg.Dispatch.BatchSize = 50
	}
	if cfg.Dispatch.PollSeconds == 0 {
		cfg.Dispatch.PollSeconds = 5
	}
	if cfg.Dispatch.MaxAttempts == 0 {
		cfg.Dispatch.MaxAttempts = 5
	}
	if cfg.Dispatch.BackoffBaseSeconds == 0 {
		cfg.Dispatch.BackoffBaseSeconds = 60
	}
	if cfg.Dispatch.LockTimeoutMinutes == 0 {
		cfg.Dispatch.LockTimeoutMinutes = 15
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if accessKey := os.Getenv("AWS_SES_ACCESS_KEY"); accessKey != "" {
		cfg.SES.AccessKey = accessKey
	}
	if secretKey := os.Getenv("AWS_SES_SECRET_KEY"); secretKey != "" {
		cfg.SES.SecretKey = secretKey
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.SES.Region = region
	}
	if baseURL := os.Getenv("MEMBERS_BASE_URL"); baseURL != "" {
		cfg.Members.BaseURL = baseURL
	}
	if token := os.Getenv("MEMBERS_API_TOKEN"); token != "" {
		cfg.Members.APIToken = token
	}
	if secret := os.Getenv("WEBHOOK_SIGNING_SECRET"); secret != "" {
		cfg.Webhook.SigningSecret = secret
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	return cfg, nil
}
