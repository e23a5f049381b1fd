// Package config handles application configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// Environment (development, production)
	Environment string `yaml:"environment"`

	// HTTP server address
	HTTPAddr string `yaml:"http_addr"`

	// Database connection string. Empty runs without the relational store.
	DatabaseURL string `yaml:"database_url"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Runner    RunnerConfig    `yaml:"runner"`
	AI        AIConfig        `yaml:"ai"`
	Backup    BackupConfig    `yaml:"backup"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RunnerConfig configures test execution
type RunnerConfig struct {
	Binary         string `yaml:"binary"`
	ResultsDir     string `yaml:"results_dir"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	HistoryDays    int    `yaml:"history_days"`
	HistoryLimit   int    `yaml:"history_limit"`
}

func (r RunnerConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// AIConfig configures the chat model. An empty APIKey disables AI features.
type AIConfig struct {
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	Temperature    float32 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxRetries     int     `yaml:"max_retries"`
	Workers        int     `yaml:"workers"`
}

func (a AIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

func (a AIConfig) Enabled() bool {
	return a.APIKey != ""
}

// BackupConfig holds record backup configuration
type BackupConfig struct {
	// Backend type: local, s3
	Backend string `yaml:"backend"`
	// Local storage path
	LocalPath string `yaml:"local_path"`
	// S3/MinIO endpoint (for MinIO or custom S3-compatible storage)
	Endpoint string `yaml:"endpoint"`
	// S3 region
	Region string `yaml:"region"`
	// S3 bucket name
	Bucket string `yaml:"bucket"`
	// Access key ID for S3/MinIO
	AccessKeyID string `yaml:"access_key_id"`
	// Secret access key for S3/MinIO
	SecretAccessKey string `yaml:"secret_access_key"`
}

// RateLimitConfig throttles run submissions per client
type RateLimitConfig struct {
	RunsPerMinute int `yaml:"runs_per_minute"`
	Burst         int `yaml:"burst"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Environment: "development",
		HTTPAddr:    ":8000",
		DatabaseURL: "postgres://localhost:5432/loadgenie?sslmode=disable",
		LogLevel:    "info",
		LogFormat:   "json",
		Runner: RunnerConfig{
			Binary:         "k6",
			ResultsDir:     "/tmp/k6_results",
			TimeoutSeconds: 300,
			HistoryDays:    30,
			HistoryLimit:   10,
		},
		AI: AIConfig{
			Model:          "gpt-4o-mini",
			Temperature:    0.8,
			TimeoutSeconds: 60,
			MaxRetries:     3,
			Workers:        4,
		},
		Backup: BackupConfig{
			Backend: "local",
			Region:  "us-east-1",
			Bucket:  "loadgenie-records",
		},
		RateLimit: RateLimitConfig{
			RunsPerMinute: 30,
			Burst:         5,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path and environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.Backup.LocalPath == "" {
		cfg.Backup.LocalPath = filepath.Join(cfg.Runner.ResultsDir, "records")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.Runner.Binary = getEnv("K6_BINARY", c.Runner.Binary)
	c.Runner.ResultsDir = getEnv("K6_RESULTS_DIR", c.Runner.ResultsDir)
	c.Runner.TimeoutSeconds = getEnvInt("K6_TIMEOUT", c.Runner.TimeoutSeconds)
	c.Runner.HistoryDays = getEnvInt("HISTORY_DAYS", c.Runner.HistoryDays)
	c.Runner.HistoryLimit = getEnvInt("HISTORY_LIMIT", c.Runner.HistoryLimit)

	c.AI.APIKey = getEnv("AI_API_KEY", c.AI.APIKey)
	c.AI.BaseURL = getEnv("AI_BASE_URL", c.AI.BaseURL)
	c.AI.Model = getEnv("AI_MODEL", c.AI.Model)
	c.AI.Temperature = getEnvFloat32("AI_TEMPERATURE", c.AI.Temperature)
	c.AI.TimeoutSeconds = getEnvInt("AI_TIMEOUT", c.AI.TimeoutSeconds)
	c.AI.MaxRetries = getEnvInt("AI_MAX_RETRIES", c.AI.MaxRetries)
	c.AI.Workers = getEnvInt("AI_WORKERS", c.AI.Workers)

	c.Backup.Backend = getEnv("BACKUP_BACKEND", c.Backup.Backend)
	c.Backup.LocalPath = getEnv("BACKUP_LOCAL_PATH", c.Backup.LocalPath)
	c.Backup.Endpoint = getEnv("BACKUP_S3_ENDPOINT", c.Backup.Endpoint)
	c.Backup.Region = getEnv("BACKUP_S3_REGION", c.Backup.Region)
	c.Backup.Bucket = getEnv("BACKUP_S3_BUCKET", c.Backup.Bucket)
	c.Backup.AccessKeyID = getEnv("BACKUP_S3_ACCESS_KEY_ID", c.Backup.AccessKeyID)
	c.Backup.SecretAccessKey = getEnv("BACKUP_S3_SECRET_ACCESS_KEY", c.Backup.SecretAccessKey)

	c.RateLimit.RunsPerMinute = getEnvInt("RATE_LIMIT_RUNS_PER_MINUTE", c.RateLimit.RunsPerMinute)
	c.RateLimit.Burst = getEnvInt("RATE_LIMIT_BURST", c.RateLimit.Burst)
}

// Validate rejects values the service cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Runner.TimeoutSeconds <= 0:
		return fmt.Errorf("K6_TIMEOUT must be positive, got %d", c.Runner.TimeoutSeconds)
	case c.AI.TimeoutSeconds <= 0:
		return fmt.Errorf("AI_TIMEOUT must be positive, got %d", c.AI.TimeoutSeconds)
	case c.AI.MaxRetries < 1:
		return fmt.Errorf("AI_MAX_RETRIES must be at least 1, got %d", c.AI.MaxRetries)
	case c.AI.Workers < 1:
		return fmt.Errorf("AI_WORKERS must be at least 1, got %d", c.AI.Workers)
	case c.AI.Temperature < 0 || c.AI.Temperature > 2:
		return fmt.Errorf("AI_TEMPERATURE must be between 0 and 2, got %g", c.AI.Temperature)
	case c.Backup.Backend != "local" && c.Backup.Backend != "s3":
		return fmt.Errorf("BACKUP_BACKEND must be local or s3, got %q", c.Backup.Backend)
	case c.LogFormat != "json" && c.LogFormat != "text":
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	case c.RateLimit.RunsPerMinute < 0 || c.RateLimit.Burst < 0:
		return fmt.Errorf("rate limits must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(f)
		}
	}
	return defaultValue
}
