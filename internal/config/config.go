package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPPort int
	DataDir  string
	LogLevel string

	MaxBatchSize    int
	ChunkSize       int
	CheckpointEvery int

	RateLimitMax    int
	RateLimitWindow time.Duration
	RateLimitBlock  time.Duration

	RetentionCron   string
	RetentionMaxAge time.Duration

	ShutdownTimeout time.Duration
}

// fileConfig is the YAML layout. Durations are plain second counts so the
// file stays hand-editable; unset fields leave the defaults alone.
type fileConfig struct {
	HTTPPort *int    `yaml:"http_port"`
	DataDir  *string `yaml:"data_dir"`
	LogLevel *string `yaml:"log_level"`

	MaxBatchSize    *int `yaml:"max_batch_size"`
	ChunkSize       *int `yaml:"chunk_size"`
	CheckpointEvery *int `yaml:"checkpoint_every"`

	RateLimitMax           *int `yaml:"rate_limit_max"`
	RateLimitWindowSeconds *int `yaml:"rate_limit_window_seconds"`
	RateLimitBlockSeconds  *int `yaml:"rate_limit_block_seconds"`

	RetentionCron          *string `yaml:"retention_cron"`
	RetentionMaxAgeSeconds *int    `yaml:"retention_max_age_seconds"`

	ShutdownTimeoutSeconds *int `yaml:"shutdown_timeout_seconds"`
}

func defaults() *Config {
	return &Config{
		HTTPPort:        8000,
		DataDir:         "data",
		LogLevel:        "info",
		MaxBatchSize:    1000,
		ChunkSize:       10,
		CheckpointEvery: 10,
		RateLimitMax:    10,
		RateLimitWindow: 60 * time.Second,
		RateLimitBlock:  5 * time.Minute,
		RetentionCron:   "0 * * * *",
		RetentionMaxAge: 24 * time.Hour,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load builds the config from defaults, an optional YAML file named by
// WALLETSCOPE_CONFIG, and environment variables, in that order.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("WALLETSCOPE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		applyFile(cfg, &fc)
	}

	cfg.HTTPPort = getEnvInt("HTTP_PORT", cfg.HTTPPort)
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.MaxBatchSize = getEnvInt("MAX_BATCH_SIZE", cfg.MaxBatchSize)
	cfg.ChunkSize = getEnvInt("CHUNK_SIZE", cfg.ChunkSize)
	cfg.CheckpointEvery = getEnvInt("CHECKPOINT_EVERY", cfg.CheckpointEvery)
	cfg.RateLimitMax = getEnvInt("RATE_LIMIT_MAX", cfg.RateLimitMax)
	cfg.RateLimitWindow = getEnvSeconds("RATE_LIMIT_WINDOW_SECONDS", cfg.RateLimitWindow)
	cfg.RateLimitBlock = getEnvSeconds("RATE_LIMIT_BLOCK_SECONDS", cfg.RateLimitBlock)
	cfg.RetentionCron = getEnv("RETENTION_CRON", cfg.RetentionCron)
	cfg.RetentionMaxAge = getEnvSeconds("RETENTION_MAX_AGE_SECONDS", cfg.RetentionMaxAge)
	cfg.ShutdownTimeout = getEnvSeconds("SHUTDOWN_TIMEOUT_SECONDS", cfg.ShutdownTimeout)

	return cfg, nil
}

func applyFile(cfg *Config, fc *fileConfig) {
	if fc.HTTPPort != nil {
		cfg.HTTPPort = *fc.HTTPPort
	}
	if fc.DataDir != nil {
		cfg.DataDir = *fc.DataDir
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.MaxBatchSize != nil {
		cfg.MaxBatchSize = *fc.MaxBatchSize
	}
	if fc.ChunkSize != nil {
		cfg.ChunkSize = *fc.ChunkSize
	}
	if fc.CheckpointEvery != nil {
		cfg.CheckpointEvery = *fc.CheckpointEvery
	}
	if fc.RateLimitMax != nil {
		cfg.RateLimitMax = *fc.RateLimitMax
	}
	if fc.RateLimitWindowSeconds != nil {
		cfg.RateLimitWindow = time.Duration(*fc.RateLimitWindowSeconds) * time.Second
	}
	if fc.RateLimitBlockSeconds != nil {
		cfg.RateLimitBlock = time.Duration(*fc.RateLimitBlockSeconds) * time.Second
	}
	if fc.RetentionCron != nil {
		cfg.RetentionCron = *fc.RetentionCron
	}
	if fc.RetentionMaxAgeSeconds != nil {
		cfg.RetentionMaxAge = time.Duration(*fc.RetentionMaxAgeSeconds) * time.Second
	}
	if fc.ShutdownTimeoutSeconds != nil {
		cfg.ShutdownTimeout = time.Duration(*fc.ShutdownTimeoutSeconds) * time.Second
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return fallback
}
