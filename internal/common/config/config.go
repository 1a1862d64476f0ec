// internal/common/config/config.go
package config

import "time"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig               `mapstructure:"app"`
	Inference InferenceConfig         `mapstructure:"inference"`
	Camunda   CamundaConfig           `mapstructure:"camunda"`
	Cache     CacheConfig             `mapstructure:"cache"`
	Database  DatabaseConfig          `mapstructure:"database"`
	Workers   map[string]WorkerConfig `mapstructure:"workers"`
	Logging   LoggingConfig           `mapstructure:"logging"`
	Server    ServerConfig            `mapstructure:"server"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// InferenceConfig points at the fertilizer inference service.
type InferenceConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	Timeout         int    `mapstructure:"timeout"`          // milliseconds
	MetadataTimeout int    `mapstructure:"metadata_timeout"` // milliseconds
	StrictCrops     bool   `mapstructure:"strict_crops"`
}

// RequestTimeout returns the per-request timeout for predictions.
func (c InferenceConfig) RequestTimeout() time.Duration {
	return GetDuration(c.Timeout)
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

// CacheConfig selects where fetched metadata is kept.
type CacheConfig struct {
	Backend string `mapstructure:"backend"` // memory | redis
	TTL     int    `mapstructure:"ttl"`     // milliseconds, redis only
	Key     string `mapstructure:"key"`
}

type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ServerConfig is the health/metrics listener of the worker manager.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"

	DefaultInferenceBaseURL = "http://localhost:8000"
)
