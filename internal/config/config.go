package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"`
	LLM       LLMConfig       `mapstructure:"llm" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	Retry     RetryConfig     `mapstructure:"retry" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// RedisConfig contains Redis connection settings for the event broadcaster
// and the job status cache. An empty address selects the in-memory
// broadcaster and the noop cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// LLMConfig contains all LLM integration related settings. The caption
// router tries Gemini first, then OpenAI, then the always-succeeding
// fallback; a provider with an empty API key is left out of the chain.
type LLMConfig struct {
	GeminiAPIKey   string        `mapstructure:"gemini_api_key"`
	GeminiModel    string        `mapstructure:"gemini_model" validate:"required"`
	OpenAIAPIKey   string        `mapstructure:"openai_api_key"`
	OpenAIModel    string        `mapstructure:"openai_model" validate:"required"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"required,gt=0"`
	MaxRetries     int           `mapstructure:"max_retries" validate:"required,gte=1"`
}

// SchedulerConfig contains settings for the task scheduler's worker pool.
type SchedulerConfig struct {
	WorkerCount int `mapstructure:"worker_count" validate:"required,gte=1"`
	QueueSize   int `mapstructure:"queue_size" validate:"required,gte=1"`
}

// RetryConfig contains the backoff policy applied to transient failures.
type RetryConfig struct {
	InitialDelay time.Duration `mapstructure:"initial_delay" validate:"required,gt=0"`
	Multiplier   float64       `mapstructure:"multiplier" validate:"required,gte=1"`
	MaxDelay     time.Duration `mapstructure:"max_delay" validate:"required,gt=0"`
	Jitter       float64       `mapstructure:"jitter" validate:"gte=0,lte=1"`
	MaxAttempts  int           `mapstructure:"max_attempts" validate:"required,gte=1"`
}
