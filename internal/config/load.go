package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file in the working directory. Missing file is fine;
	// a malformed one is not.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables: PLOTFORGE_SERVER_PORT, PLOTFORGE_DATABASE_URL, ...
	v.SetEnvPrefix("PLOTFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers default values for everything that has a sensible one.
// Secrets and the database URL deliberately have no default.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("llm.gemini_model", "gemini-2.0-flash")
	v.SetDefault("llm.openai_model", "gpt-4o-mini")
	v.SetDefault("llm.request_timeout", "30s")
	v.SetDefault("llm.max_retries", 2)

	v.SetDefault("scheduler.worker_count", 8)
	v.SetDefault("scheduler.queue_size", 256)

	v.SetDefault("retry.initial_delay", "2s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.max_delay", "30s")
	v.SetDefault("retry.jitter", 0.25)
	v.SetDefault("retry.max_attempts", 3)
}

// bindEnvKeys explicitly binds nested keys so AutomaticEnv sees them even
// when no default or config file entry mentions the key.
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"server.port", "server.log_level",
		"database.url",
		"redis.addr", "redis.password", "redis.db",
		"llm.gemini_api_key", "llm.gemini_model",
		"llm.openai_api_key", "llm.openai_model",
		"llm.request_timeout", "llm.max_retries",
		"scheduler.worker_count", "scheduler.queue_size",
		"retry.initial_delay", "retry.multiplier", "retry.max_delay",
		"retry.jitter", "retry.max_attempts",
	}
	for _, key := range keys {
		// BindEnv only errors on an empty key.
		_ = v.BindEnv(key)
	}
}
