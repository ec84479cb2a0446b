package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config.yaml alongside the binary or in the working directory.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; environment variables may carry everything.
	}

	// Environment variables with TAILOR_ prefix, e.g. TAILOR_DATABASE_URL
	// maps to database.url.
	v.SetEnvPrefix("TAILOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration against its struct tags.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	// Registered with empty defaults so AutomaticEnv can bind them during
	// Unmarshal; validation rejects them when left empty.
	v.SetDefault("database.url", "")
	v.SetDefault("llm.api_key", "")

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.max_output_tokens", 4096)
	v.SetDefault("llm.call_timeout", 60*time.Second)

	v.SetDefault("worker.idle_backoff_min", time.Second)
	v.SetDefault("worker.idle_backoff_max", 30*time.Second)
	v.SetDefault("worker.max_attempts", 5)
	v.SetDefault("worker.metrics_port", 0)

	v.SetDefault("stream.poll_interval", time.Second)
	v.SetDefault("stream.heartbeat_interval", 15*time.Second)
	v.SetDefault("stream.timeout", 300*time.Second)
}
