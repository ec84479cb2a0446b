package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"      validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Stream   StreamConfig   `mapstructure:"stream"`
}

// ServerConfig contains all HTTP server related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// LLMConfig contains settings for the language-model provider.
// The endpoint is any OpenAI-compatible chat-completions base URL.
type LLMConfig struct {
	APIKey  string `mapstructure:"api_key"  validate:"required"`
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	Model   string `mapstructure:"model"    validate:"required"`

	// MaxOutputTokens caps completion length on both plan and draft calls.
	MaxOutputTokens int `mapstructure:"max_output_tokens" validate:"gte=0"`

	// CallTimeout bounds a single API call, retries included per attempt.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// WorkerConfig tunes the job polling loop.
type WorkerConfig struct {
	// IdleBackoffMin is the sleep after an empty poll; it doubles on each
	// consecutive empty poll up to IdleBackoffMax and resets on work.
	IdleBackoffMin time.Duration `mapstructure:"idle_backoff_min"`
	IdleBackoffMax time.Duration `mapstructure:"idle_backoff_max"`

	// MaxAttempts is the queue's per-job attempt ceiling.
	MaxAttempts int `mapstructure:"max_attempts" validate:"gte=1"`

	// MetricsPort, when non-zero, exposes /metrics on the standalone
	// worker binary. The API server serves metrics on its own port.
	MetricsPort int `mapstructure:"metrics_port" validate:"gte=0,lt=65536"`
}

// StreamConfig tunes the live status stream poller.
type StreamConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	Timeout           time.Duration `mapstructure:"timeout"`
}
