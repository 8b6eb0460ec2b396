package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Auth       AuthConfig       `mapstructure:"auth" validate:"required"`
	Generation GenerationConfig `mapstructure:"generation" validate:"required"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
	// TokenLifetimeMinutes is the validity period of issued access tokens.
	TokenLifetimeMinutes int `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// GenerationConfig contains settings for the external story generation service.
type GenerationConfig struct {
	// BaseURL is the root endpoint of the generation service (no trailing slash).
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	// APIKey is the bearer credential presented to the generation service.
	APIKey string `mapstructure:"api_key" validate:"required"`
	// RequestTimeoutSeconds bounds individual initiate/poll calls.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds" validate:"required,gt=0"`
	// StreamTimeoutSeconds bounds consumption of a full result stream.
	StreamTimeoutSeconds int `mapstructure:"stream_timeout_seconds" validate:"required,gt=0"`
}

// RateLimitConfig contains per-operation request ceilings for the sliding window.
type RateLimitConfig struct {
	// WindowSeconds is the trailing window length. Defaults to one hour.
	WindowSeconds int `mapstructure:"window_seconds" validate:"required,gt=0"`
	SubmitCeiling int `mapstructure:"submit_ceiling" validate:"required,gt=0"`
	StatusCeiling int `mapstructure:"status_ceiling" validate:"required,gt=0"`
}
