// Package config defines the application configuration structure and loading
// logic. Configuration is sourced from environment variables and an optional
// YAML file, then validated before use.
package config
