package cacheinfra

import "errors"

// ErrCacheMiss is returned by stores when a key is absent or expired.
var ErrCacheMiss = errors.New("cache: miss")

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
