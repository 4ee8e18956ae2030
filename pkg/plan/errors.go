package plan

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every configuration validation failure,
// so callers can match the whole class with errors.Is.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError reports malformed or missing download configuration input.
// Configuration errors are fatal and abort the run before any network
// activity.
type ConfigError struct {
	Msg string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config: " + e.Msg
}

// Unwrap lets errors.Is(err, ErrInvalidConfig) match.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

func configErrorf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}
