package config

import (
	"errors"
	"fmt"
)

// ConfigError reports a configuration file or value that cannot be used.
type ConfigError struct {
	// Path is the configuration file, if any.
	Path string

	// Field is the offending setting, if known.
	Field string

	Err error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	switch {
	case e.Path != "" && e.Field != "":
		return fmt.Sprintf("config %s: %s: %v", e.Path, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
	case e.Path != "":
		return fmt.Sprintf("config %s: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("config: %v", e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError returns true if err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var e *ConfigError
	return errors.As(err, &e)
}
