// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/invowk/modrt/pkg/storage"
)

const (
	// LogLevelDebug logs lookups and every lifecycle transition.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo adds resolution failures and refresh summaries.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs teardown failures and suppressed errors.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs only failures returned to callers.
	LogLevelError LogLevel = "error"

	// DefaultShutdownWorkers bounds how many modules of one dependency level stop concurrently.
	DefaultShutdownWorkers = 4
	// DefaultTimeout is the default for shutdown.timeout and lock.timeout.
	DefaultTimeout = 30 * time.Second
)

var (
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidStorageConfig is the sentinel error wrapped by InvalidStorageConfigError.
	ErrInvalidStorageConfig = errors.New("invalid storage config")
	// ErrInvalidShutdownConfig is the sentinel error wrapped by InvalidShutdownConfigError.
	ErrInvalidShutdownConfig = errors.New("invalid shutdown config")
	// ErrInvalidTimeout is returned for a non-positive timeout.
	ErrInvalidTimeout = errors.New("invalid timeout")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// LogLevel is the minimum level the runtime logs at.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	// It wraps ErrInvalidLogLevel for errors.Is() compatibility.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidTimeoutError is returned when a timeout is zero or negative.
	InvalidTimeoutError struct {
		Field string
		Value time.Duration
	}

	// InvalidStorageConfigError is returned when a StorageConfig has invalid fields.
	// It wraps ErrInvalidStorageConfig for errors.Is() compatibility and collects
	// field-level validation errors.
	InvalidStorageConfigError struct {
		FieldErrors []error
	}

	// InvalidShutdownConfigError is returned when a ShutdownConfig has invalid fields.
	InvalidShutdownConfigError struct {
		FieldErrors []error
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// Storage selects where module content is read from.
		Storage StorageConfig `json:"storage" mapstructure:"storage"`
		// Shutdown controls framework shutdown.
		Shutdown ShutdownConfig `json:"shutdown" mapstructure:"shutdown"`
		// Lock controls per-module transition locks.
		Lock LockConfig `json:"lock" mapstructure:"lock"`
		// Log configures the runtime logger.
		Log LogConfig `json:"log" mapstructure:"log"`
		// Bundles configures module discovery.
		Bundles BundlesConfig `json:"bundles" mapstructure:"bundles"`
	}

	// StorageConfig selects the content storage backend.
	StorageConfig struct {
		// Driver is "fs" or "sqlite".
		Driver storage.Driver `json:"driver" mapstructure:"driver"`
		// Path is the base directory for fs, or the database file for sqlite.
		Path string `json:"path" mapstructure:"path"`
	}

	// ShutdownConfig controls framework shutdown.
	ShutdownConfig struct {
		// Workers bounds concurrent stops within one dependency level.
		Workers int `json:"workers" mapstructure:"workers"`
		// Timeout is how long the CLI waits for shutdown to finish.
		Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	}

	// LockConfig controls per-module transition locks.
	LockConfig struct {
		// Timeout bounds how long a lifecycle operation waits for a module.
		Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	}

	// LogConfig configures the runtime logger.
	LogConfig struct {
		Level LogLevel `json:"level" mapstructure:"level"`
	}

	// BundlesConfig configures module discovery.
	BundlesConfig struct {
		// Dir is searched when a command is given no directory.
		Dir string `json:"dir" mapstructure:"dir"`
	}
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver: storage.DriverFS,
		},
		Shutdown: ShutdownConfig{
			Workers: DefaultShutdownWorkers,
			Timeout: DefaultTimeout,
		},
		Lock: LockConfig{
			Timeout: DefaultTimeout,
		},
		Log: LogConfig{
			Level: LogLevelWarn,
		},
		Bundles: BundlesConfig{
			Dir: ".",
		},
	}
}

// Error implements the error interface for InvalidLogLevelError.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns ErrInvalidLogLevel for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// IsValid returns whether the LogLevel is one of the defined levels,
// and a list of validation errors if it is not.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

// Level converts to a charmbracelet/log level. Unknown values map to warn.
func (l LogLevel) Level() log.Level {
	lvl, err := log.ParseLevel(string(l))
	if err != nil {
		return log.WarnLevel
	}
	return lvl
}

// Error implements the error interface for InvalidTimeoutError.
func (e *InvalidTimeoutError) Error() string {
	return fmt.Sprintf("invalid %s %s: must be positive", e.Field, e.Value)
}

// Unwrap returns ErrInvalidTimeout for errors.Is() compatibility.
func (e *InvalidTimeoutError) Unwrap() error { return ErrInvalidTimeout }

// IsValid returns whether the StorageConfig has valid fields. The sqlite
// driver needs a database path; fs may leave it empty.
func (c StorageConfig) IsValid() (bool, []error) {
	var errs []error
	if err := c.Driver.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Driver == storage.DriverSQLite && strings.TrimSpace(c.Path) == "" {
		errs = append(errs, errors.New("storage.path is required for the sqlite driver"))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidStorageConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidStorageConfigError.
func (e *InvalidStorageConfigError) Error() string {
	return fmt.Sprintf("invalid storage config: %v", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidStorageConfig and the field errors.
func (e *InvalidStorageConfigError) Unwrap() []error {
	return append([]error{ErrInvalidStorageConfig}, e.FieldErrors...)
}

// IsValid returns whether the ShutdownConfig has valid fields.
func (c ShutdownConfig) IsValid() (bool, []error) {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("shutdown.workers %d: must be at least 1", c.Workers))
	}
	if c.Timeout <= 0 {
		errs = append(errs, &InvalidTimeoutError{Field: "shutdown.timeout", Value: c.Timeout})
	}
	if len(errs) > 0 {
		return false, []error{&InvalidShutdownConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidShutdownConfigError.
func (e *InvalidShutdownConfigError) Error() string {
	return fmt.Sprintf("invalid shutdown config: %v", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidShutdownConfig and the field errors.
func (e *InvalidShutdownConfigError) Unwrap() []error {
	return append([]error{ErrInvalidShutdownConfig}, e.FieldErrors...)
}

// IsValid returns whether the Config has valid fields.
// It delegates to Storage.IsValid(), Shutdown.IsValid() and Log.Level.IsValid().
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.Storage.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Shutdown.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if c.Lock.Timeout <= 0 {
		errs = append(errs, &InvalidTimeoutError{Field: "lock.timeout", Value: c.Lock.Timeout})
	}
	if valid, fieldErrs := c.Log.Level.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %v", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidConfig and the field errors for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}
