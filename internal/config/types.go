// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/capkit/capkit/pkg/platform"
	"github.com/capkit/capkit/pkg/selector"
)

const (
	// LogLevelDebug logs discovery and dispatch details.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is the default level.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs duplicates and non-fatal diagnostics only.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs failures only.
	LogLevelError LogLevel = "error"

	// DefaultManifestFile is the package manifest read at every package root.
	DefaultManifestFile = "package.json"
	// DefaultDescriptorFile is the capability descriptor read at every package root.
	DefaultDescriptorFile = "capability.json"
	// DefaultModulesDir is the directory dependencies are installed into.
	DefaultModulesDir = "cap_modules"
	// DefaultDebounce is the quiet period before a watch triggers a reset.
	DefaultDebounce = 300 * time.Millisecond
)

var (
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidFileName is the sentinel error wrapped by InvalidFileNameError.
	ErrInvalidFileName = errors.New("invalid file name")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// LogLevel is the minimum level written by the CLI logger.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	// It wraps ErrInvalidLogLevel for errors.Is() compatibility.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidFileNameError is returned for a file or directory name setting
	// that is not a single portable path element.
	InvalidFileNameError struct {
		Field string
		Value string
		Cause error
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the capkit configuration.
	Config struct {
		// RootBoundary is where package root lookups stop. Empty means the
		// working directory.
		RootBoundary string `json:"root_boundary" mapstructure:"root_boundary"`
		// ManifestFile is the manifest file name looked up at package roots.
		ManifestFile string `json:"manifest_file" mapstructure:"manifest_file"`
		// DescriptorFile is the capability descriptor file name.
		DescriptorFile string `json:"descriptor_file" mapstructure:"descriptor_file"`
		// ModulesDir is the dependency install directory name.
		ModulesDir string `json:"modules_dir" mapstructure:"modules_dir"`
		// Log configures the CLI logger.
		Log LogConfig `json:"log" mapstructure:"log"`
		// Selectors are default selectors for every dispatch request.
		Selectors map[string]string `json:"selectors" mapstructure:"selectors"`
		// Watch configures `capkit watch`.
		Watch WatchConfig `json:"watch" mapstructure:"watch"`
	}

	// LogConfig configures logging.
	LogConfig struct {
		Level     LogLevel `json:"level" mapstructure:"level"`
		Timestamp bool     `json:"timestamp" mapstructure:"timestamp"`
	}

	// WatchConfig configures the filesystem watcher.
	WatchConfig struct {
		// Patterns are doublestar globs, relative to the watched root, whose
		// changes trigger a reset.
		Patterns []string `json:"patterns" mapstructure:"patterns"`
		// Ignore are doublestar globs excluded from watching.
		Ignore []string `json:"ignore" mapstructure:"ignore"`
		// Debounce is the quiet period before a reset fires.
		Debounce time.Duration `json:"debounce" mapstructure:"debounce"`
	}
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ManifestFile:   DefaultManifestFile,
		DescriptorFile: DefaultDescriptorFile,
		ModulesDir:     DefaultModulesDir,
		Log: LogConfig{
			Level: LogLevelInfo,
		},
		Selectors: map[string]string{},
		Watch: WatchConfig{
			Patterns: []string{"**/" + DefaultManifestFile, "**/" + DefaultDescriptorFile},
			Ignore:   []string{"**/.git/**"},
			Debounce: DefaultDebounce,
		},
	}
}

// DefaultSelectors returns the configured selectors ordered by key.
func (c *Config) DefaultSelectors() selector.Selectors {
	return selector.FromMap(c.Selectors)
}

// IsValid returns whether the Config has valid fields.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.Log.Level.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	for field, value := range map[string]string{
		"manifest_file":   c.ManifestFile,
		"descriptor_file": c.DescriptorFile,
		"modules_dir":     c.ModulesDir,
	} {
		if err := platform.ValidateBaseName(value); err != nil {
			errs = append(errs, &InvalidFileNameError{Field: field, Value: value, Cause: err})
		}
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce must not be negative, got %s", c.Watch.Debounce))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// Error implements the error interface for InvalidFileNameError.
func (e *InvalidFileNameError) Error() string {
	return fmt.Sprintf("%s %q must be a plain file name: %v", e.Field, e.Value, e.Cause)
}

// Unwrap returns ErrInvalidFileName and the validation cause.
func (e *InvalidFileNameError) Unwrap() []error { return []error{ErrInvalidFileName, e.Cause} }

// Error implements the error interface for InvalidLogLevelError.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
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
