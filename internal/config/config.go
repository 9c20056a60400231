package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultMaxSteps     = 1000
	DefaultQueueSize    = 1024
	DefaultStallWarning = 2 * time.Second
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultNamespace    = "stepwise"
)

// Config is the complete configuration.
type Config struct {
	History  HistoryConfig  `toml:"history" yaml:"history"`
	Dispatch DispatchConfig `toml:"dispatch" yaml:"dispatch"`
	Logging  LoggingConfig  `toml:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `toml:"metrics" yaml:"metrics"`
}

// HistoryConfig configures undo history.
type HistoryConfig struct {
	// MaxSteps bounds the undo stack; the oldest steps are evicted first.
	MaxSteps int `toml:"max_steps" yaml:"max_steps"`

	// Strict makes programming errors panic instead of being logged and
	// returned.
	Strict bool `toml:"strict" yaml:"strict"`
}

// DispatchConfig configures the owner dispatcher.
type DispatchConfig struct {
	// QueueSize is the capacity of the owner queue.
	QueueSize int `toml:"queue_size" yaml:"queue_size"`

	// StallWarning is how long a blocking call waits on the owner before a
	// warning is logged. Zero disables the warning.
	StallWarning Duration `toml:"stall_warning" yaml:"stall_warning"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" yaml:"level"`

	// Format is text or json.
	Format string `toml:"format" yaml:"format"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled" yaml:"enabled"`
	Namespace string `toml:"namespace" yaml:"namespace"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		History: HistoryConfig{
			MaxSteps: DefaultMaxSteps,
			Strict:   true,
		},
		Dispatch: DispatchConfig{
			QueueSize:    DefaultQueueSize,
			StallWarning: Duration(DefaultStallWarning),
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Metrics: MetricsConfig{
			Namespace: DefaultNamespace,
		},
	}
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate checks the configuration. All failures are joined into the
// returned error, which matches ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	if c.History.MaxSteps <= 0 {
		errs = append(errs, &ValidationError{Path: "history.max_steps", Message: "must be positive", Value: c.History.MaxSteps})
	}
	if c.Dispatch.QueueSize <= 0 {
		errs = append(errs, &ValidationError{Path: "dispatch.queue_size", Message: "must be positive", Value: c.Dispatch.QueueSize})
	}
	if c.Dispatch.StallWarning < 0 {
		errs = append(errs, &ValidationError{Path: "dispatch.stall_warning", Message: "must not be negative", Value: c.Dispatch.StallWarning})
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Logging.Level)) {
		errs = append(errs, &ValidationError{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %s", strings.Join(logLevels, ", ")),
			Value:   c.Logging.Level,
		})
	}
	if !slices.Contains(logFormats, strings.ToLower(c.Logging.Format)) {
		errs = append(errs, &ValidationError{
			Path:    "logging.format",
			Message: fmt.Sprintf("must be one of %s", strings.Join(logFormats, ", ")),
			Value:   c.Logging.Format,
		})
	}
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		errs = append(errs, &ValidationError{Path: "metrics.namespace", Message: "required when metrics are enabled", Value: ""})
	}
	return errors.Join(errs...)
}

// Duration is a time.Duration that decodes from strings such as "2s".
type Duration time.Duration

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the duration in time.Duration notation.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
