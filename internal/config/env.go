package config

import (
	"strconv"
	"time"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "STEPWISE_"

// LookupFunc looks up an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// envSetters maps environment variables to the setting they override.
var envSetters = map[string]func(c *Config, v string) error{
	EnvPrefix + "MAX_STEPS": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		c.History.MaxSteps = n
		return err
	},
	EnvPrefix + "STRICT": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		c.History.Strict = b
		return err
	},
	EnvPrefix + "QUEUE_SIZE": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		c.Dispatch.QueueSize = n
		return err
	},
	EnvPrefix + "STALL_WARNING": func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		c.Dispatch.StallWarning = Duration(d)
		return err
	},
	EnvPrefix + "LOG_LEVEL": func(c *Config, v string) error {
		c.Logging.Level = v
		return nil
	},
	EnvPrefix + "LOG_FORMAT": func(c *Config, v string) error {
		c.Logging.Format = v
		return nil
	},
	EnvPrefix + "METRICS": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		c.Metrics.Enabled = b
		return err
	},
}

// ApplyEnv overrides cfg with any STEPWISE_* variables lookup finds. The
// first malformed value is returned as a *ParseError and leaves cfg with
// the overrides applied before it.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	for _, key := range EnvKeys() {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		next := *cfg
		if err := envSetters[key](&next, v); err != nil {
			return &ParseError{Path: key, Message: "invalid value " + strconv.Quote(v), Err: err}
		}
		*cfg = next
	}
	return nil
}

// EnvKeys returns the recognized environment variables in a stable order.
func EnvKeys() []string {
	return []string{
		EnvPrefix + "MAX_STEPS",
		EnvPrefix + "STRICT",
		EnvPrefix + "QUEUE_SIZE",
		EnvPrefix + "STALL_WARNING",
		EnvPrefix + "LOG_LEVEL",
		EnvPrefix + "LOG_FORMAT",
		EnvPrefix + "METRICS",
	}
}
