package registry

import (
	"fmt"
	"strconv"
	"time"
)

// Config is the per-port provider configuration: a provider name plus open
// ended options. Options a provider does not know are ignored.
type Config struct {
	Provider string
	Options  map[string]any
}

// NewConfig builds a Config from a provider name and key/value pairs.
func NewConfig(provider string, kv ...any) Config {
	cfg := Config{Provider: provider, Options: make(map[string]any, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			cfg.Options[k] = kv[i+1]
		}
	}
	return cfg
}

// With returns a copy of cfg with key set.
func (c Config) With(key string, value any) Config {
	opts := make(map[string]any, len(c.Options)+1)
	for k, v := range c.Options {
		opts[k] = v
	}
	opts[key] = value
	return Config{Provider: c.Provider, Options: opts}
}

// String returns the option as a string, or def when absent or empty.
func (c Config) String(key, def string) string {
	v, ok := c.Options[key]
	if !ok || v == nil {
		return def
	}
	s := fmt.Sprint(v)
	if s == "" {
		return def
	}
	return s
}

// Int returns the option as an int, or def when absent or malformed.
func (c Config) Int(key string, def int) int {
	switch v := c.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Float returns the option as a float64, or def when absent or malformed.
func (c Config) Float(key string, def float64) float64 {
	switch v := c.Options[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Bool returns the option as a bool, or def when absent or malformed.
func (c Config) Bool(key string, def bool) bool {
	switch v := c.Options[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Duration accepts time.Duration, Go duration strings, or seconds.
func (c Config) Duration(key string, def time.Duration) time.Duration {
	switch v := c.Options[key].(type) {
	case time.Duration:
		return v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return def
}
