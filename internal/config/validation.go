package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidationError describes a single invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates every invalid field found in one pass.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d validation error(s): %s", len(e), strings.Join(msgs, "; "))
}

// ValidateConfig checks every section and reports all problems at once.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Version < 1 || c.Version > Version {
		add("version", "must be between 1 and %d, got %d", Version, c.Version)
	}

	if c.Engine.DefaultThresholdMs <= 0 || c.Engine.DefaultThresholdMs > 5000 {
		add("engine.default_threshold_ms", "must be in 1..5000, got %d", c.Engine.DefaultThresholdMs)
	}
	if c.Engine.TickIntervalMs <= 0 || c.Engine.TickIntervalMs > 1000 {
		add("engine.tick_interval_ms", "must be in 1..1000, got %d", c.Engine.TickIntervalMs)
	}
	if c.Engine.QueueSize < 16 || c.Engine.QueueSize > 65536 {
		add("engine.queue_size", "must be in 16..65536, got %d", c.Engine.QueueSize)
	}

	if c.Profile.SourcePath == "" {
		add("profile.source_path", "must not be empty")
	}
	if c.Profile.DebounceMs < 0 || c.Profile.DebounceMs > 10000 {
		add("profile.debounce_ms", "must be in 0..10000, got %d", c.Profile.DebounceMs)
	}

	for i, p := range c.Devices.IncludePatterns {
		if _, err := filepath.Match(p, ""); err != nil {
			add(fmt.Sprintf("devices.include_patterns[%d]", i), "invalid glob %q", p)
		}
	}
	for i, p := range c.Devices.ExcludePatterns {
		if _, err := filepath.Match(p, ""); err != nil {
			add(fmt.Sprintf("devices.exclude_patterns[%d]", i), "invalid glob %q", p)
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level", "must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		add("logging.format", "must be json or text, got %q", c.Logging.Format)
	}
	if c.Logging.MaxSizeMB <= 0 {
		add("logging.max_size_mb", "must be positive, got %d", c.Logging.MaxSizeMB)
	}
	if c.Logging.MaxBackups < 0 {
		add("logging.max_backups", "must not be negative, got %d", c.Logging.MaxBackups)
	}

	if c.IPC.Enabled && c.IPC.SocketPath == "" {
		add("ipc.socket_path", "must be set when ipc is enabled")
	}

	if c.Store.MaxHistory < 0 {
		add("store.max_history", "must not be negative, got %d", c.Store.MaxHistory)
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		add("metrics.listen_addr", "must be set when metrics are enabled")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
