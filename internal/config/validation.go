package config

import (
	"fmt"
	"os"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	if c.Server.TLSEnabled {
		if c.Server.TLSCertPath == "" {
			errs = append(errs, &ValidationError{
				Field:   "server.tls_cert_path",
				Message: "tls_cert_path is required when tls_enabled is true",
			})
		} else if _, err := os.Stat(c.Server.TLSCertPath); os.IsNotExist(err) {
			errs = append(errs, &ValidationError{
				Field:   "server.tls_cert_path",
				Message: fmt.Sprintf("certificate file does not exist: %s", c.Server.TLSCertPath),
			})
		}

		if c.Server.TLSKeyPath == "" {
			errs = append(errs, &ValidationError{
				Field:   "server.tls_key_path",
				Message: "tls_key_path is required when tls_enabled is true",
			})
		} else if _, err := os.Stat(c.Server.TLSKeyPath); os.IsNotExist(err) {
			errs = append(errs, &ValidationError{
				Field:   "server.tls_key_path",
				Message: fmt.Sprintf("key file does not exist: %s", c.Server.TLSKeyPath),
			})
		}
	}

	// Validate detection configuration
	if c.Detection.WindowSize < 2 {
		errs = append(errs, &ValidationError{
			Field:   "detection.window_size",
			Message: fmt.Sprintf("window_size must be at least 2, got %d", c.Detection.WindowSize),
		})
	}

	if len(c.Detection.Columns) == 0 {
		errs = append(errs, &ValidationError{
			Field:   "detection.columns",
			Message: "at least one sensor column is required",
		})
	}
	for _, col := range c.Detection.Columns {
		if strings.TrimSpace(col) == "" {
			errs = append(errs, &ValidationError{
				Field:   "detection.columns",
				Message: "column names cannot be blank",
			})
			break
		}
	}

	if c.Detection.Components < 1 {
		errs = append(errs, &ValidationError{
			Field:   "detection.components",
			Message: fmt.Sprintf("components must be at least 1, got %d", c.Detection.Components),
		})
	}

	if c.Detection.WarnThreshold <= 0 || c.Detection.WarnThreshold >= 1 {
		errs = append(errs, &ValidationError{
			Field:   "detection.warn_threshold",
			Message: fmt.Sprintf("warn_threshold must be in (0, 1), got %g", c.Detection.WarnThreshold),
		})
	}

	if c.Detection.AlarmThreshold <= 0 || c.Detection.AlarmThreshold > 1 {
		errs = append(errs, &ValidationError{
			Field:   "detection.alarm_threshold",
			Message: fmt.Sprintf("alarm_threshold must be in (0, 1], got %g", c.Detection.AlarmThreshold),
		})
	}

	if c.Detection.WarnThreshold >= c.Detection.AlarmThreshold {
		errs = append(errs, &ValidationError{
			Field:   "detection.warn_threshold",
			Message: fmt.Sprintf("warn_threshold (%g) must be below alarm_threshold (%g)",
				c.Detection.WarnThreshold, c.Detection.AlarmThreshold),
		})
	}

	if c.Detection.RequiredConsecutive < 1 {
		errs = append(errs, &ValidationError{
			Field:   "detection.required_consecutive",
			Message: fmt.Sprintf("required_consecutive must be at least 1, got %d", c.Detection.RequiredConsecutive),
		})
	}

	if c.Detection.AlarmMargin < 0 {
		errs = append(errs, &ValidationError{
			Field:   "detection.alarm_margin",
			Message: fmt.Sprintf("alarm_margin cannot be negative, got %g", c.Detection.AlarmMargin),
		})
	}

	switch c.Detection.ModelScope {
	case "entity", "fleet":
	default:
		errs = append(errs, &ValidationError{
			Field:   "detection.model_scope",
			Message: fmt.Sprintf("model_scope must be \"entity\" or \"fleet\", got %q", c.Detection.ModelScope),
		})
	}

	// Validate database configuration
	if c.Database.SQLitePath == "" {
		errs = append(errs, &ValidationError{
			Field:   "database.sqlite_path",
			Message: "sqlite_path is required",
		})
	}

	// Validate logging configuration
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("level must be one of debug, info, warn, error, got %q", c.Logging.Level),
		})
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("format must be json or text, got %q", c.Logging.Format),
		})
	}

	if c.Logging.MaxSizeMB < 1 {
		errs = append(errs, &ValidationError{
			Field:   "logging.max_size_mb",
			Message: fmt.Sprintf("max_size_mb must be at least 1, got %d", c.Logging.MaxSizeMB),
		})
	}

	// Validate retention configuration
	if c.Retention.ScoreEventDays < 1 {
		errs = append(errs, &ValidationError{
			Field:   "retention.score_event_days",
			Message: fmt.Sprintf("score_event_days must be at least 1, got %d", c.Retention.ScoreEventDays),
		})
	}

	if c.Retention.CleanupIntervalMinutes < 1 {
		errs = append(errs, &ValidationError{
			Field:   "retention.cleanup_interval_minutes",
			Message: fmt.Sprintf("cleanup_interval_minutes must be at least 1, got %d", c.Retention.CleanupIntervalMinutes),
		})
	}

	return errs
}
