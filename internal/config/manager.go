package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	// Initialize viper
	m.viper = viper.New()

	// Set config file path
	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	// Set environment variable prefix
	m.viper.SetEnvPrefix("ASSETWATCH")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	m.setDefaults()

	// Try to read config file (optional)
	if err := m.viper.ReadInConfig(); err != nil {
		// Config file not found is OK if it doesn't exist, we'll use defaults + env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// File not found via viper - OK, use defaults
		} else if os.IsNotExist(err) {
			// File not found via os - OK, use defaults
		} else {
			// Other error reading config file
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply environment variable overrides
	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		// Combine all errors into a single error message
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	// Start watching config file
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		// Reload config
		if err := m.unmarshalConfig(); err != nil {
			// Log error but don't send to channel
			return
		}
		// Send updated config to channel
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	// Re-read config file
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply environment variable overrides
	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// Server defaults
	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.tls_enabled", defaults.Server.TLSEnabled)
	m.viper.SetDefault("server.tls_cert_path", defaults.Server.TLSCertPath)
	m.viper.SetDefault("server.tls_key_path", defaults.Server.TLSKeyPath)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)

	// Detection defaults
	m.viper.SetDefault("detection.window_size", defaults.Detection.WindowSize)
	m.viper.SetDefault("detection.columns", defaults.Detection.Columns)
	m.viper.SetDefault("detection.components", defaults.Detection.Components)
	m.viper.SetDefault("detection.warn_threshold", defaults.Detection.WarnThreshold)
	m.viper.SetDefault("detection.alarm_threshold", defaults.Detection.AlarmThreshold)
	m.viper.SetDefault("detection.required_consecutive", defaults.Detection.RequiredConsecutive)
	m.viper.SetDefault("detection.alarm_margin", defaults.Detection.AlarmMargin)
	m.viper.SetDefault("detection.model_scope", defaults.Detection.ModelScope)

	// Database defaults
	m.viper.SetDefault("database.sqlite_path", defaults.Database.SQLitePath)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.audit_path", defaults.Logging.AuditPath)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)

	// Retention defaults
	m.viper.SetDefault("retention.score_event_days", defaults.Retention.ScoreEventDays)
	m.viper.SetDefault("retention.cleanup_interval_minutes", defaults.Retention.CleanupIntervalMinutes)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	// Server
	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.TLSEnabled = m.viper.GetBool("server.tls_enabled")
	cfg.Server.TLSCertPath = m.viper.GetString("server.tls_cert_path")
	cfg.Server.TLSKeyPath = m.viper.GetString("server.tls_key_path")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")

	// Detection
	cfg.Detection.WindowSize = m.viper.GetInt("detection.window_size")
	cfg.Detection.Columns = m.viper.GetStringSlice("detection.columns")
	cfg.Detection.Components = m.viper.GetInt("detection.components")
	cfg.Detection.WarnThreshold = m.viper.GetFloat64("detection.warn_threshold")
	cfg.Detection.AlarmThreshold = m.viper.GetFloat64("detection.alarm_threshold")
	cfg.Detection.RequiredConsecutive = m.viper.GetInt("detection.required_consecutive")
	cfg.Detection.AlarmMargin = m.viper.GetFloat64("detection.alarm_margin")
	cfg.Detection.ModelScope = m.viper.GetString("detection.model_scope")

	// Database
	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.AuditPath = m.viper.GetString("logging.audit_path")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")

	// Retention
	cfg.Retention.ScoreEventDays = m.viper.GetInt("retention.score_event_days")
	cfg.Retention.CleanupIntervalMinutes = m.viper.GetInt("retention.cleanup_interval_minutes")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for settings that
// operators commonly set without a config file.
func (m *viperConfigManager) applyEnvOverrides() {
	// Port from environment - only override if explicitly set
	if portEnv := os.Getenv("ASSETWATCH_PORT"); portEnv != "" {
		m.config.Server.Port = m.viper.GetInt("port")
	}

	// SQLite path from environment
	if path := os.Getenv("ASSETWATCH_SQLITE_PATH"); path != "" {
		m.config.Database.SQLitePath = path
	}

	// Window size from environment - only override if explicitly set
	if sizeEnv := os.Getenv("ASSETWATCH_WINDOW_SIZE"); sizeEnv != "" {
		if size := m.viper.GetInt("window_size"); size > 0 {
			m.config.Detection.WindowSize = size
		}
	}
}
