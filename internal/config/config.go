package config

import "context"

// Package config provides configuration management for assetwatch.
//
// Responsibilities:
//   - Load configuration from YAML files and environment variables
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support configuration reloading (for some settings)
//   - Establish reasonable defaults
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (ASSETWATCH_* prefix)
//   2. YAML config files (default: /etc/assetwatch/config.yaml)
//   3. Built-in defaults (lowest priority)
//
// Main Configuration Sections:
//
//   1. Server
//      - port: Listen port (default 8084)
//      - tls_enabled: Enable TLS
//      - tls_cert_path: Path to certificate
//      - tls_key_path: Path to key
//      - allowed_origins: Origins permitted to open WebSocket streams
//
//   2. Detection
//      - window_size: Per-entity sliding window length
//      - columns: Sensor channels extracted per window
//      - components: Retained subspace rank for the monitor
//      - warn_threshold / alarm_threshold: Score zone boundaries
//      - required_consecutive: Samples needed to commit a transition
//      - alarm_margin: Downgrade margin below the alarm threshold
//      - model_scope: "entity" (per-entity models) | "fleet" (one shared model)
//
//   3. Database
//      - sqlite_path: Path to SQLite file
//
//   4. Logging
//      - level: "debug" | "info" | "warn" | "error"
//      - format: "json" | "text"
//      - audit_path: Audit log file (rotated)
//      - max_size_mb / max_backups / max_age_days: Rotation policy
//
//   5. Retention
//      - score_event_days: Keep score events for N days
//      - cleanup_interval_minutes: How often the retention sweep runs
//
// Config struct contains all configuration fields
type Config struct {
	// Server configuration
	Server struct {
		Port        int
		TLSEnabled  bool
		TLSCertPath string
		TLSKeyPath  string
		// AllowedOrigins is a list of origins permitted to open WebSocket connections.
		// Use ["*"] to allow any origin (development only).
		// If empty, defaults to ["http://localhost:3000", "http://localhost:5173"].
		AllowedOrigins []string
	}

	// Detection configuration
	Detection struct {
		WindowSize          int
		Columns             []string
		Components          int
		WarnThreshold       float64
		AlarmThreshold      float64
		RequiredConsecutive int
		AlarmMargin         float64
		ModelScope          string // "entity" | "fleet"
	}

	// Database configuration
	Database struct {
		SQLitePath string
	}

	// Logging configuration
	Logging struct {
		Level      string
		Format     string
		AuditPath  string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}

	// Retention configuration
	Retention struct {
		ScoreEventDays         int
		CleanupIntervalMinutes int
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources (selective settings).
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("/etc/assetwatch/config.yaml")
}
