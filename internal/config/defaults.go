package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Port = 8084
	cfg.Server.TLSEnabled = false
	cfg.Server.TLSCertPath = ""
	cfg.Server.TLSKeyPath = ""

	// Detection defaults
	cfg.Detection.WindowSize = 30
	cfg.Detection.Columns = []string{"pressure", "temperature", "flow_rate", "motor_current", "vibration"}
	cfg.Detection.Components = 3
	cfg.Detection.WarnThreshold = 0.7
	cfg.Detection.AlarmThreshold = 0.9
	cfg.Detection.RequiredConsecutive = 3
	cfg.Detection.AlarmMargin = 0.1
	cfg.Detection.ModelScope = "entity"

	// Database defaults
	cfg.Database.SQLitePath = "/var/lib/assetwatch/assetwatch.db"

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.AuditPath = "/var/log/assetwatch/audit.log"
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 10
	cfg.Logging.MaxAgeDays = 90

	// Retention defaults
	cfg.Retention.ScoreEventDays = 7
	cfg.Retention.CleanupIntervalMinutes = 60

	return cfg
}
