package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/assetwatch/assetwatch/internal/models"
)

// Logger defines the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// LogStatusTransition logs a debounced status change for an entity
	LogStatusTransition(ctx context.Context, tr models.StatusTransition) error

	// LogEntityReset logs a buffer/state reset for an entity
	LogEntityReset(ctx context.Context, entityID string) error

	// LogModelFitted logs a successful monitor fit
	LogModelFitted(ctx context.Context, scope string, rows, features int, duration time.Duration) error

	// LogModelFitFailed logs a rejected monitor fit
	LogModelFitFailed(ctx context.Context, scope string, err error) error

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file
	AuditLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		MaxSize:      100, // megabytes
		MaxBackups:   10,
		MaxAge:       30, // days
		Compress:     true,
	}
}

// auditLogger implements the Logger interface
type auditLogger struct {
	app    *zap.Logger
	audit  *zap.Logger
	config *Config

	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closeOnce   sync.Once
}

// NewLogger creates a new audit logger. The app logger carries ordinary
// diagnostics; audit events go to a dedicated append-only rotated file.
func NewLogger(app *zap.Logger, config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if app == nil {
		app = zap.NewNop()
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
	}

	rotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	// Audit logs are always INFO level, append-only.
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(rotator),
		zapcore.InfoLevel,
	)

	logger := &auditLogger{
		app:         app,
		audit:       zap.New(core),
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	go logger.autoFlush()

	return logger, nil
}

// Log logs an audit event
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)

	// Flush if buffer is full
	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}
	return nil
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.app.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.audit.Info(string(eventJSON),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	l.buffer = l.buffer[:0]
	return nil
}

// autoFlush periodically flushes the buffer
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// LogStatusTransition logs a debounced status change for an entity
func (l *auditLogger) LogStatusTransition(ctx context.Context, tr models.StatusTransition) error {
	event := NewEvent(EventStatusTransition).
		WithEntity(tr.EntityID).
		WithMetadata("from", string(tr.From)).
		WithMetadata("to", string(tr.To)).
		WithMetadata("score", tr.Score).
		WithDescription(fmt.Sprintf("Entity %s transitioned %s -> %s at score %.3f", tr.EntityID, tr.From, tr.To, tr.Score))

	return l.Log(ctx, event)
}

// LogEntityReset logs a buffer/state reset for an entity
func (l *auditLogger) LogEntityReset(ctx context.Context, entityID string) error {
	event := NewEvent(EventEntityReset).
		WithEntity(entityID).
		WithDescription(fmt.Sprintf("Entity %s monitoring state reset", entityID))

	return l.Log(ctx, event)
}

// LogModelFitted logs a successful monitor fit
func (l *auditLogger) LogModelFitted(ctx context.Context, scope string, rows, features int, duration time.Duration) error {
	event := NewEvent(EventModelFitted).
		WithScope(scope).
		WithMetadata("rows", rows).
		WithMetadata("features", features).
		WithDuration(duration).
		WithDescription(fmt.Sprintf("Model for scope %s fitted on %d rows (%d features)", scope, rows, features))

	return l.Log(ctx, event)
}

// LogModelFitFailed logs a rejected monitor fit
func (l *auditLogger) LogModelFitFailed(ctx context.Context, scope string, err error) error {
	event := NewEvent(EventModelFitError).
		WithScope(scope).
		WithError(err).
		WithDescription(fmt.Sprintf("Model fit for scope %s rejected", scope))

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}
	return l.audit.Sync()
}

// Close closes the audit logger
func (l *auditLogger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.stopCh)
		l.flushTicker.Stop()
		err = l.Sync()
	})
	return err
}
