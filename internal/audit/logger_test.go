package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/assetwatch/assetwatch/internal/models"
)

func newTestLogger(t *testing.T) (Logger, string) {
	t.Helper()
	tmpDir := t.TempDir()

	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		MaxSize:      10,
		MaxBackups:   3,
		MaxAge:       7,
		Compress:     false,
	}

	logger, err := NewLogger(zap.NewNop(), config)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	t.Cleanup(func() { logger.Close() })

	return logger, config.AuditLogPath
}

func readAuditLog(t *testing.T, logger Logger, path string) string {
	t.Helper()
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}
	return string(content)
}

func TestNewLogger(t *testing.T) {
	logger, _ := newTestLogger(t)
	if logger == nil {
		t.Fatal("Expected logger to be non-nil")
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.AuditLogPath != "logs/audit.log" {
		t.Errorf("Expected audit log path 'logs/audit.log', got %s", config.AuditLogPath)
	}
	if config.MaxSize != 100 {
		t.Errorf("Expected max size 100, got %d", config.MaxSize)
	}
	if config.MaxBackups != 10 {
		t.Errorf("Expected max backups 10, got %d", config.MaxBackups)
	}
}

func TestLogEvent(t *testing.T) {
	logger, path := newTestLogger(t)

	ctx := context.Background()
	event := NewEvent(EventModelFitted).
		WithScope("pump-1").
		WithMetadata("rows", 120).
		WithResult(ResultSuccess)

	if err := logger.Log(ctx, event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	logContent := readAuditLog(t, logger, path)
	if !strings.Contains(logContent, "model.fitted") {
		t.Error("Log does not contain event type")
	}
	if !strings.Contains(logContent, "pump-1") {
		t.Error("Log does not contain scope")
	}
}

func TestLogStatusTransition(t *testing.T) {
	logger, path := newTestLogger(t)

	tr := models.StatusTransition{
		EntityID: "compressor-7",
		From:     models.StatusOK,
		To:       models.StatusAlarm,
		Score:    0.97,
		At:       time.Now().UTC(),
	}
	if err := logger.LogStatusTransition(context.Background(), tr); err != nil {
		t.Fatalf("LogStatusTransition failed: %v", err)
	}

	logContent := readAuditLog(t, logger, path)
	if !strings.Contains(logContent, "status.transition") {
		t.Error("Log does not contain transition event type")
	}
	if !strings.Contains(logContent, "compressor-7") {
		t.Error("Log does not contain entity ID")
	}
	if !strings.Contains(logContent, "ALARM") {
		t.Error("Log does not contain target status")
	}
}

func TestLogModelLifecycle(t *testing.T) {
	logger, path := newTestLogger(t)
	ctx := context.Background()

	if err := logger.LogModelFitted(ctx, "fleet", 200, 40, 15*time.Millisecond); err != nil {
		t.Fatalf("LogModelFitted failed: %v", err)
	}
	if err := logger.LogModelFitFailed(ctx, "fleet", errors.New("baseline too small")); err != nil {
		t.Fatalf("LogModelFitFailed failed: %v", err)
	}

	logContent := readAuditLog(t, logger, path)
	if !strings.Contains(logContent, "model.fitted") {
		t.Error("Log does not contain fitted event")
	}
	if !strings.Contains(logContent, "model.fit_error") {
		t.Error("Log does not contain fit error event")
	}
	if !strings.Contains(logContent, "baseline too small") {
		t.Error("Log does not contain fit error message")
	}
}

func TestLogEntityReset(t *testing.T) {
	logger, path := newTestLogger(t)

	if err := logger.LogEntityReset(context.Background(), "pump-3"); err != nil {
		t.Fatalf("LogEntityReset failed: %v", err)
	}

	logContent := readAuditLog(t, logger, path)
	if !strings.Contains(logContent, "status.entity_reset") {
		t.Error("Log does not contain reset event")
	}
	if !strings.Contains(logContent, "pump-3") {
		t.Error("Log does not contain entity ID")
	}
}

func TestEventBuilder(t *testing.T) {
	event := NewEvent(EventModelFitError).
		WithScope("pump-1").
		WithError(errors.New("boom")).
		WithDuration(1500 * time.Millisecond)

	if event.Result != ResultFailure {
		t.Errorf("Expected failure result after WithError, got %s", event.Result)
	}
	if event.Error != "boom" {
		t.Errorf("Expected error 'boom', got %q", event.Error)
	}
	if event.DurationMs != 1500 {
		t.Errorf("Expected duration 1500ms, got %d", event.DurationMs)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	logger, _ := newTestLogger(t)

	if err := logger.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
