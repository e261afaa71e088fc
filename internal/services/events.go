package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/iamgideonidoko/sentinel/internal/models"
	"github.com/iamgideonidoko/sentinel/pkg/logger"
)

// Security event types.
const (
	EventFingerprintAnalysis = "FINGERPRINT_ANALYSIS"
	EventRequestBlocked      = "REQUEST_BLOCKED"
	EventEnhancedMonitoring  = "ENHANCED_MONITORING"
	EventSuspiciousActivity  = "SUSPICIOUS_ACTIVITY"
	EventDeviceTrusted       = "DEVICE_TRUSTED"
	EventDeviceRevoked       = "DEVICE_REVOKED"
	EventPipelineError       = "FINGERPRINT_PIPELINE_ERROR"
)

// Detail keys that are also stored in their own columns.
const (
	DetailFingerprint = "fingerprint_hash"
	DetailIP          = "ip"
)

// EventLogger records security events. Implementations must not block the
// caller on slow sinks and must never fail the request.
type EventLogger interface {
	Log(ctx context.Context, eventType string, details map[string]any)
}

type EventStore interface {
	CreateSecurityEvent(ctx context.Context, event *models.SecurityEvent) error
}

// SecurityEventLogger writes each event to the zap audit stream and persists it
// in the background.
type SecurityEventLogger struct {
	audit        *zap.Logger
	store        EventStore
	storeTimeout time.Duration
	wg           sync.WaitGroup
}

func NewSecurityEventLogger(audit *zap.Logger, store EventStore, storeTimeout time.Duration) *SecurityEventLogger {
	if audit == nil {
		audit = zap.NewNop()
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &SecurityEventLogger{
		audit:        audit.With(zap.String("component", "security_events")),
		store:        store,
		storeTimeout: storeTimeout,
	}
}

func (l *SecurityEventLogger) Log(ctx context.Context, eventType string, details map[string]any) {
	event := &models.SecurityEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		CreatedAt: time.Now().UTC(),
	}
	event.FingerprintHash, _ = details[DetailFingerprint].(string)
	event.IPAddress, _ = details[DetailIP].(string)

	encoded, err := json.Marshal(details)
	if err != nil {
		encoded = []byte(fmt.Sprintf(`{"encode_error":%q}`, err.Error()))
	}
	event.Details = string(encoded)

	l.audit.Info("security_event",
		zap.String("event_id", event.ID),
		zap.String("event_type", eventType),
		zap.String("fingerprint_hash", event.FingerprintHash),
		zap.String("ip", event.IPAddress),
		zap.Any("details", details),
	)

	if l.store == nil {
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Security event store panicked", map[string]any{"panic": fmt.Sprint(r)})
			}
		}()

		// The request may already be finished; the write gets its own deadline.
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.storeTimeout)
		defer cancel()

		if err := l.store.CreateSecurityEvent(storeCtx, event); err != nil {
			logger.Warn("Failed to persist security event", map[string]any{
				"event_id":   event.ID,
				"event_type": eventType,
				"error":      err.Error(),
			})
		}
	}()
}

// Wait blocks until pending writes finish.
func (l *SecurityEventLogger) Wait() {
	l.wg.Wait()
}

// NewAuditLogger builds the JSON audit stream. path is a file path or
// "stdout"/"stderr".
func NewAuditLogger(path string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	audit, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build audit logger: %w", err)
	}
	return audit.With(zap.String("stream", "audit")), nil
}
