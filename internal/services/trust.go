package services

import (
	"context"
	"errors"
	"time"

	"github.com/iamgideonidoko/sentinel/internal/models"
	"github.com/iamgideonidoko/sentinel/internal/repository"
	"github.com/iamgideonidoko/sentinel/pkg/logger"
)

type TrustedDeviceStore interface {
	FindTrustedDevice(ctx context.Context, fingerprintHash, userID string) (*models.TrustedDevice, error)
	UpsertTrustedDevice(ctx context.Context, fingerprintHash, userID string, at time.Time) error
	RevokeTrustedDevice(ctx context.Context, fingerprintHash, userID string) error
}

var errNoTrustStore = errors.New("trusted device store not configured")

// TrustService bridges to durable per-user device trust. Lookups never fail:
// any store problem reads as untrusted.
type TrustService struct {
	store   TrustedDeviceStore
	events  EventLogger
	timeout time.Duration
	retry   repository.RetryConfig
	now     func() time.Time
}

func NewTrustService(store TrustedDeviceStore, events EventLogger, timeout time.Duration) *TrustService {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &TrustService{
		store:   store,
		events:  events,
		timeout: timeout,
		retry: repository.RetryConfig{
			MaxAttempts: 3,
			InitialWait: 50 * time.Millisecond,
			MaxWait:     500 * time.Millisecond,
			Multiplier:  2,
		},
		now: time.Now,
	}
}

// IsTrusted reports whether userID has trusted this device.
func (s *TrustService) IsTrusted(ctx context.Context, fingerprintHash, userID string) bool {
	if s.store == nil || fingerprintHash == "" || userID == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	device, err := s.store.FindTrustedDevice(ctx, fingerprintHash, userID)
	return trustedOrDefault(device, err, fingerprintHash)
}

func trustedOrDefault(device *models.TrustedDevice, err error, fingerprintHash string) bool {
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.Warn("Trusted device lookup failed", map[string]any{
				"fingerprint_hash": fingerprintHash,
				"error":            err.Error(),
			})
		}
		return false
	}
	return device != nil && device.Trusted
}

// Trust marks the device trusted for userID. Failures are logged by
// TrustDevice and otherwise ignored.
func (s *TrustService) Trust(ctx context.Context, fingerprintHash, userID string) {
	_ = s.TrustDevice(ctx, fingerprintHash, userID)
}

// TrustDevice is Trust with the store error returned. Repeating the call
// refreshes the last login time.
func (s *TrustService) TrustDevice(ctx context.Context, fingerprintHash, userID string) error {
	if s.store == nil {
		return errNoTrustStore
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	at := s.now()
	err := repository.WithRetry(ctx, s.retry, func(ctx context.Context) error {
		return s.store.UpsertTrustedDevice(ctx, fingerprintHash, userID, at)
	})
	if err != nil {
		logger.Error("Failed to trust device", map[string]any{
			"fingerprint_hash": fingerprintHash,
			"error":            err.Error(),
		})
		return err
	}

	if s.events != nil {
		s.events.Log(ctx, EventDeviceTrusted, map[string]any{
			DetailFingerprint: fingerprintHash,
			"user_id":         userID,
		})
	}
	return nil
}

// Revoke removes trust for userID. It returns repository.ErrNotFound when no
// record exists.
func (s *TrustService) Revoke(ctx context.Context, fingerprintHash, userID string) error {
	if s.store == nil {
		return errNoTrustStore
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := repository.WithRetry(ctx, s.retry, func(ctx context.Context) error {
		return s.store.RevokeTrustedDevice(ctx, fingerprintHash, userID)
	})
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.Error("Failed to revoke device", map[string]any{
				"fingerprint_hash": fingerprintHash,
				"error":            err.Error(),
			})
		}
		return err
	}

	if s.events != nil {
		s.events.Log(ctx, EventDeviceRevoked, map[string]any{
			DetailFingerprint: fingerprintHash,
			"user_id":         userID,
		})
	}
	return nil
}
