package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/iamgideonidoko/sentinel/internal/models"
	"github.com/iamgideonidoko/sentinel/internal/repository"
)

// fakeTrustStore is an in-memory TrustedDeviceStore.
type fakeTrustStore struct {
	mu      sync.Mutex
	devices map[string]*models.TrustedDevice
	findErr error
	upErr   error
	upserts int
}

func newFakeTrustStore() *fakeTrustStore {
	return &fakeTrustStore{devices: make(map[string]*models.TrustedDevice)}
}

func (f *fakeTrustStore) FindTrustedDevice(_ context.Context, hash, userID string) (*models.TrustedDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	d, ok := f.devices[hash+"|"+userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (f *fakeTrustStore) UpsertTrustedDevice(_ context.Context, hash, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.upErr != nil {
		return f.upErr
	}
	key := hash + "|" + userID
	if d, ok := f.devices[key]; ok {
		d.Trusted = true
		d.LastLoginAt = at
		return nil
	}
	f.devices[key] = &models.TrustedDevice{
		FingerprintHash: hash, UserID: userID, Trusted: true, LastLoginAt: at, CreatedAt: at,
	}
	return nil
}

func (f *fakeTrustStore) RevokeTrustedDevice(_ context.Context, hash, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hash + "|" + userID
	if _, ok := f.devices[key]; !ok {
		return repository.ErrNotFound
	}
	delete(f.devices, key)
	return nil
}

// recordingEvents captures logged events.
type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	Type    string
	Details map[string]any
}

func (r *recordingEvents) Log(_ context.Context, eventType string, details map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: eventType, Details: details})
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// countingMetrics records counter increments.
type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (c *countingMetrics) IncrementMetric(_ context.Context, metric string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[metric]++
	return c.err
}

var errStoreDown = errors.New("store down")
