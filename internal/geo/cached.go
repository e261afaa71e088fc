package geo

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/iamgideonidoko/sentinel/internal/models"
	"github.com/iamgideonidoko/sentinel/pkg/cache"
	"github.com/iamgideonidoko/sentinel/pkg/logger"
)

type Store interface {
	GetGeo(ctx context.Context, ip string, dest any) error
	SetGeo(ctx context.Context, ip string, value any, ttl time.Duration) error
}

// cachedEntry distinguishes a cached "no data" result from a miss.
type cachedEntry struct {
	Location *models.GeoLocation `json:"location"`
}

// CachedService fronts a Service with a shared cache and collapses concurrent
// lookups for the same IP into one upstream call.
type CachedService struct {
	next  Service
	store Store
	ttl   time.Duration
	group singleflight.Group
}

func NewCachedService(next Service, store Store, ttl time.Duration) *CachedService {
	return &CachedService{next: next, store: store, ttl: ttl}
}

func (s *CachedService) Lookup(ctx context.Context, ip string) (*models.GeoLocation, error) {
	if !Routable(ip) {
		return nil, nil
	}

	var entry cachedEntry
	err := s.store.GetGeo(ctx, ip, &entry)
	if err == nil {
		return entry.Location, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		logger.Debug("Geo cache read failed", map[string]any{"ip": ip, "error": err.Error()})
	}

	ch := s.group.DoChan(ip, func() (any, error) {
		// Detached so one caller's cancellation does not fail the others.
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		loc, err := s.next.Lookup(lookupCtx, ip)
		if err != nil {
			return nil, err
		}
		if err := s.store.SetGeo(lookupCtx, ip, cachedEntry{Location: loc}, s.ttl); err != nil {
			logger.Debug("Geo cache write failed", map[string]any{"ip": ip, "error": err.Error()})
		}
		return loc, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		loc, _ := res.Val.(*models.GeoLocation)
		return loc, nil
	}
}
