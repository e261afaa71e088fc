// Package geo resolves client IPs to coarse location and network risk data.
package geo

import (
	"context"
	"errors"
	"net"

	"github.com/iamgideonidoko/sentinel/internal/models"
)

var ErrLookupFailed = errors.New("geo lookup failed")

// Service looks up an IP. A nil location with a nil error means no data exists
// for the address.
type Service interface {
	Lookup(ctx context.Context, ip string) (*models.GeoLocation, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, ip string) (*models.GeoLocation, error)

func (f ServiceFunc) Lookup(ctx context.Context, ip string) (*models.GeoLocation, error) {
	return f(ctx, ip)
}

// Disabled never returns location data.
type Disabled struct{}

func (Disabled) Lookup(context.Context, string) (*models.GeoLocation, error) {
	return nil, nil
}

// Routable reports whether ip is a public address worth looking up.
func Routable(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return !(parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() ||
		parsed.IsLinkLocalUnicast() || parsed.IsLinkLocalMulticast())
}
