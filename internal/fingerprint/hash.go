package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/iamgideonidoko/sentinel/internal/models"
)

// BuildHash digests the stable client components and server signals into a
// hex-encoded SHA-256. The canonical form is JSON with lexicographically sorted
// keys at every level, so the hash is stable across processes.
func BuildHash(payload *models.FingerprintPayload, signals models.ServerSignals) string {
	hash := sha256.Sum256(Canonical(payload, signals))
	return hex.EncodeToString(hash[:])
}

// Canonical returns the byte form that BuildHash digests.
func Canonical(payload *models.FingerprintPayload, signals models.ServerSignals) []byte {
	if payload == nil {
		payload = &models.FingerprintPayload{}
	}
	c := payload.Components

	// encoding/json writes map keys in sorted order.
	canonical := map[string]any{
		"fingerprint":    payload.Fingerprint,
		"screen":         dimensions(c.Screen),
		"timezone":       c.Timezone,
		"hardware":       hardware(c.Hardware),
		"platform":       c.Platform,
		"userAgent":      signals.UserAgent,
		"acceptLanguage": signals.AcceptLanguage,
		"acceptEncoding": signals.AcceptEncoding,
		"ip":             signals.ClientIP,
	}

	// Marshal cannot fail for maps of strings, numbers and nested maps.
	data, _ := json.Marshal(canonical)
	return data
}

func dimensions(d *models.Dimensions) any {
	if d == nil {
		return nil
	}
	return map[string]any{
		"width":  d.Width,
		"height": d.Height,
	}
}

func hardware(h *models.Hardware) any {
	if h == nil {
		return nil
	}
	return map[string]any{
		"hardwareConcurrency": h.HardwareConcurrency,
		"deviceMemory":        h.DeviceMemory,
	}
}
