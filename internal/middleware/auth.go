package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/iamgideonidoko/sentinel/pkg/logger"
)

const (
	HeaderAdminKey   = "X-Admin-Key"
	CodeUnauthorized = "UNAUTHORIZED"
)

// AdminKey guards operator routes with a shared key sent in X-Admin-Key or as a
// bearer token. An empty key rejects every request.
func AdminKey(key string) fiber.Handler {
	expected := []byte(key)

	return func(c *fiber.Ctx) error {
		if len(expected) > 0 && subtle.ConstantTimeCompare([]byte(suppliedKey(c)), expected) == 1 {
			return c.Next()
		}

		logger.Warn("Rejected operator request", map[string]any{
			"path": c.Path(),
			"ip":   AnonymizeIP(c.IP()),
		})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Operator key required",
			"code":  CodeUnauthorized,
		})
	}
}

func suppliedKey(c *fiber.Ctx) string {
	if key := c.Get(HeaderAdminKey); key != "" {
		return key
	}
	auth := c.Get(fiber.HeaderAuthorization)
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// ProxyUserHeader returns an identity source that reads the authenticated user
// id an upstream proxy sets in header. Requests not received from a trusted
// proxy have no identity. Only meaningful with fiber's EnableTrustedProxyCheck
// on, since fiber otherwise treats every peer as a trusted proxy.
func ProxyUserHeader(header string) func(*fiber.Ctx) string {
	return func(c *fiber.Ctx) string {
		if header == "" || !c.IsProxyTrusted() {
			return ""
		}
		return strings.Clone(c.Get(header))
	}
}
