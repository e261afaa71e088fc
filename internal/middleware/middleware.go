package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/iamgideonidoko/sentinel/internal/config"
	"github.com/iamgideonidoko/sentinel/pkg/logger"
)

const (
	HeaderRequestID = "X-Request-ID"
	LocalRequestID  = "request_id"
)

// maxLocalLimiters bounds the fallback limiter table.
const maxLocalLimiters = 10000

type RateLimitStore interface {
	CheckRateLimit(ctx context.Context, identifier string, limit int, window time.Duration) (bool, error)
}

// RateLimiter counts requests in Redis. When Redis is unreachable it falls back
// to in-process token buckets so limits still apply per instance.
type RateLimiter struct {
	store  RateLimitStore
	config *config.RateLimitConfig

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

func NewRateLimiter(store RateLimitStore, config *config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		store:  store,
		config: config,
		local:  make(map[string]*rate.Limiter),
	}
}

func (rl *RateLimiter) allow(ctx context.Context, identifier string, limit int, window time.Duration) bool {
	if rl.store != nil {
		allowed, err := rl.store.CheckRateLimit(ctx, identifier, limit, window)
		if err == nil {
			return allowed
		}
		logger.Debug("Rate limit store unavailable, using local limiter", map[string]any{
			"error": err.Error(),
		})
	}
	return rl.localLimiter(identifier, limit, window).Allow()
}

func (rl *RateLimiter) localLimiter(identifier string, limit int, window time.Duration) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.local[identifier]; ok {
		return limiter
	}
	if len(rl.local) >= maxLocalLimiters {
		rl.local = make(map[string]*rate.Limiter)
	}

	limiter := rate.NewLimiter(rate.Limit(float64(limit)/window.Seconds()), limit)
	rl.local[identifier] = limiter
	return limiter
}

// LimitByIP rate limits requests by IP address.
func (rl *RateLimiter) LimitByIP() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identifier := fmt.Sprintf("ip:%s", c.IP())

		if !rl.allow(c.UserContext(), identifier, rl.config.Requests, rl.config.Window) {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(rl.config.Window.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Rate limit exceeded",
				"retry_after": rl.config.Window.Seconds(),
			})
		}

		return c.Next()
	}
}

// AllowFingerprint counts one request against a fingerprint's budget.
func (rl *RateLimiter) AllowFingerprint(ctx context.Context, fingerprintHash string) bool {
	return rl.allow(ctx, "fp:"+fingerprintHash, rl.config.RequestsByFingerprint, rl.config.FingerprintWindow)
}

// RetryAfter is the fingerprint window, reported to throttled devices.
func (rl *RateLimiter) RetryAfter() time.Duration {
	return rl.config.FingerprintWindow
}

func CORS(origins []string) fiber.Handler {
	allowedOrigins := make(map[string]bool)
	for _, origin := range origins {
		allowedOrigins[origin] = true
	}

	return func(c *fiber.Ctx) error {
		origin := c.Get("Origin")

		if allowedOrigins["*"] || allowedOrigins[origin] {
			c.Set("Access-Control-Allow-Origin", origin)
			c.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Fingerprint")
			c.Set("Access-Control-Expose-Headers", "X-Request-ID, X-Require-Additional-Auth")
			c.Set("Access-Control-Max-Age", "3600")
		}

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(http.StatusNoContent)
		}

		return c.Next()
	}
}

// RequestID assigns a correlation id, reusing a well-formed inbound one.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		} else {
			id = strings.Clone(id)
		}
		c.Locals(LocalRequestID, id)
		c.Set(HeaderRequestID, id)
		return c.Next()
	}
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(LocalRequestID).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

func Logger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		logger.Info("Request handled", map[string]any{
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      c.Response().StatusCode(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          AnonymizeIP(c.IP()),
			"request_id":  c.Locals(LocalRequestID),
		})

		return err
	}
}

func Recover() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic recovered", map[string]any{
					"panic": fmt.Sprint(r),
					"path":  c.Path(),
				})
				err = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Internal server error",
				})
			}
		}()
		return c.Next()
	}
}

// AnonymizeIP zeroes the host part: the last octet for IPv4, the last 80 bits for IPv6.
func AnonymizeIP(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip
	}
	if v4 := parsed.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return parsed.Mask(net.CIDRMask(48, 128)).String()
}
