package middleware

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/iamgideonidoko/sentinel/internal/fingerprint"
	"github.com/iamgideonidoko/sentinel/internal/models"
	"github.com/iamgideonidoko/sentinel/internal/services"
	"github.com/iamgideonidoko/sentinel/pkg/logger"
	"github.com/iamgideonidoko/sentinel/pkg/validator"
)

// Request locals and headers set by FraudGuard.
const (
	LocalFingerprint      = "fingerprint"
	LocalFingerprintError = "fingerprint_error"
	HeaderAdditionalAuth  = "X-Require-Additional-Auth"
)

// Rejection codes.
const (
	CodeFingerprintRequired = "FINGERPRINT_REQUIRED"
	CodeSecurityViolation   = "SECURITY_VIOLATION"
	CodeRateLimited         = "RATE_LIMITED"
)

type FraudOptions struct {
	RequireFingerprint   bool
	EnableFraudDetection bool
	LogAllRequests       bool
	// SkipRoutes are path substrings that bypass the guard.
	SkipRoutes []string
	// UserIdentity returns the authenticated user behind a request, or "".
	// Trusted devices are only consulted when it is set; client-supplied
	// headers must never back it.
	UserIdentity func(c *fiber.Ctx) string
}

type Analyzer interface {
	Evaluate(ctx context.Context, payload *models.FingerprintPayload, signals models.ServerSignals) (*models.Analysis, models.FingerprintResult)
	RecordMetric(ctx context.Context, metric string)
}

type TrustChecker interface {
	IsTrusted(ctx context.Context, fingerprintHash, userID string) bool
}

type FingerprintLimiter interface {
	AllowFingerprint(ctx context.Context, fingerprintHash string) bool
	RetryAfter() time.Duration
}

// FraudGuard runs the risk pipeline in front of protected routes. Internal
// faults never reject a request: they mark it with LocalFingerprintError and
// let it through.
type FraudGuard struct {
	analyzer Analyzer
	trust    TrustChecker
	events   services.EventLogger
	limiter  FingerprintLimiter
}

func NewFraudGuard(analyzer Analyzer, trust TrustChecker, events services.EventLogger, limiter FingerprintLimiter) *FraudGuard {
	return &FraudGuard{
		analyzer: analyzer,
		trust:    trust,
		events:   events,
		limiter:  limiter,
	}
}

type verdictKind int

const (
	verdictAllow verdictKind = iota
	verdictBlock
	verdictThrottle
)

type verdict struct {
	kind   verdictKind
	result models.FingerprintResult
}

func (g *FraudGuard) Protect(opts FraudOptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, route := range opts.SkipRoutes {
			if route != "" && strings.Contains(path, route) {
				return c.Next()
			}
		}

		payload := fingerprint.Extract(c)
		if payload == nil {
			if opts.RequireFingerprint {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Device fingerprint required",
					"code":  CodeFingerprintRequired,
				})
			}
			return c.Next()
		}

		v, err := g.evaluate(c, payload, opts)
		if err != nil {
			c.Locals(LocalFingerprintError, true)
			logger.Error("Fingerprint pipeline failed, allowing request", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
			g.analyzer.RecordMetric(c.UserContext(), services.MetricPipelineErrors)
			g.log(c.UserContext(), services.EventPipelineError, map[string]any{
				"path":  path,
				"error": err.Error(),
			})
			return c.Next()
		}

		switch v.kind {
		case verdictBlock:
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":      "Request blocked due to security concerns",
				"code":       CodeSecurityViolation,
				"request_id": requestID(c),
			})
		case verdictThrottle:
			retryAfter := g.limiter.RetryAfter()
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(retryAfter.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests from this device",
				"code":        CodeRateLimited,
				"retry_after": retryAfter.Seconds(),
			})
		}

		return c.Next()
	}
}

// evaluate converts panics anywhere in the pipeline into an error.
func (g *FraudGuard) evaluate(c *fiber.Ctx, payload *models.FingerprintPayload, opts FraudOptions) (v verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	ctx := c.UserContext()
	analysis, result := g.analyzer.Evaluate(ctx, payload, fingerprint.Signals(c))

	trusted := false
	if opts.UserIdentity != nil && g.trust != nil {
		if userID := opts.UserIdentity(c); userID != "" {
			trusted = g.trust.IsTrusted(ctx, analysis.FingerprintHash, userID)
		}
	}
	result.TrustedDevice = trusted
	c.Locals(LocalFingerprint, result)

	details := g.details(c, analysis)

	if opts.LogAllRequests {
		g.log(ctx, services.EventFingerprintAnalysis, details)
	}

	if !opts.EnableFraudDetection {
		return verdict{kind: verdictAllow, result: result}, nil
	}

	decision := result.FraudCheck
	if decision.Blocked {
		details["reason"] = *decision.Reason
		details["confidence"] = decision.Confidence
		details["request_id"] = requestID(c)
		g.log(ctx, services.EventRequestBlocked, details)
		g.analyzer.RecordMetric(ctx, services.MetricBlocked)
		return verdict{kind: verdictBlock, result: result}, nil
	}

	if decision.HasAction(models.ActionEnhancedMonitoring) {
		g.log(ctx, services.EventEnhancedMonitoring, details)
	}
	if decision.HasAction(models.ActionLogActivity) {
		g.log(ctx, services.EventSuspiciousActivity, details)
	}
	if trusted {
		return verdict{kind: verdictAllow, result: result}, nil
	}

	if decision.HasAction(models.ActionRequireAdditionalAuth) {
		c.Set(HeaderAdditionalAuth, "true")
	}
	if decision.HasAction(models.ActionRateLimit) && g.limiter != nil &&
		!g.limiter.AllowFingerprint(ctx, analysis.FingerprintHash) {
		g.analyzer.RecordMetric(ctx, services.MetricRateLimited)
		return verdict{kind: verdictThrottle, result: result}, nil
	}

	return verdict{kind: verdictAllow, result: result}, nil
}

func (g *FraudGuard) details(c *fiber.Ctx, analysis *models.Analysis) map[string]any {
	return map[string]any{
		services.DetailFingerprint: analysis.FingerprintHash,
		services.DetailIP:          AnonymizeIP(analysis.ClientIP),
		"risk_score":               analysis.RiskScore,
		"risk_level":               analysis.RiskLevel,
		"flags":                    analysis.Flags,
		"path":                     strings.Clone(c.Path()),
		"method":                   strings.Clone(c.Method()),
		"user_agent":               validator.SanitizeString(analysis.UserAgent),
	}
}

func (g *FraudGuard) log(ctx context.Context, eventType string, details map[string]any) {
	if g.events == nil {
		return
	}
	g.events.Log(ctx, eventType, maps.Clone(details))
}

// Result returns the analysis attached by FraudGuard, if any.
func Result(c *fiber.Ctx) (models.FingerprintResult, bool) {
	result, ok := c.Locals(LocalFingerprint).(models.FingerprintResult)
	return result, ok
}
