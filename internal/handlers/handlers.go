package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/iamgideonidoko/sentinel/internal/config"
	"github.com/iamgideonidoko/sentinel/internal/fingerprint"
	"github.com/iamgideonidoko/sentinel/internal/middleware"
	"github.com/iamgideonidoko/sentinel/internal/models"
	"github.com/iamgideonidoko/sentinel/internal/repository"
	"github.com/iamgideonidoko/sentinel/internal/services"
	"github.com/iamgideonidoko/sentinel/pkg/logger"
	"github.com/iamgideonidoko/sentinel/pkg/risk"
	"github.com/iamgideonidoko/sentinel/pkg/validator"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

type RiskAnalyzer interface {
	Evaluate(ctx context.Context, payload *models.FingerprintPayload, signals models.ServerSignals) (*models.Analysis, models.FingerprintResult)
	Thresholds() risk.Thresholds
	SetThresholds(t risk.Thresholds) error
	RecentAnalyses(n int) []*models.Analysis
}

type DeviceTruster interface {
	TrustDevice(ctx context.Context, fingerprintHash, userID string) error
	Revoke(ctx context.Context, fingerprintHash, userID string) error
	IsTrusted(ctx context.Context, fingerprintHash, userID string) bool
}

type EventReader interface {
	GetRecentSecurityEvents(ctx context.Context, limit, offset int) ([]models.SecurityEvent, error)
}

type MetricsReader interface {
	GetMetrics(ctx context.Context, metrics ...string) (map[string]int64, error)
}

// HealthCheck reports the state of one dependency.
type HealthCheck func(ctx context.Context) error

type Dependencies struct {
	Risk    RiskAnalyzer
	Trust   DeviceTruster
	Events  EventReader
	Metrics MetricsReader
	// Checks are run by Health, keyed by dependency name.
	Checks map[string]HealthCheck
	// ThresholdsFile, when set, receives thresholds changed through the API.
	ThresholdsFile string
}

type Handler struct {
	risk           RiskAnalyzer
	trust          DeviceTruster
	events         EventReader
	metrics        MetricsReader
	checks         map[string]HealthCheck
	thresholdsFile string
}

func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		risk:           deps.Risk,
		trust:          deps.Trust,
		events:         deps.Events,
		metrics:        deps.Metrics,
		checks:         deps.Checks,
		thresholdsFile: deps.ThresholdsFile,
	}
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(middleware.LocalRequestID).(string); ok && id != "" {
		return id
	}
	if id := c.Get(middleware.HeaderRequestID); id != "" {
		return strings.Clone(id)
	}
	return uuid.New().String()
}

func badRequest(c *fiber.Ctx, requestID string, message any) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":      message,
		"request_id": requestID,
	})
}

// Analyze handles POST /v1/analyze. It reports the analysis and decision for the
// submitted fingerprint; enforcement is left to the guard in front of it.
func (h *Handler) Analyze(c *fiber.Ctx) error {
	reqID := requestID(c)
	log := logger.WithField("request_id", reqID)

	if result, ok := middleware.Result(c); ok {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"request_id": reqID,
			"result":     result,
		})
	}

	payload := fingerprint.Extract(c)
	if err := validator.ValidateFingerprintPayload(payload); err != nil {
		log.Warn("Fingerprint validation failed", map[string]any{
			"error": err.Error(),
		})
		return badRequest(c, reqID, err.Error())
	}

	_, result := h.risk.Evaluate(c.UserContext(), payload, fingerprint.Signals(c))

	log.Info("Fingerprint analysed", map[string]any{
		"fingerprint_hash": result.Fingerprint,
		"risk_score":       result.RiskScore,
		"risk_level":       result.RiskLevel,
	})

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"request_id": reqID,
		"result":     result,
	})
}

// TrustDevice handles POST /api/devices/trust.
func (h *Handler) TrustDevice(c *fiber.Ctx) error {
	reqID := requestID(c)
	log := logger.WithField("request_id", reqID)

	var req models.TrustRequest
	if err := c.BodyParser(&req); err != nil {
		log.Warn("Failed to parse request body", map[string]any{
			"error": err.Error(),
		})
		return badRequest(c, reqID, "Invalid request body")
	}
	if err := validator.ValidateTrustRequest(req); err != nil {
		return badRequest(c, reqID, err.Error())
	}

	if err := h.trust.TrustDevice(c.UserContext(), req.FingerprintHash, req.UserID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":      "Failed to trust device",
			"request_id": reqID,
		})
	}

	log.Info("Device trusted", map[string]any{
		"fingerprint_hash": req.FingerprintHash,
	})

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"fingerprint_hash": req.FingerprintHash,
		"user_id":          req.UserID,
		"trusted":          true,
	})
}

// RevokeDevice handles DELETE /api/devices/trust.
func (h *Handler) RevokeDevice(c *fiber.Ctx) error {
	reqID := requestID(c)

	var req models.TrustRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, reqID, "Invalid request body")
	}
	if err := validator.ValidateTrustRequest(req); err != nil {
		return badRequest(c, reqID, err.Error())
	}

	err := h.trust.Revoke(c.UserContext(), req.FingerprintHash, req.UserID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":      "Trusted device not found",
			"request_id": reqID,
		})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":      "Failed to revoke device",
			"request_id": reqID,
		})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// IsTrusted handles GET /api/devices/trusted?fingerprint_hash=&user_id=.
func (h *Handler) IsTrusted(c *fiber.Ctx) error {
	reqID := requestID(c)

	req := models.TrustRequest{
		FingerprintHash: strings.Clone(c.Query("fingerprint_hash")),
		UserID:          strings.Clone(c.Query("user_id")),
	}
	if err := validator.ValidateTrustRequest(req); err != nil {
		return badRequest(c, reqID, err.Error())
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"fingerprint_hash": req.FingerprintHash,
		"user_id":          req.UserID,
		"trusted":          h.trust.IsTrusted(c.UserContext(), req.FingerprintHash, req.UserID),
	})
}

// Health handles GET /health.
func (h *Handler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := fiber.StatusOK
	checks := make(fiber.Map, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = fiber.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "healthy"
	if status != fiber.StatusOK {
		state = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status":  state,
		"service": "sentinel-api",
		"checks":  checks,
	})
}

// MetricNames lists the counters reported by Metrics.
func MetricNames() []string {
	names := []string{
		services.MetricAnalyses,
		services.MetricBlocked,
		services.MetricRateLimited,
		services.MetricPipelineErrors,
	}
	for _, level := range []models.RiskLevel{
		models.RiskMinimal, models.RiskLow, models.RiskMedium, models.RiskHigh, models.RiskCritical,
	} {
		names = append(names, services.MetricLevelPrefix+strings.ToLower(string(level)))
	}
	return names
}

// Metrics handles GET /metrics.
func (h *Handler) Metrics(c *fiber.Ctx) error {
	if h.metrics == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Metrics store not configured",
		})
	}

	counters, err := h.metrics.GetMetrics(c.UserContext(), MetricNames()...)
	if err != nil {
		logger.Error("Failed to read metrics", map[string]any{
			"error": err.Error(),
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch metrics",
		})
	}

	body := make(fiber.Map, len(counters)+1)
	for name, value := range counters {
		body[name] = value
	}
	body["block_rate"] = calculateRate(counters[services.MetricBlocked], counters[services.MetricAnalyses])

	return c.Status(fiber.StatusOK).JSON(body)
}

// RecentAnalyses handles GET /api/analyses.
func (h *Handler) RecentAnalyses(c *fiber.Ctx) error {
	limit := clampLimit(c.QueryInt("limit", defaultListLimit))

	analyses := h.risk.RecentAnalyses(limit)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"analyses": analyses,
		"limit":    limit,
	})
}

// GetThresholds handles GET /api/thresholds.
func (h *Handler) GetThresholds(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.risk.Thresholds())
}

// UpdateThresholds handles PUT /api/thresholds.
func (h *Handler) UpdateThresholds(c *fiber.Ctx) error {
	reqID := requestID(c)
	log := logger.WithField("request_id", reqID)

	var req models.ThresholdsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, reqID, "Invalid request body")
	}

	thresholds, err := validator.ValidateThresholds(req)
	if err != nil {
		return badRequest(c, reqID, err.Error())
	}
	if err := h.risk.SetThresholds(thresholds); err != nil {
		return badRequest(c, reqID, err.Error())
	}

	if h.thresholdsFile != "" {
		if err := config.SaveThresholdsFile(h.thresholdsFile, thresholds); err != nil {
			log.Error("Failed to persist thresholds", map[string]any{
				"path":  h.thresholdsFile,
				"error": err.Error(),
			})
		}
	}

	log.Info("Risk thresholds updated", map[string]any{
		"low":      thresholds.Low,
		"medium":   thresholds.Medium,
		"high":     thresholds.High,
		"critical": thresholds.Critical,
	})

	return c.Status(fiber.StatusOK).JSON(thresholds)
}

type eventView struct {
	models.SecurityEvent
	Details json.RawMessage `json:"details"`
}

// RecentEvents handles GET /api/events.
func (h *Handler) RecentEvents(c *fiber.Ctx) error {
	limit := clampLimit(c.QueryInt("limit", defaultListLimit))
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	events, err := h.events.GetRecentSecurityEvents(c.UserContext(), limit, offset)
	if err != nil {
		logger.Error("Failed to fetch security events", map[string]any{
			"error": err.Error(),
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch events",
		})
	}

	views := make([]eventView, 0, len(events))
	for _, e := range events {
		details := json.RawMessage(e.Details)
		if !json.Valid(details) {
			details, _ = json.Marshal(e.Details)
		}
		views = append(views, eventView{SecurityEvent: e, Details: details})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"events": views,
		"limit":  limit,
		"offset": offset,
	})
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func calculateRate(numerator, denominator int64) float64 {
	if denominator == 0 {
		return 0.0
	}
	return (float64(numerator) / float64(denominator)) * 100
}
