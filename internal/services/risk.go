package services

import (
	"context"
	"strings"
	"time"

	"github.com/iamgideonidoko/sentinel/internal/fingerprint"
	"github.com/iamgideonidoko/sentinel/internal/geo"
	"github.com/iamgideonidoko/sentinel/internal/models"
	"github.com/iamgideonidoko/sentinel/pkg/cache"
	"github.com/iamgideonidoko/sentinel/pkg/logger"
	"github.com/iamgideonidoko/sentinel/pkg/risk"
)

// Counter names shared with the metrics endpoint.
const (
	MetricAnalyses       = "analyses_total"
	MetricBlocked        = "requests_blocked"
	MetricRateLimited    = "requests_rate_limited"
	MetricPipelineErrors = "pipeline_errors"
	MetricLevelPrefix    = "risk_level_"
)

type MetricsRecorder interface {
	IncrementMetric(ctx context.Context, metric string) error
}

type RiskServiceConfig struct {
	Scorer     *risk.Scorer
	Thresholds *risk.ThresholdStore
	Analyses   *cache.AnalysisCache
	Geo        geo.Service
	GeoTimeout time.Duration
	Metrics    MetricsRecorder
}

// RiskService turns a fingerprint and request metadata into a scored analysis
// and a fraud decision. It is safe for concurrent use.
type RiskService struct {
	scorer     *risk.Scorer
	thresholds *risk.ThresholdStore
	analyses   *cache.AnalysisCache
	geo        geo.Service
	geoTimeout time.Duration
	metrics    MetricsRecorder
	now        func() time.Time
}

func NewRiskService(cfg RiskServiceConfig) *RiskService {
	s := &RiskService{
		scorer:     cfg.Scorer,
		thresholds: cfg.Thresholds,
		analyses:   cfg.Analyses,
		geo:        cfg.Geo,
		geoTimeout: cfg.GeoTimeout,
		metrics:    cfg.Metrics,
		now:        time.Now,
	}
	if s.scorer == nil {
		s.scorer = risk.NewScorer(nil)
	}
	if s.thresholds == nil {
		s.thresholds = risk.NewThresholdStore(risk.DefaultThresholds)
	}
	if s.analyses == nil {
		s.analyses = cache.NewAnalysisCache(cache.DefaultAnalysisCapacity)
	}
	if s.geo == nil {
		s.geo = geo.Disabled{}
	}
	if s.geoTimeout <= 0 {
		s.geoTimeout = 300 * time.Millisecond
	}
	return s
}

// Analyze scores one request. The result is recorded in the analysis cache.
func (s *RiskService) Analyze(ctx context.Context, payload *models.FingerprintPayload, signals models.ServerSignals) *models.Analysis {
	return s.analyze(ctx, payload, signals, s.thresholds.Get())
}

func (s *RiskService) analyze(ctx context.Context, payload *models.FingerprintPayload, signals models.ServerSignals, t risk.Thresholds) *models.Analysis {
	if payload == nil {
		payload = &models.FingerprintPayload{}
	}

	hash := fingerprint.BuildHash(payload, signals)
	location := s.lookupGeoOrDefault(ctx, signals.ClientIP)

	result := s.scorer.Score(risk.Input{
		UserAgent:  signals.UserAgent,
		Components: payload.Components,
		Geo:        location,
	})

	analysis := &models.Analysis{
		FingerprintHash: hash,
		RiskScore:       result.Score,
		RiskLevel:       t.Classify(result.Score),
		Flags:           result.Flags,
		ClientIP:        signals.ClientIP,
		UserAgent:       signals.UserAgent,
		GeoLocation:     location,
		Components:      payload.Components,
		Timestamp:       s.now().UTC(),
	}

	s.analyses.Put(hash, analysis)

	s.count(ctx, MetricAnalyses)
	s.count(ctx, MetricLevelPrefix+strings.ToLower(string(analysis.RiskLevel)))

	return analysis
}

// Decide applies the current thresholds to an analysis.
func (s *RiskService) Decide(analysis *models.Analysis) models.FraudDecision {
	return risk.Decide(analysis, s.thresholds.Get())
}

// Evaluate runs Analyze then Decide against a single thresholds snapshot and
// packages the per-request result.
func (s *RiskService) Evaluate(ctx context.Context, payload *models.FingerprintPayload, signals models.ServerSignals) (*models.Analysis, models.FingerprintResult) {
	t := s.thresholds.Get()
	analysis := s.analyze(ctx, payload, signals, t)
	decision := risk.Decide(analysis, t)

	return analysis, models.FingerprintResult{
		Fingerprint: analysis.FingerprintHash,
		RiskScore:   analysis.RiskScore,
		RiskLevel:   analysis.RiskLevel,
		Flags:       analysis.Flags,
		Components:  analysis.Components,
		FraudCheck:  decision,
	}
}

func (s *RiskService) lookupGeoOrDefault(ctx context.Context, ip string) *models.GeoLocation {
	if ip == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.geoTimeout)
	defer cancel()

	location, err := s.geo.Lookup(ctx, ip)
	if err != nil {
		logger.Debug("Geo lookup unavailable, scoring without location", map[string]any{
			"error": err.Error(),
		})
		return nil
	}
	return location
}

func (s *RiskService) count(ctx context.Context, metric string) {
	if s.metrics == nil {
		return
	}
	_ = s.metrics.IncrementMetric(ctx, metric)
}

// RecordMetric increments a named counter, ignoring failures.
func (s *RiskService) RecordMetric(ctx context.Context, metric string) {
	s.count(ctx, metric)
}

func (s *RiskService) Thresholds() risk.Thresholds {
	return s.thresholds.Get()
}

func (s *RiskService) SetThresholds(t risk.Thresholds) error {
	return s.thresholds.Set(t)
}

// RecentAnalyses returns up to n cached analyses, newest first.
func (s *RiskService) RecentAnalyses(n int) []*models.Analysis {
	return s.analyses.Recent(n)
}

func (s *RiskService) CachedAnalysis(hash string) (*models.Analysis, bool) {
	return s.analyses.Get(hash)
}
