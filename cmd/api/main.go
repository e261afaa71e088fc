package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"github.com/iamgideonidoko/sentinel/internal/config"
	"github.com/iamgideonidoko/sentinel/internal/geo"
	"github.com/iamgideonidoko/sentinel/internal/handlers"
	"github.com/iamgideonidoko/sentinel/internal/middleware"
	"github.com/iamgideonidoko/sentinel/internal/repository"
	"github.com/iamgideonidoko/sentinel/internal/services"
	"github.com/iamgideonidoko/sentinel/pkg/cache"
	"github.com/iamgideonidoko/sentinel/pkg/logger"
	"github.com/iamgideonidoko/sentinel/pkg/risk"
)

func main() {
	// Load environment variables
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", map[string]any{"error": err.Error()})
	}

	logger.SetLevel(logger.ParseLevel(cfg.Monitoring.LogLevel))
	logger.Info("Starting Sentinel API", map[string]any{
		"version":     "1.0.0",
		"environment": cfg.API.Environment,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database with retry logic
	repo, err := repository.Connect(ctx, repository.DefaultRetryConfig,
		cfg.Database.Driver,
		cfg.Database.URL,
		cfg.Database.MaxConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		logger.Fatal("Failed to connect to database", map[string]any{"error": err.Error()})
	}
	defer repo.Close()

	if err := repo.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", map[string]any{"error": err.Error()})
	}
	logger.Info("Connected to database", map[string]any{"driver": cfg.Database.Driver})

	// Redis is optional: without it rate limits are per instance and geo
	// results are not shared.
	var redisCache *cache.Cache
	err = repository.WithRetry(ctx, repository.DefaultRetryConfig, func(context.Context) error {
		var retryErr error
		redisCache, retryErr = cache.NewCache(
			cfg.Redis.Address(),
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.CacheTTL,
		)
		return retryErr
	})
	if err != nil {
		logger.Warn("Redis unavailable, continuing with local limits", map[string]any{"error": err.Error()})
		redisCache = nil
	} else {
		defer redisCache.Close()
		logger.Info("Connected to Redis", map[string]any{"address": cfg.Redis.Address()})
	}

	audit, err := services.NewAuditLogger(cfg.Audit.LogPath)
	if err != nil {
		logger.Fatal("Failed to open audit log", map[string]any{
			"path":  cfg.Audit.LogPath,
			"error": err.Error(),
		})
	}
	defer func() { _ = audit.Sync() }()

	events := services.NewSecurityEventLogger(audit, repo, 5*time.Second)
	defer events.Wait()

	thresholds, watcher := loadThresholds(ctx, cfg)
	if watcher != nil {
		defer watcher.Close()
	}

	riskCfg := services.RiskServiceConfig{
		Scorer:     risk.NewScorer(nil),
		Thresholds: thresholds,
		Analyses:   cache.NewAnalysisCache(cfg.Risk.AnalysisCacheSize),
		Geo:        newGeoService(cfg, redisCache),
		GeoTimeout: cfg.Geo.Timeout,
	}
	var rateStore middleware.RateLimitStore
	var metrics handlers.MetricsReader
	checks := map[string]handlers.HealthCheck{
		"database": repo.HealthCheck,
	}
	if redisCache != nil {
		riskCfg.Metrics = redisCache
		rateStore = redisCache
		metrics = redisCache
		checks["redis"] = redisCache.Ping
	}

	riskService := services.NewRiskService(riskCfg)
	trustService := services.NewTrustService(repo, events, cfg.Trust.Timeout)
	rateLimiter := middleware.NewRateLimiter(rateStore, &cfg.RateLimit)
	guard := middleware.NewFraudGuard(riskService, trustService, events, rateLimiter)
	logger.Info("Initialized risk pipeline", map[string]any{
		"geo_enabled":            cfg.Geo.Enabled,
		"fraud_detection":        cfg.Fraud.EnableFraudDetection,
		"require_fingerprint":    cfg.Fraud.RequireFingerprint,
		"analysis_cache_entries": cfg.Risk.AnalysisCacheSize,
		"trusted_user_header":    cfg.Trust.UserHeader,
	})

	handler := handlers.NewHandler(handlers.Dependencies{
		Risk:           riskService,
		Trust:          trustService,
		Events:         repo,
		Metrics:        metrics,
		Checks:         checks,
		ThresholdsFile: cfg.Risk.ThresholdsFile,
	})

	app := fiber.New(fiber.Config{
		ServerHeader:            "Sentinel",
		AppName:                 "Sentinel API v1.0",
		EnableTrustedProxyCheck: len(cfg.Security.TrustedProxies) > 0,
		TrustedProxies:          cfg.Security.TrustedProxies,
		ProxyHeader:             proxyHeader(cfg),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			logger.Error("Request error", map[string]any{
				"error": err.Error(),
				"path":  c.Path(),
				"code":  code,
			})
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS(cfg.Security.CORSOrigins))

	app.Get("/health", handler.Health)
	app.Get("/metrics", handler.Metrics)

	fraudOpts := middleware.FraudOptions{
		RequireFingerprint:   cfg.Fraud.RequireFingerprint,
		EnableFraudDetection: cfg.Fraud.EnableFraudDetection,
		LogAllRequests:       cfg.Fraud.LogAllRequests,
		SkipRoutes:           cfg.Fraud.SkipRoutes,
	}
	if cfg.Trust.UserHeader != "" {
		fraudOpts.UserIdentity = middleware.ProxyUserHeader(cfg.Trust.UserHeader)
	}

	// Fingerprint-protected API
	v1 := app.Group("/v1", rateLimiter.LimitByIP(), guard.Protect(fraudOpts))
	v1.Post("/analyze", handler.Analyze)

	// Operator API
	if cfg.Security.AdminKey == "" {
		logger.Warn("ADMIN_API_KEY not set, operator API is locked")
	}
	api := app.Group("/api", rateLimiter.LimitByIP(), middleware.AdminKey(cfg.Security.AdminKey))
	api.Post("/devices/trust", handler.TrustDevice)
	api.Delete("/devices/trust", handler.RevokeDevice)
	api.Get("/devices/trusted", handler.IsTrusted)
	api.Get("/analyses", handler.RecentAnalyses)
	api.Get("/thresholds", handler.GetThresholds)
	api.Put("/thresholds", handler.UpdateThresholds)
	api.Get("/events", handler.RecentEvents)

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_ = app.ShutdownWithContext(shutdownCtx)
	}()

	addr := fmt.Sprintf("%s:%s", cfg.API.Host, cfg.API.Port)
	logger.Info("Sentinel API started", map[string]any{"address": addr})

	if err := app.Listen(addr); err != nil {
		logger.Error("Server error", map[string]any{"error": err.Error()})
	}
	logger.Info("Server shutdown complete")
}

// loadThresholds seeds the store from config, overlays the thresholds file when
// one is configured and starts watching it.
func loadThresholds(ctx context.Context, cfg *config.Config) (*risk.ThresholdStore, *config.ThresholdsWatcher) {
	store := risk.NewThresholdStore(cfg.Risk.Thresholds)
	path := cfg.Risk.ThresholdsFile
	if path == "" {
		return store, nil
	}

	if _, err := os.Stat(path); err == nil {
		t, err := config.LoadThresholdsFile(path, store.Get())
		if err != nil {
			logger.Warn("Ignoring invalid thresholds file", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
		} else if err := store.Set(t); err != nil {
			logger.Warn("Failed to apply thresholds file", map[string]any{"error": err.Error()})
		}
	}

	watcher, err := config.NewThresholdsWatcher(path, store, 250*time.Millisecond)
	if err != nil {
		logger.Warn("Thresholds file will not be watched", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
		return store, nil
	}
	watcher.Start(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-watcher.Reloaded():
				logger.Info("Risk thresholds reloaded", map[string]any{
					"low":      t.Low,
					"medium":   t.Medium,
					"high":     t.High,
					"critical": t.Critical,
				})
			}
		}
	}()

	return store, watcher
}

func newGeoService(cfg *config.Config, redisCache *cache.Cache) geo.Service {
	if !cfg.Geo.Enabled {
		return geo.Disabled{}
	}

	client := geo.NewHTTPClient(cfg.Geo.APIURL, cfg.Geo.Timeout, cfg.Geo.HighRiskCountries)
	if redisCache == nil {
		return client
	}
	return geo.NewCachedService(client, redisCache, cfg.Geo.CacheTTL)
}

func proxyHeader(cfg *config.Config) string {
	if len(cfg.Security.TrustedProxies) == 0 {
		return ""
	}
	return fiber.HeaderXForwardedFor
}
