package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iamgideonidoko/sentinel/pkg/risk"
)

type Config struct {
	API        APIConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Risk       RiskConfig
	Geo        GeoConfig
	Fraud      FraudConfig
	Trust      TrustConfig
	RateLimit  RateLimitConfig
	Security   SecurityConfig
	Audit      AuditConfig
	Monitoring MonitoringConfig
}

type APIConfig struct {
	Port        string
	Host        string
	Environment string
}

type DatabaseConfig struct {
	Driver       string
	URL          string
	MaxConns     int
	MaxIdleConns int
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	CacheTTL time.Duration
}

type RiskConfig struct {
	Thresholds        risk.Thresholds
	ThresholdsFile    string
	AnalysisCacheSize int
}

type GeoConfig struct {
	Enabled           bool
	APIURL            string
	Timeout           time.Duration
	CacheTTL          time.Duration
	HighRiskCountries []string
}

type FraudConfig struct {
	RequireFingerprint   bool
	EnableFraudDetection bool
	LogAllRequests       bool
	SkipRoutes           []string
}

type TrustConfig struct {
	Timeout time.Duration
	// UserHeader carries the authenticated user id set by a trusted proxy.
	// Empty disables the trusted-device exemption in the fraud guard.
	UserHeader string
}

type RateLimitConfig struct {
	Requests              int
	Window                time.Duration
	RequestsByFingerprint int
	FingerprintWindow     time.Duration
}

type SecurityConfig struct {
	CORSOrigins    []string
	TrustedProxies []string
	// AdminKey authorises the operator API and trust mutations. Empty locks them.
	AdminKey string
}

type AuditConfig struct {
	LogPath string
}

type MonitoringConfig struct {
	EnableMetrics bool
	LogLevel      string
}

func Load() (*Config, error) {
	cfg := &Config{
		API: APIConfig{
			Port:        getEnv("API_PORT", "6969"),
			Host:        getEnv("API_HOST", "0.0.0.0"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DATABASE_DRIVER", "postgres"),
			URL:          getEnv("DATABASE_URL", "postgresql://sentinel:@localhost:5432/sentinel?sslmode=disable"),
			MaxConns:     getEnvInt("DB_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			CacheTTL: getEnvDuration("REDIS_CACHE_TTL", 24*time.Hour),
		},
		Risk: RiskConfig{
			Thresholds: risk.Thresholds{
				Low:      getEnvFloat("RISK_THRESHOLD_LOW", risk.DefaultThresholds.Low),
				Medium:   getEnvFloat("RISK_THRESHOLD_MEDIUM", risk.DefaultThresholds.Medium),
				High:     getEnvFloat("RISK_THRESHOLD_HIGH", risk.DefaultThresholds.High),
				Critical: getEnvFloat("RISK_THRESHOLD_CRITICAL", risk.DefaultThresholds.Critical),
			},
			ThresholdsFile:    getEnv("RISK_THRESHOLDS_FILE", ""),
			AnalysisCacheSize: getEnvInt("ANALYSIS_CACHE_SIZE", 1000),
		},
		Geo: GeoConfig{
			Enabled:  getEnvBool("GEO_ENABLED", false),
			APIURL:   getEnv("GEO_API_URL", ""),
			Timeout:  getEnvDuration("GEO_TIMEOUT", 300*time.Millisecond),
			CacheTTL: getEnvDuration("GEO_CACHE_TTL", 6*time.Hour),

			HighRiskCountries: getEnvSlice("GEO_HIGH_RISK_COUNTRIES", []string{}),
		},
		Fraud: FraudConfig{
			RequireFingerprint:   getEnvBool("REQUIRE_FINGERPRINT", false),
			EnableFraudDetection: getEnvBool("ENABLE_FRAUD_DETECTION", true),
			LogAllRequests:       getEnvBool("LOG_ALL_REQUESTS", false),
			SkipRoutes:           getEnvSlice("SKIP_ROUTES", []string{"/health", "/metrics"}),
		},
		Trust: TrustConfig{
			Timeout:    getEnvDuration("TRUST_TIMEOUT", 2*time.Second),
			UserHeader: getEnv("TRUST_USER_HEADER", ""),
		},
		RateLimit: RateLimitConfig{
			Requests:              getEnvInt("RATE_LIMIT_REQUESTS", 1000),
			Window:                getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
			RequestsByFingerprint: getEnvInt("RATE_LIMIT_FINGERPRINT_REQUESTS", 30),
			FingerprintWindow:     getEnvDuration("RATE_LIMIT_FINGERPRINT_WINDOW", 1*time.Minute),
		},
		Security: SecurityConfig{
			CORSOrigins:    getEnvSlice("CORS_ORIGINS", []string{"*"}),
			TrustedProxies: getEnvSlice("TRUSTED_PROXIES", []string{}),
			AdminKey:       getEnv("ADMIN_API_KEY", ""),
		},
		Audit: AuditConfig{
			LogPath: getEnv("AUDIT_LOG_PATH", "stdout"),
		},
		Monitoring: MonitoringConfig{
			EnableMetrics: getEnvBool("ENABLE_METRICS", true),
			LogLevel:      getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if err := c.Risk.Thresholds.Validate(); err != nil {
		return fmt.Errorf("RISK_THRESHOLD_*: %w", err)
	}
	if c.Risk.AnalysisCacheSize <= 0 {
		return fmt.Errorf("ANALYSIS_CACHE_SIZE must be positive")
	}
	if c.Geo.Enabled && c.Geo.APIURL == "" {
		return fmt.Errorf("GEO_API_URL is required when GEO_ENABLED is set")
	}
	if c.Geo.Timeout <= 0 {
		return fmt.Errorf("GEO_TIMEOUT must be positive")
	}
	if c.RateLimit.RequestsByFingerprint <= 0 {
		return fmt.Errorf("RATE_LIMIT_FINGERPRINT_REQUESTS must be positive")
	}
	if c.Trust.UserHeader != "" && len(c.Security.TrustedProxies) == 0 {
		return fmt.Errorf("TRUST_USER_HEADER requires TRUSTED_PROXIES")
	}
	return nil
}

// Address returns host:port for the Redis client. Both redis:// URLs and bare
// host:port values are accepted.
func (r RedisConfig) Address() string {
	u, err := url.Parse(r.URL)
	if err != nil || u.Host == "" {
		return r.URL
	}
	return u.Host
}

func (c *Config) IsProduction() bool {
	return c.API.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				result = append(result, item)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
