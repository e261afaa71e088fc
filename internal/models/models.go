package models

import "time"

// Sentinel values reported by the agent when a rendering context could not be created.
const (
	CanvasUnavailable = "canvas_unavailable"
	WebGLUnavailable  = "webgl_unavailable"
)

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns the pixel area of the dimensions.
func (d Dimensions) Area() int {
	return d.Width * d.Height
}

type Hardware struct {
	HardwareConcurrency int     `json:"hardwareConcurrency"`
	DeviceMemory        float64 `json:"deviceMemory"`
}

type Components struct {
	// display
	Screen   *Dimensions `json:"screen,omitempty"`
	Viewport *Dimensions `json:"viewport,omitempty"`

	// environment
	Timezone string   `json:"timezone,omitempty"`
	Platform string   `json:"platform,omitempty"`
	Fonts    []string `json:"fonts,omitempty"`

	// hardware / rendering
	Hardware *Hardware `json:"hardware,omitempty"`
	Canvas   string    `json:"canvas,omitempty"`
	WebGL    string    `json:"webgl,omitempty"`

	// set by the agent when it had to fall back to a degraded collector
	Fallback bool `json:"fallback,omitempty"`
}

// FingerprintPayload is the client-reported fingerprint carried by a request.
type FingerprintPayload struct {
	Fingerprint string     `json:"fingerprint"`
	Components  Components `json:"components"`
}

// ServerSignals are observed by the server for every request.
type ServerSignals struct {
	UserAgent      string `json:"userAgent"`
	AcceptLanguage string `json:"acceptLanguage"`
	AcceptEncoding string `json:"acceptEncoding"`
	ClientIP       string `json:"clientIp"`
}

// GeoLocation is the result of an external geolocation lookup.
type GeoLocation struct {
	IsVPN       bool     `json:"isVPN"`
	RiskFactors []string `json:"riskFactors"`
	Confidence  float64  `json:"confidence"`
	Country     string   `json:"country,omitempty"`
	City        string   `json:"city,omitempty"`
}

type RiskLevel string

const (
	RiskMinimal  RiskLevel = "MINIMAL"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Analysis is created once per fingerprinted request and never mutated afterwards.
type Analysis struct {
	FingerprintHash string       `json:"fingerprintHash"`
	RiskScore       float64      `json:"riskScore"`
	RiskLevel       RiskLevel    `json:"riskLevel"`
	Flags           []string     `json:"flags"`
	ClientIP        string       `json:"clientIp"`
	UserAgent       string       `json:"userAgent"`
	GeoLocation     *GeoLocation `json:"geoLocation"`
	Components      Components   `json:"components"`
	Timestamp       time.Time    `json:"timestamp"`
}

// HasFlag reports whether the analysis carries the given flag.
func (a *Analysis) HasFlag(flag string) bool {
	for _, f := range a.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

type Action string

const (
	ActionBlockRequest          Action = "BLOCK_REQUEST"
	ActionRequireAdditionalAuth Action = "REQUIRE_ADDITIONAL_AUTH"
	ActionEnhancedMonitoring    Action = "ENHANCED_MONITORING"
	ActionRateLimit             Action = "RATE_LIMIT"
	ActionLogActivity           Action = "LOG_ACTIVITY"
)

type FraudDecision struct {
	Blocked    bool     `json:"blocked"`
	Reason     *string  `json:"reason"`
	Confidence float64  `json:"confidence"`
	Actions    []Action `json:"actions"`
}

// HasAction reports whether the decision contains the given action.
func (d FraudDecision) HasAction(action Action) bool {
	for _, a := range d.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// FingerprintResult is attached to every analysed request.
type FingerprintResult struct {
	Fingerprint   string        `json:"fingerprint"`
	RiskScore     float64       `json:"riskScore"`
	RiskLevel     RiskLevel     `json:"riskLevel"`
	Flags         []string      `json:"flags"`
	Components    Components    `json:"components"`
	FraudCheck    FraudDecision `json:"fraudCheck"`
	TrustedDevice bool          `json:"trustedDevice,omitempty"`
}

// TrustedDevice is a per-user trust record for a fingerprint hash.
type TrustedDevice struct {
	FingerprintHash string    `db:"fingerprint_hash" json:"fingerprint_hash"`
	UserID          string    `db:"user_id" json:"user_id"`
	Trusted         bool      `db:"trusted" json:"trusted"`
	LastLoginAt     time.Time `db:"last_login_at" json:"last_login_at"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// SecurityEvent is a persisted security-relevant occurrence.
type SecurityEvent struct {
	ID              string    `db:"id" json:"id"`
	EventType       string    `db:"event_type" json:"event_type"`
	FingerprintHash string    `db:"fingerprint_hash" json:"fingerprint_hash,omitempty"`
	IPAddress       string    `db:"ip_address" json:"ip_address,omitempty"`
	Details         string    `db:"details" json:"details"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

type TrustRequest struct {
	FingerprintHash string `json:"fingerprint_hash"`
	UserID          string `json:"user_id"`
}

type ThresholdsRequest struct {
	Low      float64 `json:"low"`
	Medium   float64 `json:"medium"`
	High     float64 `json:"high"`
	Critical float64 `json:"critical"`
}
