package risk

import (
	"regexp"

	"github.com/iamgideonidoko/sentinel/internal/models"
)

// Kind identifies a detector.
type Kind string

const (
	KindBot           Kind = "bot"
	KindAutomation    Kind = "automation"
	KindInconsistency Kind = "inconsistency"
	KindRareConfig    Kind = "rare_configuration"
	KindHeadless      Kind = "headless"
	KindVPNKeyword    Kind = "vpn_keyword"
	KindAnomaly       Kind = "fingerprint_anomaly"
)

const (
	FlagBotDetected          = "BOT_DETECTED"
	FlagAutomationDetected   = "AUTOMATION_DETECTED"
	FlagHeadlessBrowser      = "HEADLESS_BROWSER"
	FlagInconsistentData     = "INCONSISTENT_DATA"
	FlagRareConfiguration    = "RARE_CONFIGURATION"
	FlagVPNIndicators        = "VPN_INDICATORS"
	FlagFingerprintAnomalies = "FINGERPRINT_ANOMALIES"
)

// Input is everything a detector may look at.
type Input struct {
	UserAgent  string
	Components models.Components
	Geo        *models.GeoLocation
}

// Detector is a pure predicate contributing Weight to the score when it fires.
type Detector struct {
	Kind      Kind
	Flag      string
	Weight    float64
	Predicate func(Input) bool
}

// DefaultDetectors returns the detector set in evaluation order.
func DefaultDetectors() []Detector {
	return []Detector{
		{Kind: KindBot, Flag: FlagBotDetected, Weight: 0.40, Predicate: func(in Input) bool {
			return IsBot(in.UserAgent)
		}},
		{Kind: KindAutomation, Flag: FlagAutomationDetected, Weight: 0.30, Predicate: func(in Input) bool {
			return IsAutomation(in.UserAgent)
		}},
		{Kind: KindInconsistency, Flag: FlagInconsistentData, Weight: 0.20, Predicate: func(in Input) bool {
			return HasInconsistentData(in.Components)
		}},
		{Kind: KindRareConfig, Flag: FlagRareConfiguration, Weight: 0.15, Predicate: func(in Input) bool {
			return HasRareConfiguration(in.Components)
		}},
		{Kind: KindHeadless, Flag: FlagHeadlessBrowser, Weight: 0.35, Predicate: func(in Input) bool {
			return IsHeadless(in.Components)
		}},
		{Kind: KindVPNKeyword, Flag: FlagVPNIndicators, Weight: 0.10, Predicate: func(in Input) bool {
			return HasVPNIndicators(in.UserAgent)
		}},
		{Kind: KindAnomaly, Flag: FlagFingerprintAnomalies, Weight: 0.20, Predicate: func(in Input) bool {
			return HasFingerprintAnomalies(in.Components)
		}},
	}
}

var botPatterns = compilePatterns(
	`(?i)bot`,
	`(?i)crawler`,
	`(?i)spider`,
	`(?i)scraper`,
	`(?i)crawling`,
	`(?i)curl`,
	`(?i)wget`,
	`(?i)python-requests`,
	`(?i)go-http-client`,
)

// The last entry duplicates the selenium check. The rule it came from was meant to
// combine webdriver and selenium but only ever matched selenium; kept as-is pending
// a product decision on the intended semantics.
var automationPatterns = compilePatterns(
	`(?i)webdriver`,
	`(?i)selenium`,
	`(?i)puppeteer`,
	`(?i)playwright`,
	`(?i)phantomjs`,
	`(?i)headlesschrome`,
	`(?i)selenium`,
)

var vpnPatterns = compilePatterns(
	`(?i)vpn`,
	`(?i)proxy`,
	`(?i)tunnel`,
	`(?i)anonymous`,
)

func compilePatterns(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	if s == "" {
		return false
	}
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// IsBot reports whether the user agent carries a bot, crawler or scraper signature.
func IsBot(userAgent string) bool {
	return matchesAny(botPatterns, userAgent)
}

// IsAutomation reports whether the user agent carries a webdriver/automation signature.
func IsAutomation(userAgent string) bool {
	return matchesAny(automationPatterns, userAgent)
}

// HasVPNIndicators reports vpn/proxy/tunnel/anonymous keywords in the user agent.
func HasVPNIndicators(userAgent string) bool {
	return matchesAny(vpnPatterns, userAgent)
}

// HasInconsistentData reports a viewport larger than the screen, or a fallback collector.
func HasInconsistentData(c models.Components) bool {
	if c.Fallback {
		return true
	}
	if c.Screen == nil || c.Viewport == nil {
		return false
	}
	return c.Viewport.Width > c.Screen.Width || c.Viewport.Height > c.Screen.Height
}

// HasRareConfiguration reports implausible screen areas or hardware figures.
func HasRareConfiguration(c models.Components) bool {
	if c.Screen != nil {
		area := c.Screen.Area()
		if area < 100_000 || area > 20_000_000 {
			return true
		}
	}
	if c.Hardware != nil {
		if c.Hardware.HardwareConcurrency > 32 || c.Hardware.DeviceMemory > 32 {
			return true
		}
	}
	return false
}

// IsHeadless reports missing rendering contexts or a viewport that exactly fills the screen.
func IsHeadless(c models.Components) bool {
	if c.Canvas == "" || c.Canvas == models.CanvasUnavailable {
		return true
	}
	if c.WebGL == "" || c.WebGL == models.WebGLUnavailable {
		return true
	}
	if c.Screen != nil && c.Viewport != nil {
		return *c.Screen == *c.Viewport
	}
	return false
}

// HasFingerprintAnomalies reports a suspiciously short canvas hash or too few fonts.
func HasFingerprintAnomalies(c models.Components) bool {
	if c.Canvas != "" && len(c.Canvas) < 10 {
		return true
	}
	return c.Fonts != nil && len(c.Fonts) < 5
}
