package risk

import (
	"math"
	"slices"

	"github.com/iamgideonidoko/sentinel/internal/models"
)

// Risk factor tags reported by the geolocation service.
const (
	RiskFactorHighRiskCountry = "HIGH_RISK_COUNTRY"
	RiskFactorHostingProvider = "HOSTING_PROVIDER"
)

const (
	FlagLocationVPNProxy      = "LOCATION_VPN_PROXY"
	FlagLowLocationConfidence = "LOW_LOCATION_CONFIDENCE"
	locationFlagPrefix        = "LOCATION_"
)

// MaxGeoScore caps what geography alone can contribute.
const MaxGeoScore = 0.5

// GeoRisk folds a geolocation result into a capped sub-score and its flags.
// A nil location contributes nothing.
func GeoRisk(geo *models.GeoLocation) (float64, []string) {
	if geo == nil {
		return 0, nil
	}

	score := 0.0
	var flags []string

	if geo.IsVPN {
		score += 0.30
		flags = append(flags, FlagLocationVPNProxy)
	}
	if slices.Contains(geo.RiskFactors, RiskFactorHighRiskCountry) {
		score += 0.20
	}
	if slices.Contains(geo.RiskFactors, RiskFactorHostingProvider) {
		score += 0.25
	}
	for _, factor := range geo.RiskFactors {
		flags = append(flags, locationFlagPrefix+factor)
	}
	if geo.Confidence < 0.3 {
		score += 0.10
		flags = append(flags, FlagLowLocationConfidence)
	}
	if geo.Country == "" && geo.City == "" {
		score += 0.15
	}

	return math.Min(score, MaxGeoScore), flags
}
