package risk

import (
	"slices"

	"github.com/iamgideonidoko/sentinel/internal/models"
)

const (
	ReasonCriticalRiskScore = "CRITICAL_RISK_SCORE"
	ReasonBotDetected       = "BOT_DETECTED"
)

// Decide evaluates the decision table top to bottom. Every matching branch applies;
// later blocking branches override the reason and confidence of earlier ones.
func Decide(a *models.Analysis, t Thresholds) models.FraudDecision {
	decision := models.FraudDecision{Actions: []models.Action{}}

	addActions := func(actions ...models.Action) {
		for _, action := range actions {
			if !slices.Contains(decision.Actions, action) {
				decision.Actions = append(decision.Actions, action)
			}
		}
	}
	block := func(reason string, confidence float64) {
		decision.Blocked = true
		decision.Reason = &reason
		decision.Confidence = confidence
		addActions(models.ActionBlockRequest)
	}

	if a == nil {
		return decision
	}

	if a.RiskScore >= t.Critical {
		block(ReasonCriticalRiskScore, 0.95)
	}
	if a.HasFlag(FlagBotDetected) {
		block(ReasonBotDetected, 0.90)
	}
	if a.RiskScore >= t.High {
		addActions(models.ActionRequireAdditionalAuth, models.ActionEnhancedMonitoring)
	}
	if a.RiskScore >= t.Medium {
		addActions(models.ActionRateLimit, models.ActionLogActivity)
	}

	return decision
}
