package risk

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamgideonidoko/sentinel/internal/models"
)

func TestClassify_Boundaries(t *testing.T) {
	tests := []struct {
		score    float64
		expected models.RiskLevel
	}{
		{0.0, models.RiskMinimal},
		{0.2999, models.RiskMinimal},
		{0.3, models.RiskLow},
		{0.5999, models.RiskLow},
		{0.6, models.RiskMedium},
		{0.8, models.RiskHigh},
		{0.8999, models.RiskHigh},
		{0.9, models.RiskCritical},
		{1.0, models.RiskCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, DefaultThresholds.Classify(tt.score), "Classify(%v)", tt.score)
	}
}

func TestClassify_Monotonic(t *testing.T) {
	rank := map[models.RiskLevel]int{
		models.RiskMinimal:  0,
		models.RiskLow:      1,
		models.RiskMedium:   2,
		models.RiskHigh:     3,
		models.RiskCritical: 4,
	}

	previous := -1
	for i := 0; i <= 1000; i++ {
		level := DefaultThresholds.Classify(float64(i) / 1000)
		require.GreaterOrEqual(t, rank[level], previous)
		previous = rank[level]
	}
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds.Validate())
	assert.ErrorIs(t, Thresholds{Low: 0.5, Medium: 0.4, High: 0.8, Critical: 0.9}.Validate(), ErrInvalidThresholds)
	assert.ErrorIs(t, Thresholds{Low: 0.3, Medium: 0.6, High: 0.8, Critical: 1.5}.Validate(), ErrInvalidThresholds)
	assert.ErrorIs(t, Thresholds{Low: -0.1, Medium: 0.6, High: 0.8, Critical: 0.9}.Validate(), ErrInvalidThresholds)
	assert.ErrorIs(t, Thresholds{Low: 0.3, Medium: 0.3, High: 0.8, Critical: 0.9}.Validate(), ErrInvalidThresholds)
}

func TestThresholdStore(t *testing.T) {
	store := NewThresholdStore(DefaultThresholds)
	assert.Equal(t, DefaultThresholds, store.Get())

	updated := Thresholds{Low: 0.2, Medium: 0.4, High: 0.6, Critical: 0.7}
	require.NoError(t, store.Set(updated))
	assert.Equal(t, updated, store.Get())
	assert.Equal(t, models.RiskCritical, store.Get().Classify(0.75))

	assert.Error(t, store.Set(Thresholds{Low: 1, Medium: 0.5}))
	assert.Equal(t, updated, store.Get(), "invalid thresholds must not be applied")
}

func TestThresholdStore_ConcurrentAccess(t *testing.T) {
	store := NewThresholdStore(DefaultThresholds)
	alternate := Thresholds{Low: 0.1, Medium: 0.2, High: 0.3, Critical: 0.4}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = store.Set(alternate)
			} else {
				_ = store.Set(DefaultThresholds)
			}
		}(i)
		go func() {
			defer wg.Done()
			got := store.Get()
			assert.True(t, got == DefaultThresholds || got == alternate)
		}()
	}
	wg.Wait()
}

func TestDecide_CriticalScore(t *testing.T) {
	decision := Decide(&models.Analysis{RiskScore: 0.95, Flags: []string{}}, DefaultThresholds)

	assert.True(t, decision.Blocked)
	require.NotNil(t, decision.Reason)
	assert.Equal(t, ReasonCriticalRiskScore, *decision.Reason)
	assert.Equal(t, 0.95, decision.Confidence)
	assert.Equal(t, []models.Action{
		models.ActionBlockRequest,
		models.ActionRequireAdditionalAuth,
		models.ActionEnhancedMonitoring,
		models.ActionRateLimit,
		models.ActionLogActivity,
	}, decision.Actions)
}

func TestDecide_BotOverridesReason(t *testing.T) {
	decision := Decide(&models.Analysis{
		RiskScore: 0.95,
		Flags:     []string{FlagBotDetected},
	}, DefaultThresholds)

	assert.True(t, decision.Blocked)
	require.NotNil(t, decision.Reason)
	assert.Equal(t, ReasonBotDetected, *decision.Reason)
	assert.Equal(t, 0.90, decision.Confidence)

	count := 0
	for _, a := range decision.Actions {
		if a == models.ActionBlockRequest {
			count++
		}
	}
	assert.Equal(t, 1, count, "BLOCK_REQUEST must not be duplicated")
}

func TestDecide_BotWithLowScore(t *testing.T) {
	decision := Decide(&models.Analysis{RiskScore: 0.4, Flags: []string{FlagBotDetected}}, DefaultThresholds)

	assert.True(t, decision.Blocked)
	assert.Equal(t, []models.Action{models.ActionBlockRequest}, decision.Actions)
}

func TestDecide_MediumAndHigh(t *testing.T) {
	medium := Decide(&models.Analysis{RiskScore: 0.65}, DefaultThresholds)
	assert.False(t, medium.Blocked)
	assert.Nil(t, medium.Reason)
	assert.Equal(t, []models.Action{models.ActionRateLimit, models.ActionLogActivity}, medium.Actions)

	high := Decide(&models.Analysis{RiskScore: 0.85}, DefaultThresholds)
	assert.False(t, high.Blocked)
	assert.Equal(t, []models.Action{
		models.ActionRequireAdditionalAuth,
		models.ActionEnhancedMonitoring,
		models.ActionRateLimit,
		models.ActionLogActivity,
	}, high.Actions)
}

func TestDecide_LowRisk(t *testing.T) {
	decision := Decide(&models.Analysis{RiskScore: 0.1}, DefaultThresholds)

	assert.False(t, decision.Blocked)
	assert.Nil(t, decision.Reason)
	assert.Zero(t, decision.Confidence)
	assert.Empty(t, decision.Actions)
	assert.NotNil(t, decision.Actions)
}

func TestDecide_UsesSuppliedThresholds(t *testing.T) {
	strict := Thresholds{Low: 0.1, Medium: 0.2, High: 0.3, Critical: 0.4}

	decision := Decide(&models.Analysis{RiskScore: 0.45}, strict)

	assert.True(t, decision.Blocked)
	assert.Equal(t, ReasonCriticalRiskScore, *decision.Reason)
}

func TestDecide_NilAnalysis(t *testing.T) {
	decision := Decide(nil, DefaultThresholds)
	assert.False(t, decision.Blocked)
}
