package risk

import (
	"errors"
	"fmt"
	"sync"

	"github.com/iamgideonidoko/sentinel/internal/models"
)

var ErrInvalidThresholds = errors.New("invalid risk thresholds")

// Thresholds are the inclusive lower bounds of each named risk level.
type Thresholds struct {
	Low      float64 `toml:"low" json:"low"`
	Medium   float64 `toml:"medium" json:"medium"`
	High     float64 `toml:"high" json:"high"`
	Critical float64 `toml:"critical" json:"critical"`
}

var DefaultThresholds = Thresholds{
	Low:      0.3,
	Medium:   0.6,
	High:     0.8,
	Critical: 0.9,
}

// Validate requires strictly ascending thresholds within [0, 1].
func (t Thresholds) Validate() error {
	values := []float64{t.Low, t.Medium, t.High, t.Critical}
	for _, v := range values {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %v outside [0, 1]", ErrInvalidThresholds, v)
		}
	}
	for i := 1; i < len(values); i++ {
		if values[i] <= values[i-1] {
			return fmt.Errorf("%w: must be strictly ascending (low < medium < high < critical)", ErrInvalidThresholds)
		}
	}
	return nil
}

// Classify maps a score to its risk level.
func (t Thresholds) Classify(score float64) models.RiskLevel {
	switch {
	case score >= t.Critical:
		return models.RiskCritical
	case score >= t.High:
		return models.RiskHigh
	case score >= t.Medium:
		return models.RiskMedium
	case score >= t.Low:
		return models.RiskLow
	default:
		return models.RiskMinimal
	}
}

// ThresholdStore holds thresholds that may be changed while requests are in flight.
type ThresholdStore struct {
	mu         sync.RWMutex
	thresholds Thresholds
}

func NewThresholdStore(t Thresholds) *ThresholdStore {
	return &ThresholdStore{thresholds: t}
}

func (s *ThresholdStore) Get() Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds
}

// Set replaces the thresholds after validating them.
func (s *ThresholdStore) Set(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.thresholds = t
	s.mu.Unlock()
	return nil
}
