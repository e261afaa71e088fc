package risk

import "math"

// Result is the outcome of scoring one input.
type Result struct {
	Score float64
	Flags []string
}

// Scorer combines detector weights and geo risk into a score in [0, 1].
type Scorer struct {
	detectors []Detector
}

// NewScorer builds a scorer over the given detectors; nil means DefaultDetectors.
func NewScorer(detectors []Detector) *Scorer {
	if detectors == nil {
		detectors = DefaultDetectors()
	}
	return &Scorer{detectors: detectors}
}

// Score evaluates every detector and the geo term in one pass.
func (s *Scorer) Score(in Input) Result {
	flags := NewFlagSet()
	score := 0.0

	for _, d := range s.detectors {
		if d.Predicate(in) {
			score += d.Weight
			flags.Add(d.Flag)
		}
	}

	geoScore, geoFlags := GeoRisk(in.Geo)
	score += geoScore
	flags.Add(geoFlags...)

	return Result{
		Score: clamp(round(score)),
		Flags: flags.List(),
	}
}

// scorePrecision is the resolution scores are rounded to. Weights are decimal
// fractions, so their float sum has to be snapped back before it is compared
// against inclusive thresholds.
const scorePrecision = 1e6

func round(score float64) float64 {
	return math.Round(score*scorePrecision) / scorePrecision
}

func clamp(score float64) float64 {
	return math.Max(0, math.Min(1, score))
}
