package detect

import (
	"websentry/internal/types"
)

// Scorer turns a finding into a confidence score and priority bucket.
// Scoring is deterministic and side-effect-free: identical findings always
// produce identical results.
type Scorer struct {
	thresholds types.PriorityThresholds
}

func NewScorer(thresholds types.PriorityThresholds) *Scorer {
	return &Scorer{thresholds: thresholds}
}

// Score sums the signature base and the weight of each distinct matched
// rule, clamped to [0,100]. A rule that matched in several fields counts
// once; the extra pairs remain in the finding as evidence.
func (s *Scorer) Score(f Finding) (int, types.Priority) {
	sum := f.Base
	seen := make(map[string]bool, len(f.Matches))
	for _, m := range f.Matches {
		if seen[m.Pattern] {
			continue
		}
		seen[m.Pattern] = true
		sum += m.Weight
	}
	if sum > 100 {
		sum = 100
	}
	if sum < 0 {
		sum = 0
	}
	return sum, s.Priority(sum)
}

// Priority maps a confidence to its bucket; boundaries are inclusive of
// the lower threshold.
func (s *Scorer) Priority(confidence int) types.Priority {
	switch {
	case confidence >= s.thresholds.Critical:
		return types.PriorityCritical
	case confidence >= s.thresholds.High:
		return types.PriorityHigh
	case confidence >= s.thresholds.Medium:
		return types.PriorityMedium
	default:
		return types.PriorityLow
	}
}
