package domain

import (
	"fmt"
	"strings"
)

// Built-in strategy names. The aggregation service resolves names through
// an open registry, so callers may register others.
const (
	StrategyAny      = "any"
	StrategyWeighted = "weighted"
)

// DefaultThreshold is applied when a strategy does not set one.
const DefaultThreshold = 0.5

// Strategy selects and parameterizes how rule hits and predictor outputs
// fuse into a decision.
type Strategy struct {
	Name      string             // registry key, e.g. "any" or "weighted"
	Threshold float64            // label cutoff in [0,1]
	Weights   map[string]float64 // per-predictor weights; missing entries count as 1.0
}

// NewStrategy constructs a Strategy and validates its fields.
func NewStrategy(name string, threshold float64, weights map[string]float64) (Strategy, error) {
	s := Strategy{
		Name:      strings.ToLower(strings.TrimSpace(name)),
		Threshold: threshold,
		Weights:   weights,
	}
	if err := s.Validate(); err != nil {
		return Strategy{}, err
	}
	return s, nil
}

// DefaultStrategy returns the "any" strategy at the default threshold.
func DefaultStrategy() Strategy {
	return Strategy{Name: StrategyAny, Threshold: DefaultThreshold}
}

// Validate checks the Strategy for required fields and sane bounds.
func (s Strategy) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("strategy name must not be empty")
	}
	if s.Threshold < 0 || s.Threshold > 1 {
		return fmt.Errorf("strategy %q: threshold %v outside [0,1]", s.Name, s.Threshold)
	}
	for k, w := range s.Weights {
		if w < 0 {
			return fmt.Errorf("strategy %q: weight for %q must not be negative", s.Name, k)
		}
	}
	return nil
}
