// Package aggregate fuses rule-source verdicts and predictor outputs into a
// single risk decision per URL.
package aggregate

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/domain"
)

// Func fuses one URL's rule hits and predictions under a strategy. It must
// be pure: same inputs produce the same decision, no I/O, no mutation of the
// input maps.
type Func func(hits domain.RuleHits, preds map[string]domain.Prediction, strategy domain.Strategy) domain.Decision

// Service dispatches aggregation by strategy name. The built-in strategies
// are seeded at construction; callers may register more.
type Service struct {
	mu         sync.RWMutex
	strategies map[string]Func
}

// NewService returns a Service with the built-in strategies registered.
func NewService() *Service {
	return &Service{
		strategies: map[string]Func{
			domain.StrategyAny:      anyStrategy,
			domain.StrategyWeighted: weightedStrategy,
		},
	}
}

// Register adds a strategy under name, replacing any existing registration.
// Names are case-insensitive.
func (s *Service) Register(name string, fn Func) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("strategy name must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("strategy %q: func must not be nil", name)
	}
	s.mu.Lock()
	s.strategies[name] = fn
	s.mu.Unlock()
	return nil
}

// Strategies returns the registered strategy names, sorted.
func (s *Service) Strategies() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.strategies))
	for name := range s.strategies {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Aggregate fuses hits and preds under the named strategy. Empty inputs
// produce the benign zero decision; the returned score is always in [0,1].
func (s *Service) Aggregate(strategy domain.Strategy, hits domain.RuleHits, preds map[string]domain.Prediction) (domain.Decision, error) {
	if err := strategy.Validate(); err != nil {
		return domain.EmptyDecision(), err
	}

	s.mu.RLock()
	fn, ok := s.strategies[strategy.Name]
	s.mu.RUnlock()
	if !ok {
		return domain.EmptyDecision(), fmt.Errorf("unknown strategy %q", strategy.Name)
	}

	d := fn(hits, preds, strategy)
	d.Score = clamp01(d.Score)
	return d, nil
}

// anyStrategy flags the URL when any rule source hit, scoring 1.0. Otherwise
// the score is the highest available probability, zero when none produced
// one, labeled against the strategy threshold.
func anyStrategy(hits domain.RuleHits, preds map[string]domain.Prediction, strategy domain.Strategy) domain.Decision {
	if hits.Any() {
		return domain.Decision{Label: 1, Score: 1.0}
	}

	score := 0.0
	for _, p := range preds {
		if p.OK() && *p.Proba > score {
			score = *p.Proba
		}
	}
	return domain.Decision{Label: labelAt(score, strategy.Threshold), Score: score}
}

// weightedStrategy averages the available probabilities. With weights, it is
// a weighted mean where unlisted predictors weigh 1.0 and a zero weight sum
// scores 0.0; without weights, a plain mean whose denominator never drops
// below one. A rule hit adds 0.2, capped at 1.0.
func weightedStrategy(hits domain.RuleHits, preds map[string]domain.Prediction, strategy domain.Strategy) domain.Decision {
	var avg float64
	if len(strategy.Weights) > 0 {
		var total, wsum float64
		for name, p := range preds {
			if !p.OK() {
				continue
			}
			w, ok := strategy.Weights[name]
			if !ok {
				w = 1.0
			}
			total += w * *p.Proba
			wsum += w
		}
		if wsum > 0 {
			avg = total / wsum
		}
	} else {
		var total float64
		n := 0
		for _, p := range preds {
			if !p.OK() {
				continue
			}
			total += *p.Proba
			n++
		}
		avg = total / float64(max(1, n))
	}

	if hits.Any() {
		avg = math.Min(1.0, avg+0.2)
	}
	return domain.Decision{Label: labelAt(avg, strategy.Threshold), Score: avg}
}

func labelAt(score, threshold float64) int {
	if score >= threshold {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
