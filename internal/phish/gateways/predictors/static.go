package predictors

import (
	"context"
	"fmt"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/services/registry"
)

type staticParams struct {
	Proba float64 `koanf:"proba"`
}

// Static returns one fixed probability for every URL. It exists to pin
// aggregation behavior from configuration alone and to serve as a canary
// entry when validating registry reloads.
type Static struct {
	proba float64
}

// NewStatic constructs a Static predictor. Accepted params:
//   - proba: the fixed probability in [0,1], default 0
func NewStatic(params map[string]any) (registry.Predictor, error) {
	p := staticParams{}
	if err := decodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("static: %w", err)
	}
	if err := validateUnitInterval("proba", p.Proba); err != nil {
		return nil, fmt.Errorf("static: %w", err)
	}
	return &Static{proba: p.Proba}, nil
}

// Predict returns the fixed probability.
func (s *Static) Predict(_ context.Context, _ string) (float64, error) {
	return s.proba, nil
}

var _ registry.Predictor = (*Static)(nil)
