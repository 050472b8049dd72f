package registry

import "context"

// Predictor scores one URL for phishing likelihood, returning a probability
// in [0,1]. Implementations must be safe for concurrent use; the registry
// fans a batch out across predictors and labels each probability against the
// caller's threshold. Predictors that hold external resources may
// additionally implement io.Closer; Close is invoked when the instance is
// unloaded or replaced.
type Predictor interface {
	Predict(ctx context.Context, rawURL string) (float64, error)
}

// Factory constructs a predictor instance from declarative parameters.
type Factory func(params map[string]any) (Predictor, error)

// Catalog maps implementation refs to factories. Impl resolution is a plain
// table lookup; an unknown ref marks the declaring entry unhealthy.
type Catalog map[string]Factory
