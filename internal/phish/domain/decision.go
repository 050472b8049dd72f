package domain

// Decision is the fused risk verdict for one URL under one strategy.
// Pure value type, no external dependencies.
type Decision struct {
	Label int     `json:"label"` // 1 = phishing, 0 = benign
	Score float64 `json:"score"` // risk score in [0,1]
}

// EmptyDecision returns the benign zero decision used for empty inputs.
func EmptyDecision() Decision { return Decision{Label: 0, Score: 0.0} }

// IsPhishing is a convenience accessor.
func (d Decision) IsPhishing() bool { return d.Label == 1 }
