package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PredictorConfig declares one predictor the registry should run.
//
// Notes:
// - Name is the registry key; diffs during reload are computed by Name.
// - Impl selects the constructor from the factory table.
// - Params are opaque to the registry and handed to the constructor.
// - Identity for reload purposes is (Impl, Params); see Fingerprint.
type PredictorConfig struct {
	Name         string         // registry key, e.g. "heuristic_baseline"
	Impl         string         // factory key, e.g. "lexical"
	Enabled      bool           // disabled entries are declared but never loaded
	Params       map[string]any // constructor parameters
	Dependencies []string       // informational: external tools/models required
	Description  string         // optional human description
}

// NewPredictorConfig constructs a PredictorConfig and validates its fields.
func NewPredictorConfig(name, impl string, enabled bool, params map[string]any) (PredictorConfig, error) {
	c := PredictorConfig{
		Name:    strings.TrimSpace(name),
		Impl:    strings.TrimSpace(impl),
		Enabled: enabled,
		Params:  params,
	}
	if err := c.Validate(); err != nil {
		return PredictorConfig{}, err
	}
	return c, nil
}

// Validate checks the PredictorConfig for required fields.
func (c PredictorConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("predictor name must not be empty")
	}
	if c.Impl == "" {
		return fmt.Errorf("predictor %q: impl must not be empty", c.Name)
	}
	return nil
}

// Fingerprint returns a stable identity for (Impl, Params). Two configs with
// equal fingerprints are interchangeable: a reload keeps the running
// instance. json.Marshal renders map keys sorted, so the encoding is
// deterministic for config-shaped params.
func (c PredictorConfig) Fingerprint() string {
	enc, err := json.Marshal(c.Params)
	if err != nil {
		enc = []byte(fmt.Sprintf("unencodable:%v", err))
	}
	return c.Impl + "|" + string(enc)
}

// HealthState tracks a registry instance through its lifecycle.
type HealthState uint8

const (
	// HealthLoading is the transient state while a constructor runs.
	HealthLoading HealthState = iota
	// HealthHealthy instances serve predictions.
	HealthHealthy
	// HealthUnhealthy instances stay visible but are excluded from serving.
	HealthUnhealthy
)

// String returns a stable string representation of the health state.
func (s HealthState) String() string {
	switch s {
	case HealthLoading:
		return "loading"
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return fmt.Sprintf("HealthState(%d)", s)
	}
}

// MarshalJSON renders the state as its string form.
func (s HealthState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Prediction is one predictor's output for one URL. Proba and Label are nil
// when the predictor failed; Err carries the failure instead of an error
// return so one bad predictor never aborts a batch.
type Prediction struct {
	Proba *float64 `json:"proba"`
	Label *int     `json:"label"`
	Err   string   `json:"error,omitempty"`
}

// NewPrediction returns a successful prediction.
func NewPrediction(proba float64, label int) Prediction {
	return Prediction{Proba: &proba, Label: &label}
}

// NewPredictionError returns a failed prediction carrying the error text.
func NewPredictionError(msg string) Prediction {
	return Prediction{Err: msg}
}

// OK reports whether the prediction carries a usable probability.
func (p Prediction) OK() bool { return p.Err == "" && p.Proba != nil }

// PredictorInfo is the externally visible state of one registry entry.
type PredictorInfo struct {
	Name        string      `json:"name"`
	Impl        string      `json:"impl"`
	State       HealthState `json:"status"`
	Enabled     bool        `json:"enabled"`
	LoadedAt    time.Time   `json:"loaded_at"`
	ErrorCount  int         `json:"error_count"`
	LastError   string      `json:"last_error,omitempty"`
	Description string      `json:"description,omitempty"`
}

// RegistryHealth summarizes the registry for health reporting.
type RegistryHealth struct {
	Total         int     `json:"total"`
	Healthy       int     `json:"healthy"`
	HealthRatio   float64 `json:"health_ratio"`
	WatcherActive bool    `json:"watcher_active"`
}
