package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/domain"
)

func pred(proba float64) domain.Prediction {
	return domain.NewPrediction(proba, labelAt(proba, domain.DefaultThreshold))
}

func failed(msg string) domain.Prediction {
	return domain.NewPredictionError(msg)
}

func anyStrategyAt(threshold float64) domain.Strategy {
	return domain.Strategy{Name: domain.StrategyAny, Threshold: threshold}
}

func weightedStrategyAt(threshold float64, weights map[string]float64) domain.Strategy {
	return domain.Strategy{Name: domain.StrategyWeighted, Threshold: threshold, Weights: weights}
}

func TestAggregate_Any(t *testing.T) {
	svc := NewService()

	tests := []struct {
		name  string
		hits  domain.RuleHits
		preds map[string]domain.Prediction
		st    domain.Strategy
		want  domain.Decision
	}{
		{
			name:  "rule hit overrides everything",
			hits:  domain.RuleHits{"feed": true},
			preds: map[string]domain.Prediction{"m": pred(0.1)},
			st:    anyStrategyAt(0.5),
			want:  domain.Decision{Label: 1, Score: 1.0},
		},
		{
			name:  "allowlisted source is not a hit",
			hits:  domain.RuleHits{"feed": false},
			preds: map[string]domain.Prediction{"m": pred(0.9)},
			st:    anyStrategyAt(0.5),
			want:  domain.Decision{Label: 1, Score: 0.9},
		},
		{
			name: "max of available probabilities",
			hits: domain.RuleHits{},
			preds: map[string]domain.Prediction{
				"low":    pred(0.3),
				"high":   pred(0.7),
				"broken": failed("timeout"),
			},
			st:   anyStrategyAt(0.5),
			want: domain.Decision{Label: 1, Score: 0.7},
		},
		{
			name:  "all predictors failed",
			hits:  domain.RuleHits{},
			preds: map[string]domain.Prediction{"broken": failed("down")},
			st:    anyStrategyAt(0.5),
			want:  domain.Decision{Label: 0, Score: 0.0},
		},
		{
			name: "empty inputs",
			st:   anyStrategyAt(0.5),
			want: domain.Decision{Label: 0, Score: 0.0},
		},
		{
			name:  "score at threshold is positive",
			preds: map[string]domain.Prediction{"m": pred(0.5)},
			st:    anyStrategyAt(0.5),
			want:  domain.Decision{Label: 1, Score: 0.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Aggregate(tt.st, tt.hits, tt.preds)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Label, got.Label)
			assert.InDelta(t, tt.want.Score, got.Score, 1e-9)
		})
	}
}

func TestAggregate_Weighted(t *testing.T) {
	svc := NewService()

	tests := []struct {
		name      string
		hits      domain.RuleHits
		preds     map[string]domain.Prediction
		st        domain.Strategy
		wantLabel int
		wantScore float64
	}{
		{
			name:      "plain mean without weights",
			preds:     map[string]domain.Prediction{"a": pred(0.4), "b": pred(0.8)},
			st:        weightedStrategyAt(0.5, nil),
			wantLabel: 1,
			wantScore: 0.6,
		},
		{
			name:      "failed predictors are skipped",
			preds:     map[string]domain.Prediction{"a": pred(0.4), "b": failed("down")},
			st:        weightedStrategyAt(0.5, nil),
			wantLabel: 0,
			wantScore: 0.4,
		},
		{
			name:      "weighted mean",
			preds:     map[string]domain.Prediction{"a": pred(0.9), "b": pred(0.3)},
			st:        weightedStrategyAt(0.5, map[string]float64{"a": 2, "b": 1}),
			wantLabel: 1,
			wantScore: (2*0.9 + 1*0.3) / 3,
		},
		{
			name:      "unlisted predictor weighs one",
			preds:     map[string]domain.Prediction{"a": pred(0.8), "b": pred(0.4)},
			st:        weightedStrategyAt(0.5, map[string]float64{"a": 3}),
			wantLabel: 1,
			wantScore: (3*0.8 + 1*0.4) / 4,
		},
		{
			name:      "rule hit boosts the mean",
			hits:      domain.RuleHits{"feed": true},
			preds:     map[string]domain.Prediction{"a": pred(0.4), "b": pred(0.8)},
			st:        weightedStrategyAt(0.5, nil),
			wantLabel: 1,
			wantScore: 0.8,
		},
		{
			name:      "boost is capped at one",
			hits:      domain.RuleHits{"feed": true},
			preds:     map[string]domain.Prediction{"a": pred(0.95)},
			st:        weightedStrategyAt(0.5, nil),
			wantLabel: 1,
			wantScore: 1.0,
		},
		{
			name:      "weights with no available probabilities",
			preds:     map[string]domain.Prediction{"a": failed("down")},
			st:        weightedStrategyAt(0.5, map[string]float64{"a": 2}),
			wantLabel: 0,
			wantScore: 0.0,
		},
		{
			name:      "rule hit alone scores the boost",
			hits:      domain.RuleHits{"feed": true},
			st:        weightedStrategyAt(0.5, nil),
			wantLabel: 0,
			wantScore: 0.2,
		},
		{
			name:      "empty inputs",
			st:        weightedStrategyAt(0.5, nil),
			wantLabel: 0,
			wantScore: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Aggregate(tt.st, tt.hits, tt.preds)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLabel, got.Label)
			assert.InDelta(t, tt.wantScore, got.Score, 1e-9)
		})
	}
}

func TestAggregate_UnknownStrategy(t *testing.T) {
	svc := NewService()
	_, err := svc.Aggregate(domain.Strategy{Name: "vote", Threshold: 0.5}, nil, nil)
	assert.ErrorContains(t, err, `unknown strategy "vote"`)
}

func TestAggregate_InvalidStrategy(t *testing.T) {
	svc := NewService()
	_, err := svc.Aggregate(domain.Strategy{Name: "any", Threshold: 2.0}, nil, nil)
	assert.Error(t, err)
}

func TestAggregate_ScoreClamped(t *testing.T) {
	svc := NewService()
	require.NoError(t, svc.Register("wild", func(domain.RuleHits, map[string]domain.Prediction, domain.Strategy) domain.Decision {
		return domain.Decision{Label: 1, Score: 1.7}
	}))

	got, err := svc.Aggregate(domain.Strategy{Name: "wild", Threshold: 0.5}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Score)
}

func TestAggregate_Purity(t *testing.T) {
	svc := NewService()
	hits := domain.RuleHits{"feed": false, "kits": true}
	preds := map[string]domain.Prediction{"a": pred(0.4), "b": failed("down")}
	st := weightedStrategyAt(0.5, map[string]float64{"a": 2})

	first, err := svc.Aggregate(st, hits, preds)
	require.NoError(t, err)
	second, err := svc.Aggregate(st, hits, preds)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, hits, 2)
	assert.Len(t, preds, 2)
	assert.Equal(t, 0.4, *preds["a"].Proba)
}

func TestRegister(t *testing.T) {
	svc := NewService()

	t.Run("custom strategy dispatches", func(t *testing.T) {
		err := svc.Register("Pessimist", func(domain.RuleHits, map[string]domain.Prediction, domain.Strategy) domain.Decision {
			return domain.Decision{Label: 1, Score: 1.0}
		})
		require.NoError(t, err)

		got, err := svc.Aggregate(domain.Strategy{Name: "pessimist", Threshold: 0.5}, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.Decision{Label: 1, Score: 1.0}, got)
	})

	t.Run("validation", func(t *testing.T) {
		assert.Error(t, svc.Register("", func(domain.RuleHits, map[string]domain.Prediction, domain.Strategy) domain.Decision {
			return domain.EmptyDecision()
		}))
		assert.Error(t, svc.Register("nilfn", nil))
	})
}

func TestStrategies(t *testing.T) {
	svc := NewService()
	assert.Equal(t, []string{"any", "weighted"}, svc.Strategies())

	require.NoError(t, svc.Register("custom", func(domain.RuleHits, map[string]domain.Prediction, domain.Strategy) domain.Decision {
		return domain.EmptyDecision()
	}))
	assert.Equal(t, []string{"any", "custom", "weighted"}, svc.Strategies())
}
