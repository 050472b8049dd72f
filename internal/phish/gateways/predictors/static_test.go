package predictors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStatic(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		p, err := NewStatic(nil)
		require.NoError(t, err)
		proba, err := p.Predict(ctx, "http://anything.example/")
		require.NoError(t, err)
		assert.Equal(t, 0.0, proba)
	})

	t.Run("fixed proba", func(t *testing.T) {
		p, err := NewStatic(map[string]any{"proba": 0.9})
		require.NoError(t, err)
		proba, err := p.Predict(ctx, "u")
		require.NoError(t, err)
		assert.Equal(t, 0.9, proba)
	})

	t.Run("invalid proba", func(t *testing.T) {
		_, err := NewStatic(map[string]any{"proba": 1.2})
		assert.Error(t, err)
	})

	t.Run("invalid param type", func(t *testing.T) {
		_, err := NewStatic(map[string]any{"proba": "high"})
		assert.Error(t, err)
	})
}
