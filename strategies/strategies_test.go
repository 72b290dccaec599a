package strategies

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStrategies(t *testing.T) {
	t.Parallel()
	all := GetStrategies()
	require.Len(t, all, 2)
	seen := make(map[string]bool)
	for _, s := range all {
		assert.NotEmpty(t, s.Name())
		assert.NotEmpty(t, s.Description())
		assert.False(t, seen[s.Name()], "duplicate strategy name %v", s.Name())
		seen[s.Name()] = true
	}
}

func TestLoadStrategyByName(t *testing.T) {
	t.Parallel()
	s, err := LoadStrategyByName("rsi")
	require.NoError(t, err)
	assert.Equal(t, "rsi", s.Name())

	// lookup is case insensitive
	s, err = LoadStrategyByName("XS-Momentum")
	require.NoError(t, err)
	assert.Equal(t, "xs-momentum", s.Name())

	_, err = LoadStrategyByName("no-such-strategy")
	assert.ErrorIs(t, err, ErrStrategyNotFound)
}

func TestLoadStrategyByNameReturnsFreshInstances(t *testing.T) {
	t.Parallel()
	a, err := LoadStrategyByName("rsi")
	require.NoError(t, err)
	b, err := LoadStrategyByName("rsi")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}
