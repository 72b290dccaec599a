package strategies

import (
	"fmt"
	"strings"

	"github.com/foldline/backtester/strategies/momentum"
	"github.com/foldline/backtester/strategies/rsi"
)

// GetStrategies returns one instance of every registered strategy
func GetStrategies() []Handler {
	return []Handler{
		momentum.New(),
		rsi.New(),
	}
}

// LoadStrategyByName returns the strategy registered under the supplied
// name with defaults applied
func LoadStrategyByName(name string) (Handler, error) {
	for _, s := range GetStrategies() {
		if strings.EqualFold(s.Name(), name) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrStrategyNotFound, name)
}
