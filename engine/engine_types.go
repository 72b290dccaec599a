package engine

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/foldline/backtester/data"
	"github.com/foldline/backtester/exchange"
	"github.com/foldline/backtester/portfolio"
	"github.com/foldline/backtester/strategies"
)

// ErrLookahead is returned on any temporal violation: an event before the
// clock, a signal before the clock, a fill before its order, or an
// internally unsorted batch. All are fatal.
var ErrLookahead = errors.New("lookahead violation")

// ProfileEnv names the environment switch that enables CPU profiling for
// the duration of a run. The profile blob lands in the artifacts directory.
const ProfileEnv = "BACKTESTER_PROFILE"

// Engine owns the clock and drives events through the portfolio, strategy
// and broker in strict order
type Engine struct {
	data         data.Handler
	strategy     strategies.Handler
	portfolio    *portfolio.Portfolio
	exchange     *exchange.Exchange
	log          *zap.SugaredLogger
	artifactsDir string

	clock time.Time
}
