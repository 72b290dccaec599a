package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"

	"go.uber.org/zap"

	"github.com/foldline/backtester/common"
	"github.com/foldline/backtester/data"
	"github.com/foldline/backtester/eventtypes/bar"
	"github.com/foldline/backtester/eventtypes/signal"
	"github.com/foldline/backtester/exchange"
	"github.com/foldline/backtester/portfolio"
	"github.com/foldline/backtester/strategies"
)

// New creates an engine over fully constructed components
func New(d data.Handler, s strategies.Handler, p *portfolio.Portfolio, ex *exchange.Exchange, artifactsDir string, logger *zap.SugaredLogger) (*Engine, error) {
	if d == nil || s == nil || p == nil || ex == nil {
		return nil, common.ErrNilArguments
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{
		data:         d,
		strategy:     s,
		portfolio:    p,
		exchange:     ex,
		log:          logger,
		artifactsDir: artifactsDir,
	}, nil
}

// Run consumes the data stream to exhaustion. Strategies that opt into
// simultaneous processing receive whole timestamp batches, everything else
// is driven event by event. All signals and orders raised by an event are
// resolved before the next event is consumed.
func (e *Engine) Run() error {
	if err := e.data.Active(); err != nil {
		return err
	}
	stop, err := e.startProfile()
	if err != nil {
		return err
	}
	defer stop()

	if e.strategy.UsesSimultaneousProcessing() {
		err = e.runBatches()
	} else {
		err = e.runEvents()
	}
	if err != nil {
		return err
	}
	e.log.Infow("run complete",
		"events_until", e.clock,
		"orders_accepted", e.exchange.Accepted,
		"orders_rejected", e.exchange.Rejected,
		"trades", len(e.portfolio.Trades()))
	return nil
}

func (e *Engine) runEvents() error {
	for {
		b, ok := e.data.Next()
		if !ok {
			return nil
		}
		if err := e.advanceClock(b); err != nil {
			return err
		}
		if err := e.portfolio.OnMarket(b); err != nil {
			return err
		}
		sigs, err := e.strategy.OnMarket(b)
		if err != nil {
			return err
		}
		if err = e.processSignals(sigs); err != nil {
			return err
		}
	}
}

func (e *Engine) runBatches() error {
	for {
		batch, ok := e.data.NextBatch()
		if !ok {
			return nil
		}
		for i := range batch {
			if i > 0 && batch[i].GetTime().Before(batch[i-1].GetTime()) {
				return fmt.Errorf("%w: batch unsorted, %v before %v",
					ErrLookahead, batch[i].GetTime(), batch[i-1].GetTime())
			}
			if err := e.advanceClock(batch[i]); err != nil {
				return err
			}
			if err := e.portfolio.OnMarket(batch[i]); err != nil {
				return err
			}
		}
		sigs, err := e.strategy.OnMarketBatch(batch)
		if err != nil {
			return err
		}
		if err = e.processSignals(sigs); err != nil {
			return err
		}
	}
}

// advanceClock enforces monotonicity before moving the clock forward
func (e *Engine) advanceClock(b *bar.Bar) error {
	if b == nil {
		return common.ErrNilEvent
	}
	if b.GetTime().Before(e.clock) {
		return fmt.Errorf("%w: event %v at %v precedes clock %v",
			ErrLookahead, b.GetSymbol(), b.GetTime(), e.clock)
	}
	e.clock = b.GetTime()
	return nil
}

// processSignals runs each signal through the portfolio and the broker,
// applying the resulting fills, before the next signal is considered
func (e *Engine) processSignals(sigs []*signal.Signal) error {
	for _, sig := range sigs {
		if sig == nil {
			continue
		}
		if sig.GetTime().Before(e.clock) {
			return fmt.Errorf("%w: signal %v at %v precedes clock %v",
				ErrLookahead, sig.GetSymbol(), sig.GetTime(), e.clock)
		}
		orders, err := e.portfolio.OnSignal(sig)
		if err != nil {
			return err
		}
		for _, o := range orders {
			fills, err := e.exchange.ExecuteOrder(o, e.clock)
			if err != nil {
				return err
			}
			for _, f := range fills {
				if f.GetTime().Before(o.GetTime()) {
					return fmt.Errorf("%w: fill for order %v at %v precedes order time %v",
						ErrLookahead, o.ID, f.GetTime(), o.GetTime())
				}
				if err = e.portfolio.OnFill(f); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// startProfile enables CPU profiling when the environment switch is set.
// The returned stop function is safe on all exit paths.
func (e *Engine) startProfile() (func(), error) {
	if os.Getenv(ProfileEnv) == "" || e.artifactsDir == "" {
		return func() {}, nil
	}
	f, err := os.Create(filepath.Join(e.artifactsDir, "profile.pprof"))
	if err != nil {
		return nil, err
	}
	if err = pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, err
	}
	return func() {
		pprof.StopCPUProfile()
		if cerr := f.Close(); cerr != nil {
			e.log.Warnw("could not close profile", "error", cerr)
		}
	}, nil
}
