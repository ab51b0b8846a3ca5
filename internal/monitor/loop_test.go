package monitor

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"arbScope/internal/evaluator"
	"arbScope/internal/model"
	"arbScope/internal/observability"
	"arbScope/internal/quote"
	"arbScope/internal/registry"
	"arbScope/internal/venue"
)

const (
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	solMint  = "So11111111111111111111111111111111111111112"
	usdtMint = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

type fetchFunc func(ctx context.Context, pair model.TokenPair, amountIn *big.Int, filter venue.Filter) (model.Quote, error)

type recordingSink struct {
	mu      sync.Mutex
	reports []model.CycleReport
}

func (s *recordingSink) Report(_ context.Context, r model.CycleReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) all() []model.CycleReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.CycleReport(nil), s.reports...)
}

func pairOf(name, base string) model.TokenPair {
	return model.TokenPair{
		Name:        name,
		Base:        model.Token{Address: base, Decimals: 6},
		Quote:       model.Token{Address: usdcMint, Decimals: 6},
		InputAmount: decimal.NewFromInt(1000),
	}
}

func quoteFor(pair model.TokenPair, amountIn *big.Int, out int64, filter venue.Filter, route ...model.Venue) model.Quote {
	return model.Quote{
		Pair:        pair.Key(),
		InputMint:   pair.Base.Address,
		OutputMint:  pair.Quote.Address,
		AmountIn:    new(big.Int).Set(amountIn),
		AmountOut:   big.NewInt(out),
		Route:       route,
		Restriction: filter.Venues(),
	}
}

// spreadSource quotes 1002 via X for the best route and 995 on single-venue Y.
func spreadSource(extra fetchFunc) fetchFunc {
	return func(ctx context.Context, pair model.TokenPair, amountIn *big.Int, filter venue.Filter) (model.Quote, error) {
		if extra != nil {
			if q, err := extra(ctx, pair, amountIn, filter); err != nil || q.AmountOut != nil {
				return q, err
			}
		}
		switch filter.String() {
		case "X,Y":
			return quoteFor(pair, amountIn, 1_002_000_000, filter, "X"), nil
		case "X":
			return quoteFor(pair, amountIn, 1_002_000_000, filter, "X"), nil
		case "Y":
			return quoteFor(pair, amountIn, 995_000_000, filter, "Y"), nil
		}
		return model.Quote{}, quote.Permanent("fake", errors.New("unexpected filter "+filter.String()))
	}
}

func newTestLoop(t *testing.T, cfg Config, fetch fetchFunc, pairs ...model.TokenPair) (*Loop, *registry.Registry, *recordingSink) {
	t.Helper()
	reg := registry.New()
	for _, p := range pairs {
		require.NoError(t, reg.Register(p))
	}
	ev, err := evaluator.New(evaluator.Config{
		ProfitThreshold:      decimal.RequireFromString("0.002"),
		FeeSlippageDeduction: decimal.RequireFromString("0.0005"),
	})
	require.NoError(t, err)

	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = 4
	}
	if !cfg.Filter.IsRestricted() {
		cfg.Filter = venue.NewFilter("X", "Y")
	}
	sink := &recordingSink{}
	loop, err := New(cfg, reg, quote.SourceFunc(fetch), ev, sink, observability.NewMetrics("test"), zaptest.NewLogger(t))
	require.NoError(t, err)
	return loop, reg, sink
}

func TestNewValidatesConfig(t *testing.T) {
	reg := registry.New()
	ev, _ := evaluator.New(evaluator.Config{ProfitThreshold: decimal.NewFromFloat(0.01)})
	src := quote.SourceFunc(spreadSource(nil))

	_, err := New(Config{Interval: 0, MaxConcurrency: 1}, reg, src, ev, &recordingSink{}, nil, nil)
	assert.Error(t, err)
	_, err = New(Config{Interval: time.Second, MaxConcurrency: 0}, reg, src, ev, &recordingSink{}, nil, nil)
	assert.Error(t, err)
	_, err = New(Config{Interval: time.Second, MaxConcurrency: 1}, reg, src, ev, nil, nil, nil)
	assert.Error(t, err)
}

func TestRunCycleEmitsSignal(t *testing.T) {
	loop, _, sink := newTestLoop(t, Config{}, spreadSource(nil), pairOf("USDT-USDC", usdtMint))

	report, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, sink.all(), 1)

	require.Len(t, report.Signals, 1)
	sig := report.Signals[0]
	assert.Equal(t, []model.Venue{"X", "Y"}, sig.Venues)
	assert.InDelta(t, 7.0/995.0-0.0005, sig.NetProfitRelative.InexactFloat64(), 1e-12)

	h := report.Health
	assert.Equal(t, uint64(1), h.Cycle)
	assert.Equal(t, 1, h.PairsTotal)
	assert.Equal(t, 1, h.PairsQueried)
	assert.Equal(t, 0, h.PairsFailed)
	assert.Equal(t, 1, h.Signals)
	assert.False(t, h.Partial)
	require.Len(t, h.Pairs, 1)
	assert.Equal(t, model.PairOK, h.Pairs[0].Status)
	assert.Equal(t, 3, h.Pairs[0].Quotes)
}

func TestRunCycleReportsSpreadBelowThreshold(t *testing.T) {
	loop, _, _ := newTestLoop(t, Config{}, spreadSource(nil), pairOf("USDT-USDC", usdtMint))
	ev, err := evaluator.New(evaluator.Config{
		ProfitThreshold:      decimal.RequireFromString("0.05"),
		FeeSlippageDeduction: decimal.RequireFromString("0.0005"),
	})
	require.NoError(t, err)
	loop.eval = ev

	report, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Signals)

	require.Len(t, report.Health.Pairs, 1)
	outcome := report.Health.Pairs[0]
	assert.Equal(t, model.PairOK, outcome.Status)
	require.NotNil(t, outcome.Spread)
	require.NotNil(t, outcome.NetProfit)
	assert.InDelta(t, 7.0/995.0, outcome.Spread.InexactFloat64(), 1e-12)
	assert.InDelta(t, 7.0/995.0-0.0005, outcome.NetProfit.InexactFloat64(), 1e-12)
	assert.Nil(t, outcome.RoundTripSpread)
}

func TestRepeatedSignalGetsNewEventID(t *testing.T) {
	loop, _, _ := newTestLoop(t, Config{}, spreadSource(nil), pairOf("USDT-USDC", usdtMint))
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	loop.now = func() time.Time { return clock }

	first, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	clock = clock.Add(30 * time.Second)
	second, err := loop.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, first.Signals, 1)
	require.Len(t, second.Signals, 1)
	assert.Equal(t, first.Signals[0].ID, second.Signals[0].ID)
	assert.NotEqual(t, first.Signals[0].EventID, second.Signals[0].EventID)
}

func TestRunCycleIsolatesPairFailures(t *testing.T) {
	failing := pairOf("BONK-USDC", bonkMint)
	fetch := spreadSource(func(ctx context.Context, pair model.TokenPair, amountIn *big.Int, filter venue.Filter) (model.Quote, error) {
		if pair.Base.Address == bonkMint {
			return model.Quote{}, quote.Transient("fake", errors.New("timeout"))
		}
		return model.Quote{}, nil
	})
	loop, _, _ := newTestLoop(t, Config{}, fetch,
		pairOf("USDT-USDC", usdtMint), failing, pairOf("SOL-USDC", solMint))

	report, err := loop.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Signals, 2)
	assert.Equal(t, "USDT-USDC", report.Signals[0].Pair)
	assert.Equal(t, "SOL-USDC", report.Signals[1].Pair)

	h := report.Health
	assert.Equal(t, 2, h.PairsQueried)
	assert.Equal(t, 1, h.PairsFailed)
	assert.Equal(t, model.PairTransient, h.Pairs[1].Status)
	assert.Contains(t, h.Pairs[1].Error, "timeout")
	assert.Empty(t, h.Unhealthy, "transient errors do not mark pairs unhealthy")
}

func TestPermanentBestErrorMarksUnhealthy(t *testing.T) {
	var broken atomic.Bool
	broken.Store(true)
	fetch := spreadSource(func(ctx context.Context, pair model.TokenPair, amountIn *big.Int, filter venue.Filter) (model.Quote, error) {
		if broken.Load() {
			return model.Quote{}, quote.Permanent("fake", errors.New("token not tradable"))
		}
		return model.Quote{}, nil
	})
	p := pairOf("USDT-USDC", usdtMint)
	loop, reg, _ := newTestLoop(t, Config{}, fetch, p)

	report, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.PairPermanent, report.Health.Pairs[0].Status)
	assert.Equal(t, []string{p.Key()}, report.Health.Unhealthy)
	assert.Equal(t, 1, reg.Len(), "pair stays registered")

	broken.Store(false)
	report, err = loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.PairOK, report.Health.Pairs[0].Status)
	assert.Empty(t, report.Health.Unhealthy)
}

func TestVenueErrorDegradesPair(t *testing.T) {
	fetch := spreadSource(func(ctx context.Context, pair model.TokenPair, amountIn *big.Int, filter venue.Filter) (model.Quote, error) {
		if filter.String() == "Y" {
			return model.Quote{}, quote.Permanent("fake", errors.New("no route"))
		}
		return model.Quote{}, nil
	})
	loop, reg, _ := newTestLoop(t, Config{}, fetch, pairOf("USDT-USDC", usdtMint))

	report, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Signals)
	assert.Equal(t, model.PairDegraded, report.Health.Pairs[0].Status)
	assert.Equal(t, 1, report.Health.PairsDegraded)
	assert.Equal(t, 1, report.Health.PairsQueried)
	assert.Empty(t, reg.Unhealthy())
}

func TestIneligibleRoutesAreDropped(t *testing.T) {
	fetch := spreadSource(func(ctx context.Context, pair model.TokenPair, amountIn *big.Int, filter venue.Filter) (model.Quote, error) {
		if filter.String() == "Y" {
			return quoteFor(pair, amountIn, 900_000_000, filter, "Y", "Z"), nil
		}
		return model.Quote{}, nil
	})
	loop, _, _ := newTestLoop(t, Config{}, fetch, pairOf("USDT-USDC", usdtMint))

	report, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Signals)
	assert.Equal(t, 2, report.Health.Pairs[0].Quotes)
	assert.Equal(t, model.PairSkipped, report.Health.Pairs[0].Status)
	assert.Equal(t, 1, report.Health.PairsSkipped)
}

func TestSignalsFollowSnapshotOrder(t *testing.T) {
	fetch := spreadSource(func(ctx context.Context, pair model.TokenPair, amountIn *big.Int, filter venue.Filter) (model.Quote, error) {
		if pair.Base.Address == usdtMint {
			time.Sleep(30 * time.Millisecond)
		}
		return model.Quote{}, nil
	})
	loop, _, _ := newTestLoop(t, Config{MaxConcurrency: 8}, fetch,
		pairOf("USDT-USDC", usdtMint), pairOf("SOL-USDC", solMint), pairOf("BONK-USDC", bonkMint))

	report, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Signals, 3)
	assert.Equal(t, "USDT-USDC", report.Signals[0].Pair)
	assert.Equal(t, "SOL-USDC", report.Signals[1].Pair)
	assert.Equal(t, "BONK-USDC", report.Signals[2].Pair)
}

func TestIdenticalInputsYieldIdenticalSignals(t *testing.T) {
	loop, _, _ := newTestLoop(t, Config{}, spreadSource(nil), pairOf("USDT-USDC", usdtMint))
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	loop.now = func() time.Time { return fixed }

	first, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	second, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Signals, second.Signals)
}

func TestMaxConcurrencyBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	fetch := spreadSource(func(ctx context.Context, pair model.TokenPair, amountIn *big.Int, filter venue.Filter) (model.Quote, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return model.Quote{}, nil
	})
	loop, _, _ := newTestLoop(t, Config{MaxConcurrency: 2}, fetch,
		pairOf("USDT-USDC", usdtMint), pairOf("SOL-USDC", solMint), pairOf("BONK-USDC", bonkMint))

	_, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Greater(t, peak.Load(), int32(0))
}

func TestDeregisterDuringCycleKeepsSnapshot(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fetch := spreadSource(func(ctx context.Context, pair model.TokenPair, amountIn *big.Int, filter venue.Filter) (model.Quote, error) {
		if pair.Base.Address == solMint {
			once.Do(func() { close(entered) })
			<-release
		}
		return model.Quote{}, nil
	})
	loop, reg, _ := newTestLoop(t, Config{}, fetch, pairOf("USDT-USDC", usdtMint), pairOf("SOL-USDC", solMint))

	type result struct {
		report model.CycleReport
		err    error
	}
	out := make(chan result, 1)
	go func() {
		r, err := loop.RunCycle(context.Background())
		out <- result{r, err}
	}()

	<-entered
	_, err := reg.Deregister("SOL-USDC")
	require.NoError(t, err)
	close(release)

	res := <-out
	require.NoError(t, res.err)
	assert.Equal(t, 2, res.report.Health.PairsTotal)
	assert.Len(t, res.report.Signals, 2)

	next, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, next.Health.PairsTotal)
	assert.Equal(t, "USDT-USDC", next.Health.Pairs[0].Pair)
}

func TestRoundTrip(t *testing.T) {
	base := model.TokenPair{
		Name:        "SOL-USDC",
		Base:        model.Token{Address: solMint, Decimals: 9},
		Quote:       model.Token{Address: usdcMint, Decimals: 6},
		InputAmount: decimal.NewFromInt(1),
	}
	fetch := func(ctx context.Context, pair model.TokenPair, amountIn *big.Int, filter venue.Filter) (model.Quote, error) {
		if pair.Base.Address == solMint {
			return quoteFor(pair, amountIn, 150_000_000, filter, "X"), nil
		}
		// Reverse leg: 150 USDC buys back 1.01 SOL.
		return quoteFor(pair, amountIn, 1_010_000_000, filter, "Y"), nil
	}
	loop, _, _ := newTestLoop(t, Config{RoundTrip: true, Filter: venue.NewFilter("X")}, fetch, base)

	report, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Signals, 0, "route Y is outside the allow-list")

	loop.cfg.Filter = venue.NewFilter("X", "Y")
	report, err = loop.RunCycle(context.Background())
	require.NoError(t, err)

	var kinds []model.SignalKind
	for _, s := range report.Signals {
		kinds = append(kinds, s.Kind)
	}
	assert.Contains(t, kinds, model.SignalRoundTrip)
	assert.Equal(t, model.PairOK, report.Health.Pairs[0].Status)
}

func TestRunStopsCleanlyAndDoesNotOverlap(t *testing.T) {
	fetch := spreadSource(func(ctx context.Context, pair model.TokenPair, amountIn *big.Int, filter venue.Filter) (model.Quote, error) {
		time.Sleep(15 * time.Millisecond)
		return model.Quote{}, nil
	})
	loop, _, sink := newTestLoop(t, Config{Interval: 10 * time.Millisecond}, fetch, pairOf("USDT-USDC", usdtMint))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()

	require.Eventually(t, func() bool { return len(sink.all()) >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	reports := sink.all()
	for i := 1; i < len(reports); i++ {
		prev, cur := reports[i-1].Health, reports[i].Health
		assert.Equal(t, prev.Cycle+1, cur.Cycle)
		assert.False(t, cur.StartedAt.Before(prev.StartedAt.Add(prev.Elapsed)), "cycles must not overlap")
	}
}

func TestInterruptAfterFetchesIsNotPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetch := spreadSource(func(context.Context, model.TokenPair, *big.Int, venue.Filter) (model.Quote, error) {
		cancel()
		return model.Quote{}, nil
	})
	loop, _, _ := newTestLoop(t, Config{ShutdownGrace: time.Second}, fetch, pairOf("USDT-USDC", usdtMint))

	report, err := loop.RunCycle(ctx)
	require.NoError(t, err)
	require.Error(t, ctx.Err())
	assert.False(t, report.Health.Partial)
	assert.Len(t, report.Signals, 1)
}

func TestRunEmitsPartialReportOnShutdown(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	fetch := spreadSource(func(ctx context.Context, pair model.TokenPair, amountIn *big.Int, filter venue.Filter) (model.Quote, error) {
		if pair.Base.Address == solMint {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return model.Quote{}, quote.Transient("fake", ctx.Err())
		}
		return model.Quote{}, nil
	})
	loop, _, sink := newTestLoop(t, Config{ShutdownGrace: 20 * time.Millisecond}, fetch,
		pairOf("USDT-USDC", usdtMint), pairOf("SOL-USDC", solMint))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()

	<-started
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}

	reports := sink.all()
	require.Len(t, reports, 1)
	h := reports[0].Health
	assert.True(t, h.Partial)
	assert.Equal(t, 2, h.PairsTotal)
	assert.Equal(t, 1, h.PairsFailed)
	assert.Equal(t, model.PairOK, h.Pairs[0].Status)
	assert.Equal(t, model.PairTransient, h.Pairs[1].Status)
	assert.Len(t, reports[0].Signals, 1)
}
