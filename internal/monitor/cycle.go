package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"arbScope/internal/model"
	"arbScope/internal/quote"
	"arbScope/internal/venue"
)

var errAbandoned = errors.New("fetch abandoned at shutdown")

type leg int

const (
	legBest leg = iota
	legVenue
)

func (l leg) String() string {
	if l == legBest {
		return "best"
	}
	return "venue"
}

type fetchTask struct {
	pair   int
	leg    leg
	filter venue.Filter
}

type fetchResult struct {
	done       bool
	quote      model.Quote
	err        error
	reverse    *model.Quote
	reverseErr error
}

// collector gathers fetch results. Once sealed, late writers are ignored.
type collector struct {
	mu      sync.Mutex
	sealed  bool
	results []fetchResult
}

func (c *collector) set(i int, r fetchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return
	}
	r.done = true
	c.results[i] = r
}

func (c *collector) seal() []fetchResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
	out := make([]fetchResult, len(c.results))
	copy(out, c.results)
	return out
}

// plan lists the fetches for each pair: the best route under the configured
// filter, plus one per allowed venue when more than one venue is configured.
func (l *Loop) plan(pairs []model.TokenPair) ([]fetchTask, [][]int) {
	venues := l.cfg.Filter.Venues()
	var (
		tasks  []fetchTask
		byPair = make([][]int, len(pairs))
	)
	for i := range pairs {
		byPair[i] = append(byPair[i], len(tasks))
		tasks = append(tasks, fetchTask{pair: i, leg: legBest, filter: l.cfg.Filter})
		if len(venues) < 2 {
			continue
		}
		for _, v := range venues {
			byPair[i] = append(byPair[i], len(tasks))
			tasks = append(tasks, fetchTask{pair: i, leg: legVenue, filter: venue.Single(v)})
		}
	}
	return tasks, byPair
}

func (l *Loop) collect(parent context.Context) model.CycleReport {
	l.cycle++
	started := l.now()
	pairs := l.registry.Snapshot()
	tasks, byPair := l.plan(pairs)

	results, partial := l.fetchAll(parent, pairs, tasks)

	evaluatedAt := l.now()
	health := model.PollCycleHealth{
		Cycle:      l.cycle,
		StartedAt:  started.UTC(),
		PairsTotal: len(pairs),
		Partial:    partial,
		Pairs:      make([]model.PairOutcome, 0, len(pairs)),
	}
	var signals []model.OpportunitySignal
	for i, pair := range pairs {
		outcome, pairSignals := l.evaluatePair(pair, byPair[i], results, evaluatedAt)
		signals = append(signals, pairSignals...)
		health.Pairs = append(health.Pairs, outcome)
		l.metrics.RecordPairOutcome(string(outcome.Status))

		switch {
		case outcome.Status.Queried():
			health.PairsQueried++
		default:
			health.PairsFailed++
		}
		switch outcome.Status {
		case model.PairDegraded:
			health.PairsDegraded++
		case model.PairSkipped:
			health.PairsSkipped++
		}
	}

	health.Signals = len(signals)
	health.Unhealthy = l.registry.Unhealthy()
	health.Elapsed = l.now().Sub(started)
	l.metrics.RecordCycle(health.Elapsed, partial, len(pairs), len(health.Unhealthy))

	l.logger.Debug("cycle finished",
		zap.Uint64("cycle", health.Cycle),
		zap.Int("pairs", health.PairsTotal),
		zap.Int("signals", health.Signals),
		zap.Duration("elapsed", health.Elapsed),
	)
	return model.CycleReport{Signals: signals, Health: health}
}

// fetchAll runs every task with bounded concurrency. Fetches run on a context
// detached from parent; once parent is cancelled they get ShutdownGrace to
// finish before the rest are abandoned.
func (l *Loop) fetchAll(parent context.Context, pairs []model.TokenPair, tasks []fetchTask) ([]fetchResult, bool) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	defer cancel()

	stop := context.AfterFunc(parent, func() {
		l.logger.Info("shutdown requested, waiting for in-flight fetches", zap.Duration("grace", l.cfg.ShutdownGrace))
		time.AfterFunc(l.cfg.ShutdownGrace, cancel)
	})
	defer stop()

	col := &collector{results: make([]fetchResult, len(tasks))}
	done := make(chan struct{})
	go func() {
		defer close(done)
		var g errgroup.Group
		g.SetLimit(l.cfg.MaxConcurrency)
		for i, task := range tasks {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				col.set(i, l.fetch(ctx, pairs[task.pair], task))
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		l.logger.Warn("abandoning in-flight fetches")
	}
	results := col.seal()
	return results, incomplete(results)
}

// incomplete reports whether any fetch was abandoned or never launched.
// Fetches run on a detached context, so a cancellation error can only come
// from the shutdown grace expiring.
func incomplete(results []fetchResult) bool {
	for _, r := range results {
		if !r.done || errors.Is(r.err, context.Canceled) || errors.Is(r.reverseErr, context.Canceled) {
			return true
		}
	}
	return false
}

func (l *Loop) fetch(ctx context.Context, pair model.TokenPair, task fetchTask) fetchResult {
	started := time.Now()
	q, err := l.source.FetchQuote(ctx, pair, pair.RawInputAmount(), task.filter)
	l.metrics.RecordFetch(task.leg.String(), resultLabel(err), time.Since(started))

	res := fetchResult{quote: q, err: err}
	if err != nil || task.leg != legBest || !l.cfg.RoundTrip {
		return res
	}

	started = time.Now()
	rq, rerr := l.source.FetchQuote(ctx, pair.Reverse(), q.AmountOut, task.filter)
	l.metrics.RecordFetch("reverse", resultLabel(rerr), time.Since(started))
	res.reverse = &rq
	res.reverseErr = rerr
	return res
}

func (l *Loop) evaluatePair(pair model.TokenPair, taskIdx []int, results []fetchResult, now time.Time) (model.PairOutcome, []model.OpportunitySignal) {
	key := pair.Key()
	log := l.logger.With(zap.String("pair", pair.Label()))
	outcome := model.PairOutcome{Pair: pair.Label(), Status: model.PairOK}

	best := results[taskIdx[0]]
	if !best.done {
		best.err = quote.Transient("fetch", errAbandoned)
	}
	if best.err != nil {
		outcome.Error = best.err.Error()
		if quote.IsPermanent(best.err) {
			outcome.Status = model.PairPermanent
			if l.registry.MarkHealth(key, best.err) {
				log.Warn("pair marked unhealthy", zap.Error(best.err))
			} else {
				log.Warn("quote fetch failed", zap.Error(best.err))
			}
		} else {
			outcome.Status = model.PairTransient
			log.Warn("quote fetch failed", zap.Error(best.err))
		}
		return outcome, nil
	}
	if l.registry.MarkHealth(key, nil) {
		log.Info("pair recovered")
	}

	var (
		quotes    []model.Quote
		degraded  bool
		evaluated bool
		signals   []model.OpportunitySignal
	)
	if l.eligible(best.quote) {
		quotes = append(quotes, best.quote)
	} else {
		log.Debug("dropping ineligible route", zap.String("route", best.quote.RouteString()))
	}

	for _, idx := range taskIdx[1:] {
		r := results[idx]
		switch {
		case !r.done:
			degraded = true
		case r.err != nil:
			degraded = true
			log.Warn("venue quote failed", zap.Error(r.err))
		case !l.eligible(r.quote):
			log.Debug("dropping ineligible route", zap.String("source", r.quote.Source()), zap.String("route", r.quote.RouteString()))
		default:
			quotes = append(quotes, r.quote)
		}
	}
	outcome.Quotes = len(quotes)

	assessed, err := l.eval.Assess(pair, pair.RawInputAmount(), quotes, now)
	if assessed.Dropped > 0 {
		outcome.Dropped = assessed.Dropped
		log.Warn("dropped quotes outside price band", zap.Int("dropped", assessed.Dropped))
	}
	switch {
	case errors.Is(err, model.ErrEvaluationSkipped):
	case err != nil:
		log.Error("evaluate quotes", zap.Error(err))
	default:
		evaluated = true
		outcome.Spread = decimalRef(assessed.Spread)
		outcome.NetProfit = decimalRef(assessed.NetProfitRelative)
		if assessed.Signal != nil {
			signals = append(signals, *assessed.Signal)
		}
	}

	if best.reverse != nil {
		if best.reverseErr != nil {
			degraded = true
			log.Warn("reverse quote failed", zap.Error(best.reverseErr))
		} else if l.eligible(*best.reverse) {
			outcome.Quotes++
			rt, err := l.eval.AssessRoundTrip(pair, best.quote, *best.reverse, now)
			switch {
			case errors.Is(err, model.ErrEvaluationSkipped):
			case err != nil:
				log.Error("evaluate round trip", zap.Error(err))
			default:
				evaluated = true
				outcome.RoundTripSpread = decimalRef(rt.Spread)
				outcome.RoundTripNet = decimalRef(rt.NetProfitRelative)
				if rt.Signal != nil {
					signals = append(signals, *rt.Signal)
				}
			}
		}
	}

	switch {
	case degraded:
		outcome.Status = model.PairDegraded
	case !evaluated:
		outcome.Status = model.PairSkipped
	}
	outcome.Signals = len(signals)
	for _, s := range signals {
		l.metrics.RecordSignal(s.Pair, string(s.Kind), s.NetProfitRelative.InexactFloat64())
	}
	return outcome, signals
}

func decimalRef(d decimal.Decimal) *decimal.Decimal {
	return &d
}

func (l *Loop) eligible(q model.Quote) bool {
	return l.cfg.Filter.IsEligible(q.Route)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case quote.IsPermanent(err):
		return "permanent"
	default:
		return "transient"
	}
}
