// Package monitor drives the poll loop: snapshot the registry, fetch quotes,
// evaluate them and hand one report per cycle to the sink.
package monitor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"arbScope/internal/model"
	"arbScope/internal/observability"
	"arbScope/internal/quote"
	"arbScope/internal/registry"
	"arbScope/internal/storage"
	"arbScope/internal/venue"
)

const defaultSinkTimeout = 10 * time.Second

// Evaluator turns one pair's quotes into at most one signal, reporting the
// observed spread either way.
type Evaluator interface {
	Assess(pair model.TokenPair, amountIn *big.Int, quotes []model.Quote, now time.Time) (model.Assessment, error)
	AssessRoundTrip(pair model.TokenPair, forward, reverse model.Quote, now time.Time) (model.Assessment, error)
}

// Config holds loop settings.
type Config struct {
	Interval       time.Duration
	Filter         venue.Filter
	MaxConcurrency int
	RoundTrip      bool
	ShutdownGrace  time.Duration
	SinkTimeout    time.Duration
}

// Loop runs poll cycles one after another until cancelled.
type Loop struct {
	cfg      Config
	registry *registry.Registry
	source   quote.Source
	eval     Evaluator
	sink     storage.Sink
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
	cycle    uint64
}

// New builds a Loop with its dependencies. metrics and logger may be nil.
func New(cfg Config, reg *registry.Registry, source quote.Source, eval Evaluator, sink storage.Sink, metrics *observability.Metrics, logger *zap.Logger) (*Loop, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("poll interval must be greater than zero")
	}
	if cfg.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("max concurrency must be greater than zero")
	}
	if cfg.ShutdownGrace < 0 {
		return nil, fmt.Errorf("shutdown grace must not be negative")
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if reg == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	if source == nil {
		return nil, fmt.Errorf("quote source is nil")
	}
	if eval == nil {
		return nil, fmt.Errorf("evaluator is nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		cfg:      cfg,
		registry: reg,
		source:   source,
		eval:     eval,
		sink:     sink,
		metrics:  metrics,
		logger:   logger.With(zap.String("component", "monitor")),
		now:      time.Now,
	}, nil
}

// Run executes cycles until ctx is cancelled. The next cycle starts one
// interval after the previous one started, or immediately if it overran.
// Cancellation is a clean stop and returns nil.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("poll loop started",
		zap.Duration("interval", l.cfg.Interval),
		zap.Stringer("venues", l.cfg.Filter),
		zap.Int("max_concurrency", l.cfg.MaxConcurrency),
		zap.Bool("round_trip", l.cfg.RoundTrip),
	)

	for {
		start := l.now()
		report := l.collect(ctx)
		if err := l.emit(ctx, report); err != nil {
			l.logger.Error("report cycle", zap.Uint64("cycle", report.Health.Cycle), zap.Error(err))
		}
		if ctx.Err() != nil {
			l.logger.Info("poll loop stopped", zap.Uint64("cycles", l.cycle), zap.Bool("partial", report.Health.Partial))
			return nil
		}

		wait := l.cfg.Interval - l.now().Sub(start)
		if wait <= 0 {
			l.logger.Warn("cycle overran interval, starting next immediately",
				zap.Uint64("cycle", report.Health.Cycle),
				zap.Duration("elapsed", report.Health.Elapsed),
			)
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.logger.Info("poll loop stopped", zap.Uint64("cycles", l.cycle))
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle executes a single cycle, reports it and returns the report.
func (l *Loop) RunCycle(ctx context.Context) (model.CycleReport, error) {
	report := l.collect(ctx)
	if err := l.emit(ctx, report); err != nil {
		return report, fmt.Errorf("report cycle %d: %w", report.Health.Cycle, err)
	}
	return report, nil
}

// emit delivers the report even when ctx is already cancelled, bounded by SinkTimeout.
func (l *Loop) emit(ctx context.Context, report model.CycleReport) error {
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.SinkTimeout)
	defer cancel()
	return l.sink.Report(sinkCtx, report)
}
