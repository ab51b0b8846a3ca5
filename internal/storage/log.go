package storage

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"arbScope/internal/model"
)

// LogSink writes signals and cycle health as structured log entries.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.With(zap.String("component", "sink"))}
}

func (s *LogSink) Name() string { return "log" }

// Report implements Sink.
func (s *LogSink) Report(_ context.Context, report model.CycleReport) error {
	for _, sig := range report.Signals {
		s.logger.Info("opportunity",
			zap.String("id", sig.ID),
			zap.String("event_id", sig.EventID),
			zap.String("kind", string(sig.Kind)),
			zap.String("pair", sig.Pair),
			zap.String("sell_via", sig.SellLeg.Source()),
			zap.String("sell_route", sig.SellLeg.RouteString()),
			zap.String("buy_via", sig.BuyLeg.Source()),
			zap.String("buy_route", sig.BuyLeg.RouteString()),
			zap.String("sell_price", sig.SellPrice.String()),
			zap.String("buy_price", sig.BuyPrice.String()),
			zap.String("spread", sig.Spread.StringFixed(6)),
			zap.String("net_profit_rel", sig.NetProfitRelative.StringFixed(6)),
			zap.String("net_profit", sig.NetProfit.StringFixed(6)),
		)
	}

	h := report.Health
	for _, p := range h.Pairs {
		if p.Spread == nil && p.RoundTripSpread == nil {
			continue
		}
		fields := []zap.Field{zap.String("pair", p.Pair), zap.String("status", string(p.Status))}
		if p.Spread != nil {
			fields = append(fields, zap.String("spread", p.Spread.StringFixed(6)))
		}
		if p.NetProfit != nil {
			fields = append(fields, zap.String("net_profit_rel", p.NetProfit.StringFixed(6)))
		}
		if p.RoundTripSpread != nil {
			fields = append(fields, zap.String("round_trip_spread", p.RoundTripSpread.StringFixed(6)))
		}
		if p.RoundTripNet != nil {
			fields = append(fields, zap.String("round_trip_net_rel", p.RoundTripNet.StringFixed(6)))
		}
		s.logger.Info("pair spread", fields...)
	}

	fields := []zap.Field{
		zap.Uint64("cycle", h.Cycle),
		zap.Duration("elapsed", h.Elapsed),
		zap.Int("pairs", h.PairsTotal),
		zap.Int("queried", h.PairsQueried),
		zap.Int("failed", h.PairsFailed),
		zap.Int("degraded", h.PairsDegraded),
		zap.Int("skipped", h.PairsSkipped),
		zap.Int("signals", h.Signals),
		zap.Bool("partial", h.Partial),
	}
	if len(h.Unhealthy) > 0 {
		fields = append(fields, zap.String("unhealthy", strings.Join(h.Unhealthy, ",")))
	}
	if h.PairsFailed > 0 || h.Partial {
		s.logger.Warn("cycle complete", fields...)
	} else {
		s.logger.Info("cycle complete", fields...)
	}
	return nil
}

// Close implements Sink.
func (s *LogSink) Close() error {
	_ = s.logger.Sync()
	return nil
}
