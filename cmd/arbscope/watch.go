package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"arbScope/internal/config"
	"arbScope/internal/monitor"
)

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	sink, err := buildSink(ctx, a)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("close sinks", zap.Error(err))
		}
	}()

	loop, err := monitor.New(monitor.Config{
		Interval:       a.cfg.PollInterval,
		Filter:         a.filter,
		MaxConcurrency: a.cfg.MaxConcurrency,
		RoundTrip:      a.cfg.RoundTrip,
		ShutdownGrace:  a.cfg.ShutdownGrace,
	}, a.registry, a.source, a.eval, sink, a.metrics, logger)
	if err != nil {
		return err
	}

	if a.cfg.MetricsAddr != "" {
		go func() {
			if err := a.metrics.Serve(ctx, a.cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
	}

	if a.cfg.Reload {
		if a.loader.Watch(logger, func(next config.Config) { a.syncPairs(ctx, next) }) {
			logger.Info("watching config", zap.String("file", a.loader.File()))
		}
	}

	logger.Info("arbscope start",
		zap.Int("pairs", a.registry.Len()),
		zap.Stringer("venues", a.filter),
		zap.Duration("poll_interval", a.cfg.PollInterval),
		zap.String("profit_threshold", a.cfg.ProfitThreshold.String()),
		zap.String("fee_slippage_deduction", a.cfg.FeeSlippageDeduction.String()),
		zap.String("aggregator", a.cfg.AggregatorURL),
	)

	return loop.Run(ctx)
}
