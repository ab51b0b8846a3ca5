package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"arbScope/internal/monitor"
)

func runScan(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sink, err := buildSink(ctx, a)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			a.logger.Warn("close sinks", zap.Error(err))
		}
	}()

	loop, err := monitor.New(monitor.Config{
		Interval:       a.cfg.PollInterval,
		Filter:         a.filter,
		MaxConcurrency: a.cfg.MaxConcurrency,
		RoundTrip:      a.cfg.RoundTrip,
		ShutdownGrace:  a.cfg.ShutdownGrace,
	}, a.registry, a.source, a.eval, sink, a.metrics, a.logger)
	if err != nil {
		return err
	}

	report, reportErr := loop.RunCycle(ctx)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	return reportErr
}
