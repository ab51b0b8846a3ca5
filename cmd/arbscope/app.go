package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"arbScope/internal/chain"
	"arbScope/internal/config"
	"arbScope/internal/evaluator"
	"arbScope/internal/observability"
	"arbScope/internal/quote"
	"arbScope/internal/registry"
	"arbScope/internal/tokenmeta"
	"arbScope/internal/venue"
)

// app holds the components shared by every command.
type app struct {
	cfg      config.Config
	loader   *config.Loader
	logger   *zap.Logger
	metrics  *observability.Metrics
	registry *registry.Registry
	resolver *tokenmeta.Resolver
	source   quote.Source
	eval     *evaluator.Evaluator
	filter   venue.Filter
	chain    *chain.Client
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	loader, err := config.NewLoader(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	cfg, err := loader.Config()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		loader:   loader,
		logger:   logger,
		metrics:  observability.NewMetrics("arbscope"),
		registry: registry.New(),
		filter:   venue.FromStrings(cfg.Venues),
	}

	var caller tokenmeta.Caller
	if cfg.RPCURL != "" {
		a.chain, err = chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect rpc: %w", err)
		}
		caller = a.chain
		if id, err := a.chain.ChainID(ctx); err != nil {
			logger.Warn("rpc chain id", zap.Error(err))
		} else {
			logger.Info("rpc connected", zap.String("chain_id", id.String()))
		}
	}
	a.resolver = tokenmeta.NewResolver(caller, logger)

	pairs, err := config.ResolvePairs(ctx, cfg.Pairs, a.resolver)
	if err != nil {
		a.Close()
		return nil, err
	}
	for _, pair := range pairs {
		if err := a.registry.Register(pair); err != nil {
			a.Close()
			return nil, fmt.Errorf("register %s: %w", pair.Label(), err)
		}
	}

	a.eval, err = evaluator.New(evaluator.Config{
		ProfitThreshold:      cfg.ProfitThreshold,
		FeeSlippageDeduction: cfg.FeeSlippageDeduction,
		MaxPriceDeviation:    cfg.MaxPriceDeviation,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	jupiter := quote.NewJupiterSource(quote.JupiterConfig{
		BaseURL:     cfg.AggregatorURL,
		APIKey:      cfg.AggregatorAPIKey,
		SlippageBps: cfg.SlippageBps,
		Timeout:     cfg.FetchTimeout,
	})
	a.source = quote.Retrying(jupiter, cfg.MaxRetries, cfg.RetryBackoff, logger)

	return a, nil
}

// syncPairs applies a reloaded config's pairs to the registry.
func (a *app) syncPairs(ctx context.Context, next config.Config) {
	pairs, err := config.ResolvePairs(ctx, next.Pairs, a.resolver)
	if err != nil {
		a.logger.Warn("pair reload rejected", zap.Error(err))
		return
	}
	res, err := a.registry.Sync(pairs)
	if err != nil {
		a.logger.Warn("pair reload incomplete", zap.Error(err))
	}
	if res.Changed() {
		a.logger.Info("pairs synced",
			zap.Strings("added", res.Added),
			zap.Strings("removed", res.Removed),
			zap.Int("watched", a.registry.Len()),
		)
	}
}

func (a *app) Close() {
	if a.chain != nil {
		a.chain.Close()
	}
	_ = a.logger.Sync()
}
