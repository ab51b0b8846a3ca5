package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"arbScope/internal/storage"
	"arbScope/internal/storage/postgres"
	redissink "arbScope/internal/storage/redis"
)

// buildSink assembles the configured sinks. The log sink is always on.
func buildSink(ctx context.Context, a *app) (storage.Sink, error) {
	cfg := a.cfg
	sinks := []storage.Sink{storage.NewLogSink(a.logger)}

	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJSONLSink(cfg.Out))
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, storage.NewWebhookSink(cfg.WebhookURL, nil))
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			closeAll(sinks)
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			closeAll(sinks)
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		sinks = append(sinks, store)
	}
	if cfg.RedisAddr != "" {
		pub, err := redissink.New(ctx, redissink.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Channel:  cfg.RedisChannel,
			Stream:   cfg.RedisStream,
		})
		if err != nil {
			closeAll(sinks)
			return nil, err
		}
		sinks = append(sinks, pub)
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, storage.NameOf(s))
	}
	a.logger.Info("sinks ready", zap.Strings("sinks", names), zap.Duration("dedup_ttl", cfg.DedupTTL))

	multi := storage.Multi(func(name string, err error) {
		a.metrics.RecordSinkError(name)
		a.logger.Warn("sink failed", zap.String("sink", name), zap.Error(err))
	}, sinks...)
	return storage.Dedup(multi, cfg.DedupTTL), nil
}

func closeAll(sinks []storage.Sink) {
	for _, s := range sinks {
		_ = s.Close()
	}
}
