// Package redis publishes cycle reports through go-redis/v9: each signal on a
// Pub/Sub channel and each cycle health record on a capped stream.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"arbScope/internal/model"
)

// streamMaxLen caps the health stream via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// Config holds connection and naming parameters.
type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Stream   string
}

// Publisher implements storage.Sink on Redis.
type Publisher struct {
	rdb     redis.UniversalClient
	channel string
	stream  string
}

// New connects to Redis and pings it.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return NewWithClient(rdb, cfg.Channel, cfg.Stream), nil
}

// NewWithClient wraps an existing client. An empty channel or stream disables that output.
func NewWithClient(rdb redis.UniversalClient, channel, stream string) *Publisher {
	return &Publisher{rdb: rdb, channel: channel, stream: stream}
}

func (p *Publisher) Name() string { return "redis" }

// Report implements storage.Sink.
func (p *Publisher) Report(ctx context.Context, report model.CycleReport) error {
	if p.channel != "" {
		for _, sig := range report.Signals {
			payload, err := json.Marshal(sig)
			if err != nil {
				return fmt.Errorf("redis: marshal signal: %w", err)
			}
			if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
				return fmt.Errorf("redis: publish %s: %w", p.channel, err)
			}
		}
	}

	if p.stream != "" {
		payload, err := json.Marshal(report.Health)
		if err != nil {
			return fmt.Errorf("redis: marshal health: %w", err)
		}
		args := &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"cycle":   report.Health.Cycle,
				"signals": report.Health.Signals,
				"payload": payload,
			},
		}
		if err := p.rdb.XAdd(ctx, args).Err(); err != nil {
			return fmt.Errorf("redis: stream append %s: %w", p.stream, err)
		}
	}
	return nil
}

// Close closes the client.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
