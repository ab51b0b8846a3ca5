package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arbScope/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS opportunity_signals (
	event_id UUID PRIMARY KEY,
	id UUID NOT NULL,
	kind TEXT NOT NULL,
	pair TEXT NOT NULL,
	pair_key TEXT NOT NULL,
	sell_source TEXT NOT NULL,
	sell_route TEXT NOT NULL,
	buy_source TEXT NOT NULL,
	buy_route TEXT NOT NULL,
	sell_price NUMERIC NOT NULL,
	buy_price NUMERIC NOT NULL,
	spread NUMERIC NOT NULL,
	gross_profit NUMERIC NOT NULL,
	net_profit NUMERIC NOT NULL,
	net_profit_relative NUMERIC NOT NULL,
	deduction NUMERIC NOT NULL,
	detected_at TIMESTAMPTZ NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS opportunity_signals_pair_detected_idx ON opportunity_signals (pair_key, detected_at);
CREATE INDEX IF NOT EXISTS opportunity_signals_id_idx ON opportunity_signals (id);
CREATE TABLE IF NOT EXISTS poll_cycles (
	started_at TIMESTAMPTZ PRIMARY KEY,
	cycle BIGINT NOT NULL,
	elapsed_ms BIGINT NOT NULL,
	pairs_total INT NOT NULL,
	pairs_queried INT NOT NULL,
	pairs_failed INT NOT NULL,
	signals INT NOT NULL,
	partial BOOLEAN NOT NULL,
	pairs JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const insertSignal = `
	INSERT INTO opportunity_signals (
		event_id, id, kind, pair, pair_key, sell_source, sell_route, buy_source, buy_route,
		sell_price, buy_price, spread, gross_profit, net_profit, net_profit_relative,
		deduction, detected_at, payload
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	ON CONFLICT (event_id) DO NOTHING
`

const insertCycle = `
	INSERT INTO poll_cycles (
		started_at, cycle, elapsed_ms, pairs_total, pairs_queried, pairs_failed, signals, partial, pairs
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	ON CONFLICT (started_at) DO NOTHING
`

// Store persists emitted signals and cycle health to Postgres. Each detection
// is its own row keyed by event_id; id groups detections of one opportunity.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Name() string { return "postgres" }

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Report inserts the cycle's signals and health row in one batch.
func (s *Store) Report(ctx context.Context, report model.CycleReport) error {
	batch, err := buildBatch(report)
	if err != nil {
		return err
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("exec batch item %d: %w", i, err)
		}
	}
	return nil
}

func buildBatch(report model.CycleReport) (*pgx.Batch, error) {
	batch := &pgx.Batch{}
	for _, sig := range report.Signals {
		args, err := signalArgs(sig)
		if err != nil {
			return nil, err
		}
		batch.Queue(insertSignal, args...)
	}
	args, err := cycleArgs(report.Health)
	if err != nil {
		return nil, err
	}
	batch.Queue(insertCycle, args...)
	return batch, nil
}

func signalArgs(sig model.OpportunitySignal) ([]any, error) {
	payload, err := json.Marshal(sig)
	if err != nil {
		return nil, fmt.Errorf("marshal signal %s: %w", sig.ID, err)
	}
	return []any{
		sig.EventID,
		sig.ID,
		string(sig.Kind),
		sig.Pair,
		sig.PairKey,
		sig.SellLeg.Source(),
		sig.SellLeg.RouteString(),
		sig.BuyLeg.Source(),
		sig.BuyLeg.RouteString(),
		sig.SellPrice.String(),
		sig.BuyPrice.String(),
		sig.Spread.String(),
		sig.GrossProfit.String(),
		sig.NetProfit.String(),
		sig.NetProfitRelative.String(),
		sig.Deduction.String(),
		sig.DetectedAt,
		payload,
	}, nil
}

func cycleArgs(h model.PollCycleHealth) ([]any, error) {
	pairs, err := json.Marshal(h.Pairs)
	if err != nil {
		return nil, fmt.Errorf("marshal pair outcomes: %w", err)
	}
	return []any{
		h.StartedAt,
		int64(h.Cycle),
		h.Elapsed.Milliseconds(),
		h.PairsTotal,
		h.PairsQueried,
		h.PairsFailed,
		h.Signals,
		h.Partial,
		pairs,
	}, nil
}
