package quote

import (
	"context"
	"math/big"
	"time"

	"go.uber.org/zap"

	"arbScope/internal/model"
	"arbScope/internal/venue"
)

// RetryingSource retries transient fetch failures with exponential backoff.
type RetryingSource struct {
	next       Source
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

// Retrying decorates next with retries of transient errors. Permanent errors
// and context cancellation return immediately.
func Retrying(next Source, maxRetries int, baseDelay time.Duration, logger *zap.Logger) *RetryingSource {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingSource{next: next, maxRetries: maxRetries, baseDelay: baseDelay, logger: logger}
}

// FetchQuote implements Source.
func (r *RetryingSource) FetchQuote(ctx context.Context, pair model.TokenPair, amountIn *big.Int, filter venue.Filter) (model.Quote, error) {
	var q model.Quote
	err := withRetry(ctx, r.maxRetries, r.baseDelay, func(ctx context.Context) error {
		var err error
		q, err = r.next.FetchQuote(ctx, pair, amountIn, filter)
		if err != nil && IsTransient(err) {
			r.logger.Warn("quote fetch failed", zap.Error(err), zap.String("pair", pair.Label()), zap.Stringer("venues", filter))
		}
		return err
	})
	return q, err
}

func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || !IsTransient(err) || ctx.Err() != nil {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}

		delay *= 2
	}
}
