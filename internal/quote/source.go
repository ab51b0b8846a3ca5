package quote

import (
	"context"
	"math/big"

	"arbScope/internal/model"
	"arbScope/internal/venue"
)

// Source produces quotes for swapping amountIn of pair.Base into pair.Quote,
// routed only through venues the filter allows.
type Source interface {
	FetchQuote(ctx context.Context, pair model.TokenPair, amountIn *big.Int, filter venue.Filter) (model.Quote, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, pair model.TokenPair, amountIn *big.Int, filter venue.Filter) (model.Quote, error)

// FetchQuote calls f.
func (f SourceFunc) FetchQuote(ctx context.Context, pair model.TokenPair, amountIn *big.Int, filter venue.Filter) (model.Quote, error) {
	return f(ctx, pair, amountIn, filter)
}
