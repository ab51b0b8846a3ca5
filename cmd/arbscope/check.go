package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"arbScope/internal/evaluator"
	"arbScope/internal/model"
	"arbScope/internal/quote"
	"arbScope/internal/venue"
)

// tradability is the outcome of probing one pair in both directions.
type tradability struct {
	Pair     model.TokenPair
	Forward  *model.Quote
	Reverse  *model.Quote
	Reason   string
	Tradable bool
}

func runCheck(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	pairs := a.registry.Snapshot()
	a.logger.Info("check start", zap.Int("pairs", len(pairs)), zap.Stringer("venues", a.filter))

	out := cmd.OutOrStdout()
	failed := 0
	for _, pair := range pairs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res := checkPair(ctx, a.source, a.filter, pair)
		printTradability(out, res)
		if !res.Tradable {
			failed++
		}
	}

	fmt.Fprintf(out, "\n%d/%d pairs tradable under venues %s\n", len(pairs)-failed, len(pairs), a.filter)
	if failed > 0 {
		return fmt.Errorf("%d pairs not tradable", failed)
	}
	return nil
}

// checkPair quotes base->quote and then sells the proceeds back quote->base.
func checkPair(ctx context.Context, source quote.Source, filter venue.Filter, pair model.TokenPair) tradability {
	res := tradability{Pair: pair}

	fwd, err := source.FetchQuote(ctx, pair, pair.RawInputAmount(), filter)
	if err != nil {
		res.Reason = "forward: " + err.Error()
		return res
	}
	if !filter.IsEligible(fwd.Route) {
		res.Reason = "forward route leaves the allowed venues"
		return res
	}
	res.Forward = &fwd

	rev, err := source.FetchQuote(ctx, pair.Reverse(), fwd.AmountOut, filter)
	if err != nil {
		res.Reason = "reverse: " + err.Error()
		return res
	}
	if !filter.IsEligible(rev.Route) {
		res.Reason = "reverse route leaves the allowed venues"
		return res
	}
	res.Reverse = &rev
	res.Tradable = true
	return res
}

func printTradability(w io.Writer, res tradability) {
	pair := res.Pair
	if !res.Tradable {
		fmt.Fprintf(w, "%-20s NOT TRADABLE  %s\n", pair.Label(), res.Reason)
		return
	}
	fmt.Fprintf(w, "%-20s TRADABLE  %s %s -> %s (%s)  |  back -> %s (%s)\n",
		pair.Label(),
		evaluator.FormatAmount(res.Forward.AmountIn, pair.Base.Decimals),
		pair.Base.Address,
		evaluator.FormatAmount(res.Forward.AmountOut, pair.Quote.Decimals),
		res.Forward.RouteString(),
		evaluator.FormatAmount(res.Reverse.AmountOut, pair.Base.Decimals),
		res.Reverse.RouteString(),
	)
}
