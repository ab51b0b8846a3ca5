// Package evaluator decides whether a set of quotes for one pair is an
// arbitrage opportunity. It keeps no state between calls.
package evaluator

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"arbScope/internal/model"
)

// signalNamespace seeds deterministic signal IDs.
var signalNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("arbscope.opportunity"))

// Config holds the decision parameters.
type Config struct {
	ProfitThreshold      decimal.Decimal
	FeeSlippageDeduction decimal.Decimal
	// MaxPriceDeviation drops quotes whose price is further than this fraction
	// from the median price of the set. Zero disables the guard.
	MaxPriceDeviation decimal.Decimal
}

// Validate checks threshold > 0, 0 <= deduction < 1 and deviation >= 0.
func (c Config) Validate() error {
	if !c.ProfitThreshold.IsPositive() {
		return fmt.Errorf("profit threshold must be greater than zero")
	}
	if c.FeeSlippageDeduction.IsNegative() {
		return fmt.Errorf("fee/slippage deduction must not be negative")
	}
	if c.FeeSlippageDeduction.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("fee/slippage deduction must be below 1")
	}
	if c.MaxPriceDeviation.IsNegative() {
		return fmt.Errorf("max price deviation must not be negative")
	}
	return nil
}

// Evaluator applies Config to quote sets.
type Evaluator struct {
	cfg Config
}

// New validates cfg and returns an Evaluator.
func New(cfg Config) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{cfg: cfg}, nil
}

// Config returns the evaluator's parameters.
func (e *Evaluator) Config() Config {
	return e.cfg
}

type pricedQuote struct {
	quote model.Quote
	price decimal.Decimal
	index int
}

type candidate struct {
	high, low pricedQuote
	spread    decimal.Decimal
}

// Evaluate compares same-direction quotes for pair fetched at notional
// amountIn (raw base units). It returns a signal when the widest distinct
// spread, net of the deduction, clears the threshold, nil when it does not,
// and model.ErrEvaluationSkipped when fewer than two comparable quotes exist.
func (e *Evaluator) Evaluate(pair model.TokenPair, amountIn *big.Int, quotes []model.Quote, now time.Time) (*model.OpportunitySignal, error) {
	a, err := e.Assess(pair, amountIn, quotes, now)
	return a.Signal, err
}

// Assess is Evaluate but also reports the widest spread and its net when no
// signal is emitted.
func (e *Evaluator) Assess(pair model.TokenPair, amountIn *big.Int, quotes []model.Quote, now time.Time) (model.Assessment, error) {
	priced := make([]pricedQuote, 0, len(quotes))
	for i, q := range quotes {
		if q.Validate() != nil {
			continue
		}
		price, err := EffectivePrice(q, pair.Base.Decimals, pair.Quote.Decimals)
		if err != nil {
			continue
		}
		priced = append(priced, pricedQuote{quote: q, price: price, index: i})
	}

	var a model.Assessment
	priced, a.Dropped = e.dropOutliers(priced)
	if len(priced) < 2 {
		return a, model.ErrEvaluationSkipped
	}

	var candidates []candidate
	for i := 0; i < len(priced); i++ {
		for j := i + 1; j < len(priced); j++ {
			hi, lo := priced[i], priced[j]
			if !distinct(hi.quote, lo.quote) {
				continue
			}
			if lo.price.GreaterThan(hi.price) {
				hi, lo = lo, hi
			}
			if !lo.price.IsPositive() {
				continue
			}
			spread := hi.price.Sub(lo.price).DivRound(lo.price, priceScale)
			candidates = append(candidates, candidate{high: hi, low: lo, spread: spread})
		}
	}
	if len(candidates) == 0 {
		return a, model.ErrEvaluationSkipped
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].spread.GreaterThan(candidates[j].spread)
	})
	best := candidates[0]
	net := best.spread.Sub(e.cfg.FeeSlippageDeduction)
	a.Spread, a.NetProfitRelative = best.spread, net
	if best.spread.IsZero() || net.LessThan(e.cfg.ProfitThreshold) {
		return a, nil
	}

	notional := pair.InputAmount
	if amountIn != nil && amountIn.Sign() > 0 {
		notional = ToDecimal(amountIn, pair.Base.Decimals)
	}
	gross := best.high.price.Sub(best.low.price).Mul(notional)
	netAbs := net.Mul(best.low.price).Mul(notional)

	a.Signal = e.signal(model.SignalCrossVenue, pair, best.high.quote, best.low.quote, best.high.price, best.low.price, best.spread, gross, netAbs, net, now)
	return a, nil
}

// dropOutliers removes quotes priced more than MaxPriceDeviation away from
// the median. Order of the kept quotes is preserved.
func (e *Evaluator) dropOutliers(priced []pricedQuote) ([]pricedQuote, int) {
	if !e.cfg.MaxPriceDeviation.IsPositive() || len(priced) < 2 {
		return priced, 0
	}
	median := medianPrice(priced)
	if !median.IsPositive() {
		return priced, 0
	}
	kept := priced[:0:0]
	for _, p := range priced {
		deviation := p.price.Sub(median).Abs().DivRound(median, priceScale)
		if deviation.GreaterThan(e.cfg.MaxPriceDeviation) {
			continue
		}
		kept = append(kept, p)
	}
	return kept, len(priced) - len(kept)
}

func medianPrice(priced []pricedQuote) decimal.Decimal {
	prices := make([]decimal.Decimal, len(priced))
	for i, p := range priced {
		prices[i] = p.price
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })
	mid := len(prices) / 2
	if len(prices)%2 == 1 {
		return prices[mid]
	}
	return prices[mid-1].Add(prices[mid]).Div(decimal.NewFromInt(2))
}

// EvaluateRoundTrip checks selling base through forward and buying it back
// through reverse, where reverse was quoted with forward's output as input.
func (e *Evaluator) EvaluateRoundTrip(pair model.TokenPair, forward, reverse model.Quote, now time.Time) (*model.OpportunitySignal, error) {
	a, err := e.AssessRoundTrip(pair, forward, reverse, now)
	return a.Signal, err
}

// AssessRoundTrip is EvaluateRoundTrip but also reports the round-trip
// spread when it stays below the threshold.
func (e *Evaluator) AssessRoundTrip(pair model.TokenPair, forward, reverse model.Quote, now time.Time) (model.Assessment, error) {
	var a model.Assessment
	if forward.Validate() != nil || reverse.Validate() != nil || forward.AmountIn.Sign() <= 0 || reverse.AmountIn.Sign() <= 0 {
		return a, model.ErrEvaluationSkipped
	}

	sellPrice, err := EffectivePrice(forward, pair.Base.Decimals, pair.Quote.Decimals)
	if err != nil {
		return a, model.ErrEvaluationSkipped
	}
	// Quote paid per base received on the way back.
	var buyPrice decimal.Decimal
	if reverse.AmountOut.Sign() > 0 {
		buyPrice = ToDecimal(reverse.AmountIn, pair.Quote.Decimals).DivRound(ToDecimal(reverse.AmountOut, pair.Base.Decimals), priceScale)
	}

	forwardIn := decimal.NewFromBigInt(forward.AmountIn, 0)
	gain := decimal.NewFromBigInt(reverse.AmountOut, 0).Sub(forwardIn)
	spread := gain.DivRound(forwardIn, priceScale)
	net := spread.Sub(e.cfg.FeeSlippageDeduction)
	a.Spread, a.NetProfitRelative = spread, net
	if !spread.IsPositive() || net.LessThan(e.cfg.ProfitThreshold) {
		return a, nil
	}

	gross := ToDecimal(gain.BigInt(), pair.Base.Decimals).Mul(sellPrice)
	netAbs := net.Mul(ToDecimal(forward.AmountIn, pair.Base.Decimals)).Mul(sellPrice)

	a.Signal = e.signal(model.SignalRoundTrip, pair, forward, reverse, sellPrice, buyPrice, spread, gross, netAbs, net, now)
	return a, nil
}

func (e *Evaluator) signal(kind model.SignalKind, pair model.TokenPair, sell, buy model.Quote, sellPrice, buyPrice, spread, gross, netAbs, net decimal.Decimal, now time.Time) *model.OpportunitySignal {
	id := signalID(kind, pair, sell, buy)
	detectedAt := now.UTC()
	return &model.OpportunitySignal{
		ID:                id,
		EventID:           eventID(id, detectedAt),
		Kind:              kind,
		Pair:              pair.Label(),
		PairKey:           pair.Key(),
		SellLeg:           sell,
		BuyLeg:            buy,
		SellPrice:         sellPrice,
		BuyPrice:          buyPrice,
		Spread:            spread,
		GrossProfit:       gross,
		NetProfit:         netAbs,
		NetProfitRelative: net,
		Deduction:         e.cfg.FeeSlippageDeduction,
		Venues:            venuesOf(sell, buy),
		DetectedAt:        detectedAt,
	}
}

// distinct is true when the route venue sets differ or exactly one quote was
// fetched under a venue restriction.
func distinct(a, b model.Quote) bool {
	if a.RouteKey() != b.RouteKey() {
		return true
	}
	return a.Restricted() != b.Restricted()
}

func venuesOf(quotes ...model.Quote) []model.Venue {
	seen := make(map[string]struct{})
	var out []model.Venue
	for _, q := range quotes {
		for _, v := range q.Route {
			k := strings.ToLower(string(v))
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func signalID(kind model.SignalKind, pair model.TokenPair, sell, buy model.Quote) string {
	parts := []string{
		string(kind),
		pair.Key(),
		sell.RouteKey(), sell.Source(), amountString(sell.AmountIn), amountString(sell.AmountOut),
		buy.RouteKey(), buy.Source(), amountString(buy.AmountIn), amountString(buy.AmountOut),
	}
	return uuid.NewSHA1(signalNamespace, []byte(strings.Join(parts, "|"))).String()
}

// eventID keys one detection of signal id, so repeats in later cycles stay
// distinct records.
func eventID(id string, detectedAt time.Time) string {
	return uuid.NewSHA1(signalNamespace, []byte(id+"|"+detectedAt.Format(time.RFC3339Nano))).String()
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
