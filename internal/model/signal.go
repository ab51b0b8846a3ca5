package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalKind distinguishes how an opportunity was found.
type SignalKind string

const (
	// SignalCrossVenue compares same-direction quotes fetched under different venue restrictions.
	SignalCrossVenue SignalKind = "cross_venue"
	// SignalRoundTrip sells base for quote and buys it back through the reverse route.
	SignalRoundTrip SignalKind = "round_trip"
)

// OpportunitySignal is an evaluated opportunity whose net profit cleared the threshold.
//
// ID is derived from the quotes alone, so a persisting opportunity keeps its ID
// across cycles. EventID also covers DetectedAt and is unique per detection.
// SellLeg is the quote where base is sold (highest output, or the forward leg of a
// round trip); BuyLeg is where base is bought back.
type OpportunitySignal struct {
	ID                string          `json:"id"`
	EventID           string          `json:"event_id"`
	Kind              SignalKind      `json:"kind"`
	Pair              string          `json:"pair"`
	PairKey           string          `json:"pair_key"`
	SellLeg           Quote           `json:"sell_leg"`
	BuyLeg            Quote           `json:"buy_leg"`
	SellPrice         decimal.Decimal `json:"sell_price"`
	BuyPrice          decimal.Decimal `json:"buy_price"`
	Spread            decimal.Decimal `json:"spread"`
	GrossProfit       decimal.Decimal `json:"gross_profit"`
	NetProfit         decimal.Decimal `json:"net_profit"`
	NetProfitRelative decimal.Decimal `json:"net_profit_relative"`
	Deduction         decimal.Decimal `json:"deduction"`
	Venues            []Venue         `json:"venues"`
	DetectedAt        time.Time       `json:"detected_at"`
}

// Assessment is the evaluator's view of one quote set: the widest spread it
// found and the net after deduction, whether or not that cleared the threshold.
// Signal is set only when it did.
type Assessment struct {
	Spread            decimal.Decimal
	NetProfitRelative decimal.Decimal
	Dropped           int
	Signal            *OpportunitySignal
}
