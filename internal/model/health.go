package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PairStatus is the per-cycle outcome of one pair.
type PairStatus string

const (
	PairOK        PairStatus = "ok"
	PairDegraded  PairStatus = "degraded"
	PairSkipped   PairStatus = "skipped"
	PairTransient PairStatus = "transient"
	PairPermanent PairStatus = "permanent"
)

// Queried reports whether at least one quote was obtained for the pair.
func (s PairStatus) Queried() bool {
	switch s {
	case PairOK, PairDegraded, PairSkipped:
		return true
	default:
		return false
	}
}

// PairOutcome summarises one pair inside a cycle. Spread and NetProfit hold
// the widest cross-venue spread observed even when it stayed below the
// threshold; the RoundTrip fields do the same for the round trip. They are
// nil when nothing could be compared.
type PairOutcome struct {
	Pair            string           `json:"pair"`
	Status          PairStatus       `json:"status"`
	Quotes          int              `json:"quotes"`
	Dropped         int              `json:"dropped,omitempty"`
	Signals         int              `json:"signals"`
	Spread          *decimal.Decimal `json:"spread,omitempty"`
	NetProfit       *decimal.Decimal `json:"net_profit_relative,omitempty"`
	RoundTripSpread *decimal.Decimal `json:"round_trip_spread,omitempty"`
	RoundTripNet    *decimal.Decimal `json:"round_trip_net_relative,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// PollCycleHealth is emitted once per cycle regardless of pair outcomes.
type PollCycleHealth struct {
	Cycle         uint64        `json:"cycle"`
	StartedAt     time.Time     `json:"started_at"`
	Elapsed       time.Duration `json:"elapsed"`
	PairsTotal    int           `json:"pairs_total"`
	PairsQueried  int           `json:"pairs_queried"`
	PairsFailed   int           `json:"pairs_failed"`
	PairsDegraded int           `json:"pairs_degraded"`
	PairsSkipped  int           `json:"pairs_skipped"`
	Signals       int           `json:"signals"`
	Unhealthy     []string      `json:"unhealthy,omitempty"`
	Partial       bool          `json:"partial"`
	Pairs         []PairOutcome `json:"pairs"`
}

// CycleReport is the batch handed to reporting sinks at the end of a cycle.
type CycleReport struct {
	Signals []OpportunitySignal `json:"signals"`
	Health  PollCycleHealth     `json:"health"`
}
