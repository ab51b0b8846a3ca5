package model

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"
)

// Venue is a DEX integration label known to the aggregator (e.g. "Raydium").
type Venue string

// Quote is a priced estimate of swapping AmountIn of InputMint for AmountOut of OutputMint.
type Quote struct {
	Pair           string    `json:"pair"`
	InputMint      string    `json:"input_mint"`
	OutputMint     string    `json:"output_mint"`
	AmountIn       *big.Int  `json:"amount_in"`
	AmountOut      *big.Int  `json:"amount_out"`
	Route          []Venue   `json:"route"`
	Restriction    []Venue   `json:"restriction,omitempty"`
	PriceImpactPct string    `json:"price_impact_pct,omitempty"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// Validate checks amounts are present and non-negative and the route is non-empty.
func (q Quote) Validate() error {
	if q.AmountIn == nil || q.AmountOut == nil {
		return fmt.Errorf("quote amounts missing")
	}
	if q.AmountIn.Sign() < 0 || q.AmountOut.Sign() < 0 {
		return fmt.Errorf("quote amounts must be non-negative")
	}
	if len(q.Route) == 0 {
		return fmt.Errorf("quote route is empty")
	}
	return nil
}

// Restricted reports whether the quote was fetched under a venue allow-list.
func (q Quote) Restricted() bool {
	return len(q.Restriction) > 0
}

// RouteKey is the sorted set of venues on the route.
func (q Quote) RouteKey() string {
	return venueSetKey(q.Route)
}

// Source names the restriction the quote was fetched under.
func (q Quote) Source() string {
	if !q.Restricted() {
		return "best"
	}
	return joinVenues(q.Restriction, "+")
}

// RouteString renders the route hops in order.
func (q Quote) RouteString() string {
	return joinVenues(q.Route, " -> ")
}

func venueSetKey(venues []Venue) string {
	seen := make(map[string]struct{}, len(venues))
	keys := make([]string, 0, len(venues))
	for _, v := range venues {
		k := strings.ToLower(strings.TrimSpace(string(v)))
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func joinVenues(venues []Venue, sep string) string {
	parts := make([]string, 0, len(venues))
	for _, v := range venues {
		parts = append(parts, string(v))
	}
	return strings.Join(parts, sep)
}
