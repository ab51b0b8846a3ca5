package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Token identifies an on-chain token and its decimal precision.
type Token struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
}

// TokenPair is a base/quote market watched by the monitor.
type TokenPair struct {
	Name        string          `json:"name"`
	Base        Token           `json:"base"`
	Quote       Token           `json:"quote"`
	InputAmount decimal.Decimal `json:"input_amount"`
}

// Key identifies the pair regardless of token order, so (A,B) and (B,A) collide.
func (p TokenPair) Key() string {
	a, b := p.Base.Address, p.Quote.Address
	if b < a {
		a, b = b, a
	}
	return a + "/" + b
}

// Label is the display name, falling back to the key when no name is set.
func (p TokenPair) Label() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Key()
}

// Reverse swaps base and quote. The notional is left in base units and
// must be replaced by the caller when quoting the reverse leg.
func (p TokenPair) Reverse() TokenPair {
	return TokenPair{
		Name:        p.Name,
		Base:        p.Quote,
		Quote:       p.Base,
		InputAmount: p.InputAmount,
	}
}

// RawInputAmount converts the notional into base-token smallest units.
func (p TokenPair) RawInputAmount() *big.Int {
	return p.InputAmount.Shift(int32(p.Base.Decimals)).Truncate(0).BigInt()
}
