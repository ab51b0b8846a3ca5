package evaluator

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"

	"arbScope/internal/model"
)

const priceScale = 18

// ToDecimal scales a raw token amount by its decimals.
func ToDecimal(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// FormatAmount renders a raw amount in human units.
func FormatAmount(raw *big.Int, decimals uint8) string {
	return ToDecimal(raw, decimals).String()
}

// EffectivePrice is output per unit of input, both scaled to human units, so
// quotes with different raw scales compare directly.
func EffectivePrice(q model.Quote, inDecimals, outDecimals uint8) (decimal.Decimal, error) {
	if q.AmountIn == nil || q.AmountIn.Sign() <= 0 {
		return decimal.Zero, errors.New("input amount must be positive")
	}
	if q.AmountOut == nil {
		return decimal.Zero, errors.New("output amount missing")
	}
	in := ToDecimal(q.AmountIn, inDecimals)
	out := ToDecimal(q.AmountOut, outDecimals)
	return out.DivRound(in, priceScale), nil
}
