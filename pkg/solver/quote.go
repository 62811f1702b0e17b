package solver

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// PriceInfo is the price of one source token in destination tokens
type PriceInfo struct {
	AmountIn  decimal.Decimal
	AmountOut decimal.Decimal
	Price     decimal.Decimal
}

// PriceFromQuote derives a unit price from a quote. Amounts are base units
// with their token decimals.
func PriceFromQuote(amountIn *big.Int, inDecimals uint8, quote *QuoteResponse, outDecimals uint8) (*PriceInfo, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amount in: %v", amountIn)
	}
	quoted, ok := new(big.Int).SetString(quote.QuotedAmount, 10)
	if !ok {
		return nil, fmt.Errorf("failed to parse quoted amount %q", quote.QuotedAmount)
	}

	in := decimal.NewFromBigInt(amountIn, -int32(inDecimals))
	out := decimal.NewFromBigInt(quoted, -int32(outDecimals))
	return &PriceInfo{
		AmountIn:  in,
		AmountOut: out,
		Price:     out.DivRound(in, 18),
	}, nil
}

// MinOutput applies a slippage tolerance in basis points to a quoted amount,
// rounding down.
func MinOutput(quoted *big.Int, slippageBps uint32) *big.Int {
	if slippageBps >= 10_000 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(quoted, big.NewInt(int64(10_000-slippageBps)))
	return out.Quo(out, big.NewInt(10_000))
}
