package vault

import (
	"math/big"
)

var ten = big.NewInt(10)

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(n)), nil)
}

// Translate rescales amount from one decimal precision to another. Widening
// multiplies exactly; narrowing truncates toward zero, so a translation never
// creates value.
func Translate(amount *big.Int, fromDecimals, toDecimals uint8) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	switch {
	case fromDecimals == toDecimals:
		return new(big.Int).Set(amount)
	case toDecimals > fromDecimals:
		return new(big.Int).Mul(amount, pow10(toDecimals-fromDecimals))
	default:
		return new(big.Int).Quo(amount, pow10(fromDecimals-toDecimals))
	}
}
