package intel

import (
	"math/big"
	"strings"
)

const (
	etherDecimals = 18
	gweiDecimals  = 9
)

func formatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(abs, denom)
	text := trimFraction(rat.FloatString(int(decimals)))
	if sign < 0 {
		return "-" + text
	}
	return text
}

func trimFraction(text string) string {
	if !strings.Contains(text, ".") {
		return text
	}
	text = strings.TrimRight(text, "0")
	return strings.TrimSuffix(text, ".")
}
