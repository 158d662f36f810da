package heuristics

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/params"
)

// GweiToWei converts a decimal gwei amount into wei.
func GweiToWei(gwei float64) (*big.Int, error) {
	return scale(gwei, params.GWei)
}

// EtherToWei converts a decimal ether amount into wei.
func EtherToWei(ether float64) (*big.Int, error) {
	return scale(ether, params.Ether)
}

func scale(amount float64, unit int64) (*big.Int, error) {
	if amount < 0 {
		return nil, fmt.Errorf("negative amount: %v", amount)
	}
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(amount, 'f', -1, 64))
	if !ok {
		return nil, fmt.Errorf("invalid amount: %v", amount)
	}
	r.Mul(r, new(big.Rat).SetInt64(unit))
	return new(big.Int).Quo(r.Num(), r.Denom()), nil
}
