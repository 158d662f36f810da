package model

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Transaction is the normalized view of a chain transaction used by detectors.
type Transaction struct {
	Hash        string
	BlockNumber uint64
	From        common.Address
	To          *common.Address
	Value       *big.Int
	Gas         uint64
	GasPrice    *big.Int
	Input       []byte
	Timestamp   uint64
}

// IsContractCreation reports whether the transaction has no recipient.
func (tx Transaction) IsContractCreation() bool {
	return tx.To == nil
}

// Recipient returns the hex recipient address, or "" for contract creation.
func (tx Transaction) Recipient() string {
	if tx.To == nil {
		return ""
	}
	return tx.To.Hex()
}

// ValueOrZero never returns nil.
func (tx Transaction) ValueOrZero() *big.Int {
	if tx.Value == nil {
		return new(big.Int)
	}
	return tx.Value
}

// GasPriceOrZero never returns nil.
func (tx Transaction) GasPriceOrZero() *big.Int {
	if tx.GasPrice == nil {
		return new(big.Int)
	}
	return tx.GasPrice
}

type transactionJSON struct {
	Hash        string `json:"hash"`
	BlockNumber uint64 `json:"block_number"`
	From        string `json:"from"`
	To          string `json:"to,omitempty"`
	Value       string `json:"value"`
	Gas         uint64 `json:"gas"`
	GasPrice    string `json:"gas_price"`
	Input       string `json:"input"`
	Timestamp   uint64 `json:"timestamp"`
}

// MarshalJSON encodes big integers as decimal strings and input as hex.
func (tx Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(transactionJSON{
		Hash:        tx.Hash,
		BlockNumber: tx.BlockNumber,
		From:        tx.From.Hex(),
		To:          tx.Recipient(),
		Value:       tx.ValueOrZero().String(),
		Gas:         tx.Gas,
		GasPrice:    tx.GasPriceOrZero().String(),
		Input:       hexutil.Encode(tx.Input),
		Timestamp:   tx.Timestamp,
	})
}

// Block is a fetched block with its transactions in source order.
type Block struct {
	Number       uint64
	Hash         string
	Timestamp    uint64
	Transactions []Transaction
}
