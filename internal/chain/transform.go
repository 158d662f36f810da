package chain

import (
	"github.com/ethereum/go-ethereum/core/types"

	"threatScope/internal/model"
)

// TxFailure records a transaction that could not be normalized.
type TxFailure struct {
	TxHash string
	Err    error
}

func buildBlock(block *types.Block, signer types.Signer) (model.Block, []TxFailure) {
	txs := block.Transactions()
	out := model.Block{
		Number:       block.NumberU64(),
		Hash:         block.Hash().Hex(),
		Timestamp:    block.Time(),
		Transactions: make([]model.Transaction, 0, len(txs)),
	}

	var failures []TxFailure
	for _, tx := range txs {
		record, err := buildTransaction(tx, signer, out.Number, out.Timestamp)
		if err != nil {
			failures = append(failures, TxFailure{TxHash: tx.Hash().Hex(), Err: err})
			continue
		}
		out.Transactions = append(out.Transactions, record)
	}
	return out, failures
}

func buildTransaction(tx *types.Transaction, signer types.Signer, blockNumber, timestamp uint64) (model.Transaction, error) {
	from, err := types.Sender(signer, tx)
	if err != nil {
		return model.Transaction{}, err
	}

	record := model.Transaction{
		Hash:        tx.Hash().Hex(),
		BlockNumber: blockNumber,
		From:        from,
		Value:       tx.Value(),
		Gas:         tx.Gas(),
		GasPrice:    tx.GasPrice(),
		Input:       tx.Data(),
		Timestamp:   timestamp,
	}
	if to := tx.To(); to != nil {
		addr := *to
		record.To = &addr
	}
	return record, nil
}
