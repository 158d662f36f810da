package heuristics

import (
	"math/big"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"threatScope/internal/model"
)

// PairKey identifies an unordered (sender, recipient) pair.
func PairKey(tx model.Transaction) string {
	a := strings.ToLower(tx.From.Hex())
	b := strings.ToLower(tx.Recipient())
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// PairWindows keeps the most recent transactions per pair, FIFO-evicted.
// The set of tracked pairs is itself LRU-bounded.
type PairWindows struct {
	size  int
	mu    sync.Mutex
	pairs *lru.Cache[string, []model.Transaction]
}

func NewPairWindows(size, capacity int) (*PairWindows, error) {
	if size <= 0 {
		size = 10
	}
	cache, err := lru.New[string, []model.Transaction](capacity)
	if err != nil {
		return nil, err
	}
	return &PairWindows{size: size, pairs: cache}, nil
}

// Push appends tx to its pair window and returns the entries that preceded it.
func (w *PairWindows) Push(tx model.Transaction) []model.Transaction {
	key := PairKey(tx)

	w.mu.Lock()
	defer w.mu.Unlock()

	prior, _ := w.pairs.Get(key)
	next := make([]model.Transaction, 0, w.size)
	next = append(next, prior...)
	next = append(next, tx)
	if len(next) > w.size {
		next = next[len(next)-w.size:]
	}
	w.pairs.Add(key, next)
	return prior
}

// Window returns a copy of the current window for the pair of tx.
func (w *PairWindows) Window(tx model.Transaction) []model.Transaction {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries, _ := w.pairs.Peek(PairKey(tx))
	out := make([]model.Transaction, len(entries))
	copy(out, entries)
	return out
}

// Pairs returns the number of tracked pairs.
func (w *PairWindows) Pairs() int {
	return w.pairs.Len()
}

// averageGasPrice returns the integer mean gas price of entries, or nil when empty.
func averageGasPrice(entries []model.Transaction) *big.Int {
	if len(entries) == 0 {
		return nil
	}
	sum := new(big.Int)
	for _, entry := range entries {
		sum.Add(sum, entry.GasPriceOrZero())
	}
	return sum.Quo(sum, big.NewInt(int64(len(entries))))
}
