package heuristics

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"threatScope/internal/model"
)

func TestPairKeyIsUnordered(t *testing.T) {
	a := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	forward := model.Transaction{From: a, To: &b}
	backward := model.Transaction{From: b, To: &a}
	if PairKey(forward) != PairKey(backward) {
		t.Fatalf("pair key should not depend on direction")
	}
}

func TestPairWindowFIFO(t *testing.T) {
	windows, err := NewPairWindows(10, 16)
	if err != nil {
		t.Fatalf("new windows: %v", err)
	}

	var last model.Transaction
	for i := 0; i < 15; i++ {
		last = txTo(fmt.Sprintf("0x%02d", i), contract, big.NewInt(int64(i)), 0)
		prior := windows.Push(last)
		if len(prior) > 10 {
			t.Fatalf("prior window exceeded cap: %d", len(prior))
		}
	}

	got := windows.Window(last)
	if len(got) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(got))
	}
	for i, entry := range got {
		want := fmt.Sprintf("0x%02d", i+5)
		if entry.Hash != want {
			t.Fatalf("entry %d: got %s want %s", i, entry.Hash, want)
		}
	}
}

func TestPairWindowsBoundedPairs(t *testing.T) {
	windows, err := NewPairWindows(10, 2)
	if err != nil {
		t.Fatalf("new windows: %v", err)
	}

	for i := 0; i < 5; i++ {
		to := common.BigToAddress(big.NewInt(int64(i + 1)))
		windows.Push(txTo("0x1", to, big.NewInt(1), 0))
	}
	if got := windows.Pairs(); got != 2 {
		t.Fatalf("expected 2 tracked pairs, got %d", got)
	}
}

func TestAverageGasPrice(t *testing.T) {
	if averageGasPrice(nil) != nil {
		t.Fatalf("empty window has no average")
	}
	entries := []model.Transaction{
		{GasPrice: big.NewInt(10)},
		{GasPrice: big.NewInt(20)},
		{GasPrice: big.NewInt(33)},
	}
	if got := averageGasPrice(entries); got.Cmp(big.NewInt(21)) != 0 {
		t.Fatalf("average mismatch: %s", got)
	}
}

func TestInteractionCounterEviction(t *testing.T) {
	counter, err := NewInteractionCounter(1)
	if err != nil {
		t.Fatalf("new counter: %v", err)
	}
	a := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	counter.Increment(a)
	counter.Increment(a)
	if got := counter.Count(a); got != 2 {
		t.Fatalf("count mismatch: %d", got)
	}
	counter.Increment(b)
	if got := counter.Count(a); got != 0 {
		t.Fatalf("evicted address should reset, got %d", got)
	}
}
