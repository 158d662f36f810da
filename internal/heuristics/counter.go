package heuristics

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
)

// InteractionCounter counts payload-carrying transactions per recipient.
// Counts only grow; the least recently touched recipients are evicted at capacity.
type InteractionCounter struct {
	mu     sync.Mutex
	counts *lru.Cache[string, uint64]
}

func NewInteractionCounter(capacity int) (*InteractionCounter, error) {
	cache, err := lru.New[string, uint64](capacity)
	if err != nil {
		return nil, err
	}
	return &InteractionCounter{counts: cache}, nil
}

// Increment bumps the count for addr and returns the new value.
func (c *InteractionCounter) Increment(addr common.Address) uint64 {
	key := strings.ToLower(addr.Hex())

	c.mu.Lock()
	defer c.mu.Unlock()

	count, _ := c.counts.Get(key)
	count++
	c.counts.Add(key, count)
	return count
}

// Count returns the current count for addr.
func (c *InteractionCounter) Count(addr common.Address) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count, _ := c.counts.Peek(strings.ToLower(addr.Hex()))
	return count
}
