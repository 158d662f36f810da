package monitor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"threatScope/internal/metrics"
	"threatScope/internal/model"
)

type fakeChain struct {
	mu        sync.Mutex
	head      uint64
	delays    map[uint64]time.Duration
	failures  map[uint64]int
	completed []uint64
	headCalls int
	// headFailures fails that many head requests before answering
	headFailures int
}

func (c *fakeChain) LatestBlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headCalls++
	if c.headFailures != 0 {
		if c.headFailures > 0 {
			c.headFailures--
		}
		return 0, errors.New("rpc unavailable")
	}
	return c.head, nil
}

func (c *fakeChain) BlockByNumber(ctx context.Context, number uint64) (model.Block, error) {
	c.mu.Lock()
	delay := c.delays[number]
	fail := c.failures[number] > 0
	if fail {
		c.failures[number]--
	}
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.Block{}, ctx.Err()
		}
	}
	if fail {
		return model.Block{}, errors.New("rpc unavailable")
	}

	c.mu.Lock()
	c.completed = append(c.completed, number)
	c.mu.Unlock()
	return model.Block{
		Number:       number,
		Transactions: []model.Transaction{{Hash: fmt.Sprintf("0x%d-0", number)}, {Hash: fmt.Sprintf("0x%d-1", number)}},
	}, nil
}

type recordingProcessor struct {
	mu     sync.Mutex
	blocks []uint64
	txs    []string
	onDone func(uint64)
}

func (p *recordingProcessor) ProcessBlock(_ context.Context, block model.Block) error {
	p.mu.Lock()
	p.blocks = append(p.blocks, block.Number)
	for _, tx := range block.Transactions {
		p.txs = append(p.txs, tx.Hash)
	}
	p.mu.Unlock()
	if p.onDone != nil {
		p.onDone(block.Number)
	}
	return nil
}

func (p *recordingProcessor) processed() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint64(nil), p.blocks...)
}

func testConfig() RunConfig {
	return RunConfig{
		PollInterval: 10 * time.Millisecond,
		MinDelay:     time.Millisecond,
		ErrorBackoff: 5 * time.Millisecond,
		RPCTimeout:   time.Second,
		Prefetch:     3,
		RetryBackoff: time.Millisecond,
	}
}

func TestPassProcessesInOrderDespiteFetchOrder(t *testing.T) {
	chain := &fakeChain{
		head:   13,
		delays: map[uint64]time.Duration{11: 60 * time.Millisecond, 12: 30 * time.Millisecond},
	}
	proc := &recordingProcessor{}
	r := NewRunner(testConfig(), chain, proc, nil, nil)
	r.setCursor(10)
	r.running.Store(true)

	if err := r.pass(context.Background()); err != nil {
		t.Fatalf("pass: %v", err)
	}

	if chain.completed[0] != 13 {
		t.Fatalf("expected block 13 to resolve first, got %v", chain.completed)
	}
	if got := proc.processed(); !reflect.DeepEqual(got, []uint64{11, 12, 13}) {
		t.Fatalf("blocks processed out of order: %v", got)
	}
	wantTxs := []string{"0x11-0", "0x11-1", "0x12-0", "0x12-1", "0x13-0", "0x13-1"}
	if !reflect.DeepEqual(proc.txs, wantTxs) {
		t.Fatalf("transactions out of order: %v", proc.txs)
	}
	if r.Cursor() != 13 {
		t.Fatalf("cursor should be head, got %d", r.Cursor())
	}
}

func TestPassNoNewBlocks(t *testing.T) {
	chain := &fakeChain{head: 10}
	proc := &recordingProcessor{}
	r := NewRunner(testConfig(), chain, proc, nil, nil)
	r.setCursor(10)
	r.running.Store(true)

	if err := r.pass(context.Background()); err != nil {
		t.Fatalf("pass: %v", err)
	}
	if len(proc.processed()) != 0 {
		t.Fatalf("nothing should be processed")
	}
}

func TestPassResumesAfterFetchError(t *testing.T) {
	chain := &fakeChain{head: 5, failures: map[uint64]int{3: 1}}
	proc := &recordingProcessor{}
	cfg := testConfig()
	cfg.Prefetch = 2
	r := NewRunner(cfg, chain, proc, nil, nil)
	r.running.Store(true)

	err := r.pass(context.Background())
	if err == nil {
		t.Fatalf("expected fetch error")
	}
	if r.Cursor() != 2 {
		t.Fatalf("cursor should stop before the failed block, got %d", r.Cursor())
	}

	if err := r.pass(context.Background()); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if got := proc.processed(); !reflect.DeepEqual(got, []uint64{1, 2, 3, 4, 5}) {
		t.Fatalf("unexpected processing after recovery: %v", got)
	}
}

func TestPassSkipsBlockThatKeepsFailing(t *testing.T) {
	chain := &fakeChain{head: 5, failures: map[uint64]int{3: 100}}
	proc := &recordingProcessor{}
	cfg := testConfig()
	cfg.Prefetch = 2
	cfg.MaxBlockFailures = 3
	m := metrics.New()
	r := NewRunner(cfg, chain, proc, m, nil)
	r.running.Store(true)

	for i := 0; i < 2; i++ {
		if err := r.pass(context.Background()); err == nil {
			t.Fatalf("pass %d: expected fetch error", i+1)
		}
		if r.Cursor() != 2 {
			t.Fatalf("pass %d: cursor should hold before block 3, got %d", i+1, r.Cursor())
		}
	}

	if err := r.pass(context.Background()); err != nil {
		t.Fatalf("third pass should skip block 3: %v", err)
	}
	if got := proc.processed(); !reflect.DeepEqual(got, []uint64{1, 2, 4, 5}) {
		t.Fatalf("unexpected blocks: %v", got)
	}
	if r.Cursor() != 5 {
		t.Fatalf("cursor should reach head, got %d", r.Cursor())
	}
	if got := testutil.ToFloat64(m.BlocksSkipped); got != 1 {
		t.Fatalf("skipped blocks = %v", got)
	}
}

func TestFailureCountResetsOnSuccess(t *testing.T) {
	chain := &fakeChain{head: 3, failures: map[uint64]int{3: 2}}
	proc := &recordingProcessor{}
	cfg := testConfig()
	cfg.MaxBlockFailures = 3
	r := NewRunner(cfg, chain, proc, nil, nil)
	r.running.Store(true)

	for i := 0; i < 2; i++ {
		if err := r.pass(context.Background()); err == nil {
			t.Fatalf("pass %d: expected fetch error", i+1)
		}
	}
	if err := r.pass(context.Background()); err != nil {
		t.Fatalf("recovered pass: %v", err)
	}
	if got := proc.processed(); !reflect.DeepEqual(got, []uint64{1, 2, 3}) {
		t.Fatalf("block 3 should be processed, not skipped: %v", got)
	}
	if r.failures != 0 {
		t.Fatalf("failure count should reset, got %d", r.failures)
	}
}

func TestStopFinishesCurrentPass(t *testing.T) {
	chain := &fakeChain{head: 20}
	var r *Runner
	proc := &recordingProcessor{}
	proc.onDone = func(number uint64) {
		if number == 11 {
			r.Stop()
		}
	}
	r = NewRunner(testConfig(), chain, proc, nil, nil)
	r.setCursor(10)
	r.running.Store(true)

	if err := r.pass(context.Background()); err != nil {
		t.Fatalf("pass: %v", err)
	}
	want := []uint64{11, 12, 13, 14, 15, 16, 17, 18, 19, 20}
	if got := proc.processed(); !reflect.DeepEqual(got, want) {
		t.Fatalf("pass should run to the observed head: %v", got)
	}
	if r.Cursor() != 20 {
		t.Fatalf("unexpected cursor: %d", r.Cursor())
	}

	calls := chain.headCalls
	r.tick(context.Background())
	if chain.headCalls != calls {
		t.Fatalf("no pass should start after Stop")
	}
}

func TestFetchRetriesBeforeFailing(t *testing.T) {
	chain := &fakeChain{head: 1, failures: map[uint64]int{1: 2}}
	proc := &recordingProcessor{}
	cfg := testConfig()
	cfg.MaxRetries = 2
	r := NewRunner(cfg, chain, proc, nil, nil)
	r.running.Store(true)

	if err := r.pass(context.Background()); err != nil {
		t.Fatalf("pass should succeed after retries: %v", err)
	}
	if r.Cursor() != 1 {
		t.Fatalf("unexpected cursor: %d", r.Cursor())
	}
}

func TestTickErrorUsesBackoff(t *testing.T) {
	chain := &fakeChain{head: 1, failures: map[uint64]int{1: 1}}
	r := NewRunner(testConfig(), chain, &recordingProcessor{}, nil, nil)
	r.running.Store(true)

	if got := r.tick(context.Background()); got != 5*time.Millisecond {
		t.Fatalf("expected error backoff, got %v", got)
	}
}

func TestTickAfterStopIsNoop(t *testing.T) {
	chain := &fakeChain{head: 20}
	proc := &recordingProcessor{}
	r := NewRunner(testConfig(), chain, proc, nil, nil)
	r.running.Store(true)
	r.Stop()

	r.tick(context.Background())
	if chain.headCalls != 0 || len(proc.processed()) != 0 {
		t.Fatalf("stopped runner should not poll")
	}
}

func TestTickSkipsWhilePassActive(t *testing.T) {
	chain := &fakeChain{head: 20}
	r := NewRunner(testConfig(), chain, &recordingProcessor{}, nil, nil)
	r.running.Store(true)
	r.inPass.Store(true)

	r.tick(context.Background())
	if chain.headCalls != 0 {
		t.Fatalf("overlapping pass should not start")
	}
}

func TestRunFromBlockUntilStop(t *testing.T) {
	chain := &fakeChain{head: 6}
	var r *Runner
	proc := &recordingProcessor{}
	proc.onDone = func(number uint64) {
		if number == 6 {
			r.Stop()
		}
	}
	cfg := testConfig()
	cfg.FromBlock = 2
	r = NewRunner(cfg, chain, proc, nil, nil)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop")
	}
	if got := proc.processed(); !reflect.DeepEqual(got, []uint64{2, 3, 4, 5, 6}) {
		t.Fatalf("unexpected blocks: %v", got)
	}
	if r.Running() {
		t.Fatalf("runner should report stopped")
	}
}

func TestRunStartsAtHead(t *testing.T) {
	chain := &fakeChain{head: 100}
	proc := &recordingProcessor{}
	r := NewRunner(testConfig(), chain, proc, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := r.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if len(proc.processed()) != 0 {
		t.Fatalf("blocks at or below the starting head must not be processed")
	}
	if r.Cursor() != 100 {
		t.Fatalf("unexpected cursor: %d", r.Cursor())
	}
}

func TestRunRetriesInitialHead(t *testing.T) {
	chain := &fakeChain{head: 100, headFailures: 4}
	proc := &recordingProcessor{}
	r := NewRunner(testConfig(), chain, proc, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := r.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if r.Cursor() != 100 {
		t.Fatalf("cursor should start at head after recovery, got %d", r.Cursor())
	}
	chain.mu.Lock()
	defer chain.mu.Unlock()
	if chain.headCalls < 5 {
		t.Fatalf("expected at least 5 head requests, got %d", chain.headCalls)
	}
}

func TestRunStopsWhileHeadUnavailable(t *testing.T) {
	chain := &fakeChain{headFailures: -1}
	r := NewRunner(testConfig(), chain, &recordingProcessor{}, nil, nil)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	r.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop")
	}
}

func TestNextDelay(t *testing.T) {
	tests := []struct {
		interval, elapsed, floor, want time.Duration
	}{
		{time.Second, 200 * time.Millisecond, 100 * time.Millisecond, 800 * time.Millisecond},
		{time.Second, 950 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond},
		{time.Second, 3 * time.Second, 100 * time.Millisecond, 100 * time.Millisecond},
		{time.Second, 0, 100 * time.Millisecond, time.Second},
	}
	for _, tt := range tests {
		if got := NextDelay(tt.interval, tt.elapsed, tt.floor); got != tt.want {
			t.Fatalf("NextDelay(%v, %v, %v) = %v, want %v", tt.interval, tt.elapsed, tt.floor, got, tt.want)
		}
	}
}

func TestWithRetryCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := withRetry(ctx, 5, 50*time.Millisecond, func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected single call and error, got calls=%d err=%v", calls, err)
	}
}
