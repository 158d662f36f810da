package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"threatScope/internal/metrics"
	"threatScope/internal/model"
)

var errStopped = errors.New("monitor stopped")

// ChainReader is the subset of chain access the loop needs.
type ChainReader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64) (model.Block, error)
}

// Processor analyses a block. Blocks arrive in strictly ascending order.
type Processor interface {
	ProcessBlock(ctx context.Context, block model.Block) error
}

// RunConfig holds runtime settings for the ingestion loop.
type RunConfig struct {
	// FromBlock starts processing at this block; zero means the current head.
	FromBlock    uint64
	PollInterval time.Duration
	MinDelay     time.Duration
	ErrorBackoff time.Duration
	RPCTimeout   time.Duration
	Prefetch     int
	MaxRetries   int
	RetryBackoff time.Duration

	// MaxBlockFailures is how many consecutive failed passes a block may
	// cause before it is skipped.
	MaxBlockFailures int
}

func DefaultRunConfig() RunConfig {
	return RunConfig{
		PollInterval: time.Second,
		MinDelay:     100 * time.Millisecond,
		ErrorBackoff: 2 * time.Second,
		RPCTimeout:   10 * time.Second,
		Prefetch:     4,
		MaxRetries:   2,
		RetryBackoff: 200 * time.Millisecond,

		MaxBlockFailures: 3,
	}
}

// Runner polls the chain head and feeds new blocks to the processor.
type Runner struct {
	cfg       RunConfig
	chain     ChainReader
	processor Processor
	metrics   *metrics.Metrics
	logger    *zap.Logger

	cursor   atomic.Uint64
	running  atomic.Bool
	inPass   atomic.Bool
	stopOnce sync.Once
	stopped  chan struct{}

	// owned by the active pass
	failingBlock uint64
	failures     int
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, chain ChainReader, processor Processor, m *metrics.Metrics, logger *zap.Logger) *Runner {
	defaults := DefaultRunConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = defaults.MinDelay
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaults.ErrorBackoff
	}
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = defaults.RPCTimeout
	}
	if cfg.MaxBlockFailures <= 0 {
		cfg.MaxBlockFailures = defaults.MaxBlockFailures
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:       cfg,
		chain:     chain,
		processor: processor,
		metrics:   m,
		logger:    logger,
		stopped:   make(chan struct{}),
	}
}

// Cursor returns the last fully processed block.
func (r *Runner) Cursor() uint64 {
	return r.cursor.Load()
}

// Running reports whether the loop accepts new passes.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Stop prevents further passes. A pass in progress runs to the head it observed.
func (r *Runner) Stop() {
	r.running.Store(false)
	r.stopOnce.Do(func() { close(r.stopped) })
}

// Run initialises the cursor and polls until ctx is done or Stop is called.
func (r *Runner) Run(ctx context.Context) error {
	if r.chain == nil {
		return fmt.Errorf("chain reader is nil")
	}
	if r.processor == nil {
		return fmt.Errorf("processor is nil")
	}

	if err := r.initCursor(ctx); err != nil {
		if errors.Is(err, errStopped) {
			return nil
		}
		return err
	}
	r.running.Store(true)
	select {
	case <-r.stopped:
		r.running.Store(false)
		return nil
	default:
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			r.running.Store(false)
			return ctx.Err()
		case <-r.stopped:
			return nil
		case <-timer.C:
		}

		timer.Reset(r.tick(ctx))
	}
}

func (r *Runner) initCursor(ctx context.Context) error {
	if r.cfg.FromBlock > 0 {
		r.setCursor(r.cfg.FromBlock - 1)
		r.logger.Info("monitor starting", zap.Uint64("from", r.cfg.FromBlock))
		return nil
	}

	for {
		head, err := r.latest(ctx)
		if err == nil {
			r.setCursor(head)
			r.metrics.SetHead(head)
			r.logger.Info("monitor starting", zap.Uint64("head", head))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.metrics.ObservePass(0, err)
		r.logger.Error("initial head fetch failed", zap.Error(err), zap.Duration("retry_in", r.cfg.ErrorBackoff))

		timer := time.NewTimer(r.cfg.ErrorBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-r.stopped:
			timer.Stop()
			return errStopped
		case <-timer.C:
		}
	}
}

// tick runs one pass and returns the delay before the next one. A tick that
// fires after Stop or while another pass is active does nothing.
func (r *Runner) tick(ctx context.Context) time.Duration {
	if !r.running.Load() {
		return r.cfg.PollInterval
	}
	if !r.inPass.CompareAndSwap(false, true) {
		return r.cfg.PollInterval
	}
	defer r.inPass.Store(false)

	start := time.Now()
	err := r.pass(ctx)
	elapsed := time.Since(start)
	r.metrics.ObservePass(elapsed, err)

	if err != nil {
		if ctx.Err() != nil {
			return r.cfg.ErrorBackoff
		}
		r.logger.Error("monitor pass failed", zap.Error(err), zap.Uint64("cursor", r.Cursor()))
		return r.cfg.ErrorBackoff
	}
	return NextDelay(r.cfg.PollInterval, elapsed, r.cfg.MinDelay)
}

// pass processes every block after the cursor up to the current head.
func (r *Runner) pass(ctx context.Context) error {
	head, err := r.latest(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}
	r.metrics.SetHead(head)

	cursor := r.Cursor()
	if head <= cursor {
		return nil
	}

	windows, err := SplitRange(cursor+1, head, uint64(r.cfg.Prefetch))
	if err != nil {
		return err
	}

	for _, window := range windows {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := r.processWindow(ctx, window); err != nil {
			return err
		}
	}

	r.logger.Debug("pass complete", zap.Uint64("head", head), zap.Uint64("from", cursor+1))
	return nil
}

// processWindow fetches a window of blocks concurrently and hands them to the
// processor in ascending order, advancing the cursor after each one.
func (r *Runner) processWindow(ctx context.Context, window BlockRange) error {
	blocks := make([]model.Block, window.Len())
	fetchErrs := make([]error, window.Len())

	var g errgroup.Group
	g.SetLimit(r.cfg.Prefetch)
	for i := range blocks {
		i := i
		number := window.From + uint64(i)
		g.Go(func() error {
			blocks[i], fetchErrs[i] = r.block(ctx, number)
			return nil
		})
	}
	_ = g.Wait()

	for i, block := range blocks {
		number := window.From + uint64(i)
		if fetchErrs[i] != nil {
			if ctx.Err() != nil || !r.giveUp(number) {
				return fmt.Errorf("fetch block %d: %w", number, fetchErrs[i])
			}
			r.logger.Warn("block skipped",
				zap.Uint64("block_number", number),
				zap.Int("failures", r.cfg.MaxBlockFailures),
				zap.Error(fetchErrs[i]),
			)
			r.metrics.ObserveSkippedBlock()
			r.setCursor(number)
			continue
		}
		if r.failingBlock == number {
			r.failures = 0
		}
		if err := r.processor.ProcessBlock(ctx, block); err != nil {
			return fmt.Errorf("process block %d: %w", number, err)
		}
		r.setCursor(number)
	}
	return nil
}

// giveUp records a failed fetch of number and reports whether the block has
// now failed MaxBlockFailures passes in a row.
func (r *Runner) giveUp(number uint64) bool {
	if r.failingBlock != number {
		r.failingBlock = number
		r.failures = 0
	}
	r.failures++
	if r.failures < r.cfg.MaxBlockFailures {
		return false
	}
	r.failures = 0
	return true
}

func (r *Runner) setCursor(number uint64) {
	r.cursor.Store(number)
	r.metrics.SetCursor(number)
}

func (r *Runner) latest(ctx context.Context) (uint64, error) {
	var head uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.RPCTimeout)
		defer cancel()

		var err error
		head, err = r.chain.LatestBlockNumber(callCtx)
		if err != nil {
			r.logger.Warn("latest block fetch failed", zap.Error(err))
		}
		return err
	})
	return head, err
}

func (r *Runner) block(ctx context.Context, number uint64) (model.Block, error) {
	var block model.Block
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.RPCTimeout)
		defer cancel()

		var err error
		block, err = r.chain.BlockByNumber(callCtx, number)
		if err != nil {
			r.logger.Warn("block fetch failed", zap.Error(err), zap.Uint64("block_number", number))
		}
		return err
	})
	return block, err
}
