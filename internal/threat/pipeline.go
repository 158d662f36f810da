package threat

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"threatScope/internal/metrics"
	"threatScope/internal/model"
)

// Analyzer runs local heuristics and updates shared history.
type Analyzer interface {
	Analyze(tx model.Transaction) []model.ThreatAlert
	Observe(tx model.Transaction)
}

// Enricher returns an external opinion or nil.
type Enricher interface {
	Enrich(ctx context.Context, tx model.Transaction) *model.RiskAnalysis
}

// Pipeline analyses the transactions of each block in order.
type Pipeline struct {
	analyzer   Analyzer
	enricher   Enricher
	aggregator *Aggregator
	allowlist  map[common.Address]struct{}
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewPipeline(analyzer Analyzer, enricher Enricher, aggregator *Aggregator, allowlist []common.Address, m *metrics.Metrics, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[common.Address]struct{}, len(allowlist))
	for _, addr := range allowlist {
		allowed[addr] = struct{}{}
	}
	return &Pipeline{
		analyzer:   analyzer,
		enricher:   enricher,
		aggregator: aggregator,
		allowlist:  allowed,
		metrics:    m,
		logger:     logger,
	}
}

// ProcessBlock handles every transaction of block in source order.
// It only fails when ctx is canceled.
func (p *Pipeline) ProcessBlock(ctx context.Context, block model.Block) error {
	var threats int
	for _, tx := range block.Transactions {
		if err := ctx.Err(); err != nil {
			return err
		}
		threats += len(p.ProcessTransaction(ctx, tx))
	}

	p.metrics.ObserveBlock(len(block.Transactions))
	p.logger.Debug("block analysed",
		zap.Uint64("block_number", block.Number),
		zap.Int("transactions", len(block.Transactions)),
		zap.Int("threats", threats),
	)
	return nil
}

// ProcessTransaction runs heuristics, optional enrichment and aggregation for tx.
func (p *Pipeline) ProcessTransaction(ctx context.Context, tx model.Transaction) []model.ThreatAlert {
	if p.allowed(tx) {
		p.analyzer.Observe(tx)
		return nil
	}

	heuristic := p.analyzer.Analyze(tx)
	var analysis *model.RiskAnalysis
	if p.enricher != nil {
		analysis = p.enricher.Enrich(ctx, tx)
	}
	if len(heuristic) == 0 && analysis == nil {
		return nil
	}
	return p.aggregator.Process(ctx, tx, heuristic, analysis)
}

func (p *Pipeline) allowed(tx model.Transaction) bool {
	if len(p.allowlist) == 0 {
		return false
	}
	if _, ok := p.allowlist[tx.From]; ok {
		return true
	}
	if tx.To != nil {
		if _, ok := p.allowlist[*tx.To]; ok {
			return true
		}
	}
	return false
}
