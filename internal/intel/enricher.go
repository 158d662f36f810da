package intel

import (
	"context"
	"math/big"

	"go.uber.org/zap"

	"threatScope/internal/metrics"
	"threatScope/internal/model"
	"threatScope/internal/ratelimit"
)

const minEligiblePayload = 100

// Gate holds the thresholds that make a transaction worth an external lookup.
type Gate struct {
	FlashLoanMinValue *big.Int
	GasThreshold      *big.Int
}

// Eligible reports whether tx clears any of the enrichment thresholds.
func (g Gate) Eligible(tx model.Transaction) bool {
	if g.FlashLoanMinValue != nil && tx.ValueOrZero().Cmp(g.FlashLoanMinValue) > 0 {
		return true
	}
	if g.GasThreshold != nil && tx.GasPriceOrZero().Cmp(g.GasThreshold) > 0 {
		return true
	}
	return len(tx.Input) > minEligiblePayload
}

// Enricher asks the intelligence service about eligible transactions.
type Enricher struct {
	gate      Gate
	searcher  Searcher
	requester *ratelimit.Requester
	parser    Parser
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewEnricher(gate Gate, searcher Searcher, requester *ratelimit.Requester, parser Parser, m *metrics.Metrics, logger *zap.Logger) *Enricher {
	if parser == nil {
		parser = KeywordParser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		gate:      gate,
		searcher:  searcher,
		requester: requester,
		parser:    parser,
		metrics:   m,
		logger:    logger,
	}
}

// Enrich returns nil whenever no opinion is available: ineligible, over budget,
// failed, or unparseable. Errors never escape.
func (e *Enricher) Enrich(ctx context.Context, tx model.Transaction) *model.RiskAnalysis {
	if e == nil || e.searcher == nil {
		return nil
	}
	if !e.gate.Eligible(tx) {
		e.metrics.ObserveEnrichment("ineligible")
		return nil
	}

	prompt := BuildPrompt(tx)
	var result SearchResult
	outcome := e.requester.Execute(ctx, "intel.search", func(ctx context.Context) error {
		var err error
		result, err = e.searcher.Search(ctx, prompt)
		return err
	})
	e.metrics.ObserveEnrichment(string(outcome))
	if outcome != ratelimit.OutcomeOK {
		e.logger.Debug("enrichment skipped", zap.String("tx_hash", tx.Hash), zap.String("outcome", string(outcome)))
		return nil
	}

	analysis := e.parser.Parse(result)
	if analysis == nil {
		e.metrics.ObserveEnrichment("unparsed")
		e.logger.Warn("empty intelligence response", zap.String("tx_hash", tx.Hash))
		return nil
	}

	e.logger.Debug("enrichment complete",
		zap.String("tx_hash", tx.Hash),
		zap.Float64("overall_risk", analysis.OverallRisk),
		zap.Float64("confidence", analysis.Confidence),
	)
	return analysis
}
