package threat

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"threatScope/internal/metrics"
	"threatScope/internal/model"
)

const (
	rugPullMinRisk    = 0.5
	flashLoanMinRisk  = 0.6
	mevMinRisk        = 0.6
	escalateRisk      = 0.8
	overallMinRisk    = 0.7
	mitigationMinConf = 0.8
	intelDetector     = "intel"
)

// Dispatcher delivers an alert to notification channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert model.ThreatAlert) int
}

// Mitigator applies an automated response to a critical alert.
type Mitigator interface {
	Apply(ctx context.Context, alert model.ThreatAlert) error
}

// Publisher receives one threat_detected event per produced alert.
type Publisher interface {
	Publish(ctx context.Context, alert model.ThreatAlert)
}

// Config controls dispatch and mitigation.
type Config struct {
	MitigationEnabled bool
	DispatchMin       model.Severity
	HistorySize       int
}

// Aggregator turns detector and enrichment output into dispatched alerts.
type Aggregator struct {
	cfg        Config
	history    *History
	dispatcher Dispatcher
	mitigator  Mitigator
	publisher  Publisher
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
	seq        atomic.Uint64
}

func NewAggregator(cfg Config, dispatcher Dispatcher, mitigator Mitigator, publisher Publisher, m *metrics.Metrics, logger *zap.Logger) (*Aggregator, error) {
	if cfg.DispatchMin == "" {
		cfg.DispatchMin = model.SeverityMedium
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 10_000
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	history, err := NewHistory(cfg.HistorySize)
	if err != nil {
		return nil, fmt.Errorf("threat history: %w", err)
	}

	return &Aggregator{
		cfg:        cfg,
		history:    history,
		dispatcher: dispatcher,
		mitigator:  mitigator,
		publisher:  publisher,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// History returns the recorded alerts.
func (a *Aggregator) History() *History {
	return a.history
}

// Process merges heuristic alerts and the enrichment analysis for tx, records,
// publishes and dispatches them. It returns the final state of every alert.
func (a *Aggregator) Process(ctx context.Context, tx model.Transaction, heuristic []model.ThreatAlert, analysis *model.RiskAnalysis) []model.ThreatAlert {
	candidates := make([]model.ThreatAlert, 0, len(heuristic)+1)
	candidates = append(candidates, heuristic...)
	candidates = append(candidates, FromAnalysis(tx, analysis)...)

	out := make([]model.ThreatAlert, 0, len(candidates))
	for _, alert := range candidates {
		out = append(out, a.handle(ctx, a.finalize(alert)))
	}
	return out
}

func (a *Aggregator) finalize(alert model.ThreatAlert) model.ThreatAlert {
	if alert.Detector == "" {
		alert.Detector = string(alert.Type)
	}
	alert.ID = fmt.Sprintf("%s-%s-%d", alert.Detector, alert.TxHash, a.seq.Add(1))
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = a.now().UTC()
	}
	return alert
}

func (a *Aggregator) handle(ctx context.Context, alert model.ThreatAlert) model.ThreatAlert {
	a.history.Record(alert)
	a.metrics.ObserveThreat(string(alert.Type), string(alert.Severity))
	if a.publisher != nil {
		a.publisher.Publish(ctx, alert)
	}

	a.logger.Info("threat detected",
		zap.String("id", alert.ID),
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)),
		zap.Float64("confidence", alert.Confidence),
		zap.String("tx_hash", alert.TxHash),
		zap.Uint64("block_number", alert.BlockNumber),
	)

	if !alert.Severity.AtLeast(a.cfg.DispatchMin) {
		return alert
	}
	a.dispatch(ctx, alert)

	if !a.shouldMitigate(alert) {
		return alert
	}
	err := a.mitigator.Apply(ctx, alert)
	a.metrics.ObserveMitigation(err)
	if err != nil {
		a.logger.Error("mitigation failed", zap.String("id", alert.ID), zap.Error(err))
		return alert
	}

	alert.MarkMitigated()
	a.history.Record(alert)
	a.logger.Info("threat mitigated", zap.String("id", alert.ID))
	a.dispatch(ctx, alert)
	return alert
}

func (a *Aggregator) shouldMitigate(alert model.ThreatAlert) bool {
	return a.cfg.MitigationEnabled &&
		a.mitigator != nil &&
		alert.Severity == model.SeverityCritical &&
		alert.Confidence > mitigationMinConf
}

func (a *Aggregator) dispatch(ctx context.Context, alert model.ThreatAlert) {
	if a.dispatcher == nil {
		return
	}
	delivered := a.dispatcher.Dispatch(ctx, alert)
	a.logger.Debug("alert dispatched", zap.String("id", alert.ID), zap.Int("delivered", delivered))
}

// FromAnalysis maps an enrichment analysis onto the threat taxonomy.
func FromAnalysis(tx model.Transaction, analysis *model.RiskAnalysis) []model.ThreatAlert {
	if analysis == nil {
		return nil
	}

	var alerts []model.ThreatAlert
	if risk := analysis.RugPull.Risk; risk > rugPullMinRisk {
		alerts = append(alerts, intelAlert(tx, analysis, model.ThreatRugPull, escalate(risk, model.SeverityCritical, model.SeverityHigh), risk))
	}
	if risk := analysis.FlashLoan.Risk; risk > flashLoanMinRisk {
		alerts = append(alerts, intelAlert(tx, analysis, model.ThreatFlashLoanAttack, escalate(risk, model.SeverityCritical, model.SeverityHigh), risk))
	}
	if risk := analysis.MEV.Risk; risk > mevMinRisk {
		alerts = append(alerts, intelAlert(tx, analysis, model.ThreatMEVAttack, escalate(risk, model.SeverityHigh, model.SeverityMedium), risk))
	}
	if len(alerts) == 0 && analysis.OverallRisk > overallMinRisk {
		alerts = append(alerts, intelAlert(tx, analysis, model.ThreatSuspiciousPattern, model.SeverityHigh, analysis.Confidence))
	}
	return alerts
}

func escalate(risk float64, above, otherwise model.Severity) model.Severity {
	if risk > escalateRisk {
		return above
	}
	return otherwise
}

func intelAlert(tx model.Transaction, analysis *model.RiskAnalysis, threatType model.ThreatType, severity model.Severity, confidence float64) model.ThreatAlert {
	details := map[string]any{
		"overall_risk":     analysis.OverallRisk,
		"intel_confidence": analysis.Confidence,
		"summary":          analysis.Summary,
	}
	if len(analysis.DataSources) > 0 {
		details["data_sources"] = analysis.DataSources
	}

	return model.ThreatAlert{
		Type:           threatType,
		Severity:       severity,
		TargetContract: tx.Recipient(),
		TxHash:         tx.Hash,
		BlockNumber:    tx.BlockNumber,
		Confidence:     confidence,
		Detector:       intelDetector,
		Details:        details,
	}
}
