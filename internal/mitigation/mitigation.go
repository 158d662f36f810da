package mitigation

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"threatScope/internal/model"
)

// LogMitigator records the response it would take without touching the chain.
type LogMitigator struct {
	logger *zap.Logger

	mu      sync.Mutex
	applied []string
}

func NewLogMitigator(logger *zap.Logger) *LogMitigator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMitigator{logger: logger}
}

func (m *LogMitigator) Apply(ctx context.Context, alert model.ThreatAlert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.applied = append(m.applied, alert.ID)
	m.mu.Unlock()

	m.logger.Warn("mitigation applied",
		zap.String("id", alert.ID),
		zap.String("action", Action(alert.Type)),
		zap.String("target", alert.TargetContract),
		zap.String("tx_hash", alert.TxHash),
	)
	return nil
}

// Applied returns the alert IDs handled so far.
func (m *LogMitigator) Applied() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.applied...)
}

// Action names the response associated with a threat type.
func Action(t model.ThreatType) string {
	switch t {
	case model.ThreatRugPull, model.ThreatLiquidityDrain:
		return "freeze_liquidity"
	case model.ThreatFlashLoanAttack, model.ThreatExploit:
		return "pause_contract"
	case model.ThreatMEVAttack, model.ThreatSandwichAttack:
		return "private_relay"
	default:
		return "flag_address"
	}
}
