package heuristics

import (
	"math"
	"math/big"

	"threatScope/internal/model"
)

const (
	mevMinPayloadBytes      = 10
	mevMinPriorEntries      = 2
	mevGasMultiplier        = 3
	creationMinPayloadBytes = 1000
)

// Observation is the bookkeeping snapshot a detector sees for one transaction.
type Observation struct {
	Prior        []model.Transaction
	Interactions uint64
}

// Detector is a local, deterministic rule over a single transaction.
type Detector interface {
	Name() string
	Detect(tx model.Transaction, obs Observation) *model.ThreatAlert
}

type gasAnomalyDetector struct {
	threshold *big.Int
}

func (d gasAnomalyDetector) Name() string { return "gas_anomaly" }

func (d gasAnomalyDetector) Detect(tx model.Transaction, _ Observation) *model.ThreatAlert {
	price := tx.GasPriceOrZero()
	if price.Cmp(d.threshold) <= 0 {
		return nil
	}

	severity := model.SeverityMedium
	if price.Cmp(new(big.Int).Mul(d.threshold, big.NewInt(2))) > 0 {
		severity = model.SeverityHigh
	}
	ratio := ratioOf(price, d.threshold)

	return newAlert(d.Name(), tx, model.ThreatSuspiciousPattern, severity, math.Min(0.9, ratio*0.3), map[string]any{
		"gas_price":       price.String(),
		"threshold":       d.threshold.String(),
		"threshold_ratio": ratio,
	})
}

type largeValueDetector struct {
	minValue *big.Int
}

func (d largeValueDetector) Name() string { return "large_value_transfer" }

func (d largeValueDetector) Detect(tx model.Transaction, _ Observation) *model.ThreatAlert {
	value := tx.ValueOrZero()
	if value.Cmp(d.minValue) <= 0 {
		return nil
	}

	severity := model.SeverityMedium
	if value.Cmp(new(big.Int).Mul(d.minValue, big.NewInt(10))) > 0 {
		severity = model.SeverityHigh
	}

	return newAlert(d.Name(), tx, model.ThreatFlashLoanAttack, severity, 0.6, map[string]any{
		"value":     value.String(),
		"min_value": d.minValue.String(),
	})
}

type mevPatternDetector struct {
	gasThreshold *big.Int
}

func (d mevPatternDetector) Name() string { return "mev_pattern" }

func (d mevPatternDetector) Detect(tx model.Transaction, obs Observation) *model.ThreatAlert {
	price := tx.GasPriceOrZero()
	half := new(big.Int).Quo(d.gasThreshold, big.NewInt(2))
	if price.Cmp(half) <= 0 {
		return nil
	}
	if len(tx.Input) <= mevMinPayloadBytes {
		return nil
	}
	if len(obs.Prior) <= mevMinPriorEntries {
		return nil
	}

	avg := averageGasPrice(obs.Prior)
	if price.Cmp(new(big.Int).Mul(avg, big.NewInt(mevGasMultiplier))) <= 0 {
		return nil
	}

	return newAlert(d.Name(), tx, model.ThreatMEVAttack, model.SeverityMedium, 0.7, map[string]any{
		"gas_price":      price.String(),
		"window_avg_gas": avg.String(),
		"window_size":    len(obs.Prior),
		"payload_bytes":  len(tx.Input),
	})
}

type contractCreationDetector struct{}

func (contractCreationDetector) Name() string { return "suspicious_contract_creation" }

func (d contractCreationDetector) Detect(tx model.Transaction, _ Observation) *model.ThreatAlert {
	if !tx.IsContractCreation() || len(tx.Input) <= creationMinPayloadBytes {
		return nil
	}

	return newAlert(d.Name(), tx, model.ThreatSuspiciousPattern, model.SeverityLow, 0.4, map[string]any{
		"creator":       tx.From.Hex(),
		"payload_bytes": len(tx.Input),
	})
}

type highFrequencyDetector struct {
	threshold uint64
}

func (d highFrequencyDetector) Name() string { return "high_frequency_interaction" }

func (d highFrequencyDetector) Detect(tx model.Transaction, obs Observation) *model.ThreatAlert {
	if tx.IsContractCreation() || obs.Interactions <= d.threshold {
		return nil
	}

	return newAlert(d.Name(), tx, model.ThreatSuspiciousPattern, model.SeverityLow, 0.5, map[string]any{
		"interactions": obs.Interactions,
		"threshold":    d.threshold,
	})
}

func newAlert(detector string, tx model.Transaction, threatType model.ThreatType, severity model.Severity, confidence float64, details map[string]any) *model.ThreatAlert {
	return &model.ThreatAlert{
		Type:           threatType,
		Severity:       severity,
		TargetContract: tx.Recipient(),
		TxHash:         tx.Hash,
		BlockNumber:    tx.BlockNumber,
		Confidence:     confidence,
		Detector:       detector,
		Details:        details,
	}
}

func ratioOf(num, denom *big.Int) float64 {
	if denom.Sign() == 0 {
		return 0
	}
	ratio, _ := new(big.Rat).SetFrac(num, denom).Float64()
	return ratio
}
