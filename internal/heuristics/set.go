package heuristics

import (
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"threatScope/internal/model"
)

// Config holds detector thresholds and bookkeeping bounds.
type Config struct {
	GasThreshold         *big.Int
	FlashLoanMinValue    *big.Int
	InteractionThreshold uint64
	PairWindowSize       int
	WindowCapacity       int
	CounterCapacity      int
}

// DefaultConfig uses a 120 gwei gas threshold and a 100 ether value threshold.
func DefaultConfig() Config {
	return Config{
		GasThreshold:         new(big.Int).Mul(big.NewInt(120), big.NewInt(1_000_000_000)),
		FlashLoanMinValue:    new(big.Int).Mul(big.NewInt(100), big.NewInt(1_000_000_000_000_000_000)),
		InteractionThreshold: 100,
		PairWindowSize:       10,
		WindowCapacity:       50_000,
		CounterCapacity:      100_000,
	}
}

// Set runs every detector against each transaction after updating shared history.
type Set struct {
	cfg       Config
	windows   *PairWindows
	counter   *InteractionCounter
	detectors []Detector
	logger    *zap.Logger
}

func NewSet(cfg Config, logger *zap.Logger) (*Set, error) {
	if cfg.GasThreshold == nil || cfg.GasThreshold.Sign() <= 0 {
		return nil, fmt.Errorf("gas threshold must be positive")
	}
	if cfg.FlashLoanMinValue == nil || cfg.FlashLoanMinValue.Sign() <= 0 {
		return nil, fmt.Errorf("flash loan min value must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	windows, err := NewPairWindows(cfg.PairWindowSize, cfg.WindowCapacity)
	if err != nil {
		return nil, fmt.Errorf("pair windows: %w", err)
	}
	counter, err := NewInteractionCounter(cfg.CounterCapacity)
	if err != nil {
		return nil, fmt.Errorf("interaction counter: %w", err)
	}

	return &Set{
		cfg:     cfg,
		windows: windows,
		counter: counter,
		detectors: []Detector{
			gasAnomalyDetector{threshold: cfg.GasThreshold},
			largeValueDetector{minValue: cfg.FlashLoanMinValue},
			mevPatternDetector{gasThreshold: cfg.GasThreshold},
			contractCreationDetector{},
			highFrequencyDetector{threshold: cfg.InteractionThreshold},
		},
		logger: logger,
	}, nil
}

// Analyze records tx in the shared history and returns every alert the detectors raise.
func (s *Set) Analyze(tx model.Transaction) []model.ThreatAlert {
	obs := s.observe(tx)

	var alerts []model.ThreatAlert
	for _, detector := range s.detectors {
		alert := detector.Detect(tx, obs)
		if alert == nil {
			continue
		}
		s.logger.Debug("heuristic hit",
			zap.String("detector", detector.Name()),
			zap.String("tx_hash", tx.Hash),
			zap.String("severity", string(alert.Severity)),
		)
		alerts = append(alerts, *alert)
	}
	return alerts
}

// Observe updates history without running detectors.
func (s *Set) Observe(tx model.Transaction) {
	s.observe(tx)
}

func (s *Set) observe(tx model.Transaction) Observation {
	obs := Observation{Prior: s.windows.Push(tx)}
	if tx.To != nil {
		if len(tx.Input) > 0 {
			obs.Interactions = s.counter.Increment(*tx.To)
		} else {
			obs.Interactions = s.counter.Count(*tx.To)
		}
	}
	return obs
}

// Windows exposes the pair history.
func (s *Set) Windows() *PairWindows {
	return s.windows
}

// Counter exposes the interaction counter.
func (s *Set) Counter() *InteractionCounter {
	return s.counter
}
