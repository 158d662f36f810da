package model

import (
	"fmt"
	"time"
)

// ThreatType is the closed set of threat categories.
type ThreatType string

const (
	ThreatRugPull           ThreatType = "rug_pull"
	ThreatExploit           ThreatType = "exploit"
	ThreatSuspiciousPattern ThreatType = "suspicious_pattern"
	ThreatFlashLoanAttack   ThreatType = "flash_loan_attack"
	ThreatLiquidityDrain    ThreatType = "liquidity_drain"
	ThreatMEVAttack         ThreatType = "mev_attack"
	ThreatSandwichAttack    ThreatType = "sandwich_attack"
)

// Valid reports whether t belongs to the taxonomy.
func (t ThreatType) Valid() bool {
	switch t {
	case ThreatRugPull, ThreatExploit, ThreatSuspiciousPattern, ThreatFlashLoanAttack,
		ThreatLiquidityDrain, ThreatMEVAttack, ThreatSandwichAttack:
		return true
	default:
		return false
	}
}

// Severity is ordered low < medium < high < critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordinal of s; unknown severities rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether s is at or above min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// ParseSeverity converts a string into a Severity.
func ParseSeverity(input string) (Severity, error) {
	s := Severity(input)
	if s.Rank() == 0 {
		return "", fmt.Errorf("unknown severity: %q", input)
	}
	return s, nil
}

// ThreatAlert is a typed, severity-ranked record tied to one transaction.
// Only Mitigated may change after creation.
type ThreatAlert struct {
	ID             string         `json:"id"`
	Type           ThreatType     `json:"type"`
	Severity       Severity       `json:"severity"`
	TargetContract string         `json:"target_contract"`
	TxHash         string         `json:"tx_hash"`
	BlockNumber    uint64         `json:"block_number"`
	CreatedAt      time.Time      `json:"created_at"`
	Confidence     float64        `json:"confidence"`
	Detector       string         `json:"detector"`
	Details        map[string]any `json:"details,omitempty"`
	Mitigated      bool           `json:"mitigated"`
}

// MarkMitigated flips the mitigated flag. It never reverts.
func (a *ThreatAlert) MarkMitigated() {
	a.Mitigated = true
}

// EventThreatDetected is the event type emitted once per produced alert.
const EventThreatDetected = "threat_detected"

// ThreatEvent is the envelope published to event subscribers.
type ThreatEvent struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"ts"`
	Alert     ThreatAlert `json:"data"`
}

func NewThreatEvent(alert ThreatAlert) ThreatEvent {
	return ThreatEvent{Type: EventThreatDetected, Timestamp: alert.CreatedAt, Alert: alert}
}
