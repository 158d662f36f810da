package heuristics

import (
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"threatScope/internal/model"
)

var (
	sender   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	contract = common.HexToAddress("0x2222222222222222222222222222222222222222")
	gwei     = big.NewInt(1_000_000_000)
	ether    = big.NewInt(1_000_000_000_000_000_000)
)

func newTestSet(t *testing.T) *Set {
	t.Helper()
	set, err := NewSet(DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("new set: %v", err)
	}
	return set
}

func gweiOf(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), gwei)
}

func etherOf(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), ether)
}

func txTo(hash string, to common.Address, gasPrice *big.Int, input int) model.Transaction {
	recipient := to
	return model.Transaction{
		Hash:        hash,
		BlockNumber: 100,
		From:        sender,
		To:          &recipient,
		Value:       new(big.Int),
		Gas:         100000,
		GasPrice:    gasPrice,
		Input:       make([]byte, input),
	}
}

func TestGasAnomalyScenario(t *testing.T) {
	set := newTestSet(t)
	price, ok := new(big.Int).SetString("1C9C380000", 16)
	if !ok {
		t.Fatalf("parse gas price")
	}

	alerts := set.Analyze(txTo("0xgas", contract, price, 20))
	if len(alerts) != 1 {
		t.Fatalf("expected exactly one alert, got %d: %+v", len(alerts), alerts)
	}

	alert := alerts[0]
	if alert.Type != model.ThreatSuspiciousPattern || alert.Detector != "gas_anomaly" {
		t.Fatalf("unexpected alert: %+v", alert)
	}
	if alert.Severity != model.SeverityMedium {
		t.Fatalf("expected medium, got %s", alert.Severity)
	}
	if math.Abs(alert.Confidence-0.3075) > 0.001 {
		t.Fatalf("confidence mismatch: %v", alert.Confidence)
	}
	if alert.TargetContract != contract.Hex() || alert.TxHash != "0xgas" {
		t.Fatalf("alert target mismatch: %+v", alert)
	}
}

func TestGasAnomalySeverity(t *testing.T) {
	tests := []struct {
		name     string
		price    *big.Int
		fires    bool
		severity model.Severity
		conf     float64
	}{
		{"at threshold", gweiOf(120), false, "", 0},
		{"just above", new(big.Int).Add(gweiOf(120), big.NewInt(1)), true, model.SeverityMedium, 0.3},
		{"exactly double", gweiOf(240), true, model.SeverityMedium, 0.6},
		{"above double", new(big.Int).Add(gweiOf(240), big.NewInt(1)), true, model.SeverityHigh, 0.6},
		{"capped", gweiOf(1200), true, model.SeverityHigh, 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := newTestSet(t)
			alerts := set.Analyze(txTo("0x1", contract, tt.price, 0))
			if !tt.fires {
				if len(alerts) != 0 {
					t.Fatalf("expected no alerts, got %+v", alerts)
				}
				return
			}
			if len(alerts) != 1 {
				t.Fatalf("expected one alert, got %+v", alerts)
			}
			if alerts[0].Severity != tt.severity {
				t.Fatalf("severity mismatch: %s", alerts[0].Severity)
			}
			if math.Abs(alerts[0].Confidence-tt.conf) > 1e-6 {
				t.Fatalf("confidence mismatch: %v", alerts[0].Confidence)
			}
		})
	}
}

func TestLargeValueSeverity(t *testing.T) {
	tests := []struct {
		name     string
		value    *big.Int
		fires    bool
		severity model.Severity
	}{
		{"at minimum", etherOf(100), false, ""},
		{"above minimum", new(big.Int).Add(etherOf(100), big.NewInt(1)), true, model.SeverityMedium},
		{"ten times", etherOf(1000), true, model.SeverityMedium},
		{"above ten times", new(big.Int).Add(etherOf(1000), big.NewInt(1)), true, model.SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := newTestSet(t)
			tx := txTo("0x1", contract, gweiOf(10), 0)
			tx.Value = tt.value
			alerts := set.Analyze(tx)
			if !tt.fires {
				if len(alerts) != 0 {
					t.Fatalf("expected no alerts, got %+v", alerts)
				}
				return
			}
			if len(alerts) != 1 {
				t.Fatalf("expected one alert, got %+v", alerts)
			}
			if alerts[0].Type != model.ThreatFlashLoanAttack || alerts[0].Severity != tt.severity {
				t.Fatalf("unexpected alert: %+v", alerts[0])
			}
			if alerts[0].Confidence != 0.6 {
				t.Fatalf("confidence mismatch: %v", alerts[0].Confidence)
			}
		})
	}
}

func TestContractCreationScenario(t *testing.T) {
	set := newTestSet(t)
	tx := model.Transaction{
		Hash:     "0xcreate",
		From:     sender,
		Value:    new(big.Int),
		GasPrice: gweiOf(10),
		Input:    make([]byte, 1500),
	}

	alerts := set.Analyze(tx)
	if len(alerts) != 1 {
		t.Fatalf("expected exactly one alert, got %+v", alerts)
	}
	alert := alerts[0]
	if alert.Type != model.ThreatSuspiciousPattern || alert.Severity != model.SeverityLow || alert.Confidence != 0.4 {
		t.Fatalf("unexpected alert: %+v", alert)
	}
	if alert.TargetContract != "" {
		t.Fatalf("creation alert should have no target: %q", alert.TargetContract)
	}

	small := tx
	small.Hash = "0xsmall"
	small.Input = make([]byte, 1000)
	if alerts := set.Analyze(small); len(alerts) != 0 {
		t.Fatalf("1000-byte creation should not fire: %+v", alerts)
	}
}

func TestMEVPattern(t *testing.T) {
	set := newTestSet(t)
	for i := 0; i < 3; i++ {
		if alerts := set.Analyze(txTo("0xprior", contract, gweiOf(10), 0)); len(alerts) != 0 {
			t.Fatalf("priors should be quiet: %+v", alerts)
		}
	}

	alerts := set.Analyze(txTo("0xmev", contract, gweiOf(70), 20))
	if len(alerts) != 1 {
		t.Fatalf("expected one MEV alert, got %+v", alerts)
	}
	if alerts[0].Type != model.ThreatMEVAttack || alerts[0].Severity != model.SeverityMedium || alerts[0].Confidence != 0.7 {
		t.Fatalf("unexpected alert: %+v", alerts[0])
	}
}

func TestMEVPatternNeedsHistory(t *testing.T) {
	set := newTestSet(t)
	set.Analyze(txTo("0xprior1", contract, gweiOf(10), 0))
	set.Analyze(txTo("0xprior2", contract, gweiOf(10), 0))

	if alerts := set.Analyze(txTo("0xmev", contract, gweiOf(70), 20)); len(alerts) != 0 {
		t.Fatalf("two prior entries are not enough: %+v", alerts)
	}
}

func TestMEVPatternGuards(t *testing.T) {
	tests := []struct {
		name  string
		prior *big.Int
		price *big.Int
		input int
	}{
		{"below half threshold", gweiOf(10), gweiOf(60), 20},
		{"short payload", gweiOf(10), gweiOf(70), 10},
		{"not above 3x average", gweiOf(25), gweiOf(75), 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := newTestSet(t)
			for i := 0; i < 3; i++ {
				set.Analyze(txTo("0xprior", contract, tt.prior, 0))
			}
			if alerts := set.Analyze(txTo("0xtx", contract, tt.price, tt.input)); len(alerts) != 0 {
				t.Fatalf("expected no alerts, got %+v", alerts)
			}
		})
	}
}

func TestHighFrequencyInteraction(t *testing.T) {
	set := newTestSet(t)
	for i := 1; i <= 100; i++ {
		if alerts := set.Analyze(txTo("0xcall", contract, gweiOf(1), 4)); len(alerts) != 0 {
			t.Fatalf("call %d should not fire: %+v", i, alerts)
		}
	}

	alerts := set.Analyze(txTo("0xcall101", contract, gweiOf(1), 4))
	if len(alerts) != 1 {
		t.Fatalf("expected alert on call 101, got %+v", alerts)
	}
	if alerts[0].Severity != model.SeverityLow || alerts[0].Confidence != 0.5 {
		t.Fatalf("unexpected alert: %+v", alerts[0])
	}

	// plain transfers do not count but still see the existing count
	alerts = set.Analyze(txTo("0xplain", contract, gweiOf(1), 0))
	if len(alerts) != 1 {
		t.Fatalf("expected alert for plain transfer to hot contract, got %+v", alerts)
	}
	if got := set.Counter().Count(contract); got != 101 {
		t.Fatalf("counter mismatch: %d", got)
	}
}

func TestBookkeepingOncePerTransaction(t *testing.T) {
	set := newTestSet(t)
	// fires gas anomaly and large value at once
	tx := txTo("0xboth", contract, gweiOf(500), 50)
	tx.Value = etherOf(5000)

	alerts := set.Analyze(tx)
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %+v", alerts)
	}
	if got := set.Counter().Count(contract); got != 1 {
		t.Fatalf("counter should increment once, got %d", got)
	}
	if got := len(set.Windows().Window(tx)); got != 1 {
		t.Fatalf("window should hold one entry, got %d", got)
	}
}
