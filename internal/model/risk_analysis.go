package model

// CategoryRisk is the parsed opinion for one threat category.
type CategoryRisk struct {
	Present bool    `json:"present"`
	Risk    float64 `json:"risk"`
}

// RiskAnalysis is the structured form of an external intelligence response.
type RiskAnalysis struct {
	RugPull     CategoryRisk `json:"rug_pull"`
	FlashLoan   CategoryRisk `json:"flash_loan"`
	MEV         CategoryRisk `json:"mev"`
	OverallRisk float64      `json:"overall_risk"`
	Confidence  float64      `json:"confidence"`
	Summary     string       `json:"summary"`
	DataSources []string     `json:"data_sources,omitempty"`
}
