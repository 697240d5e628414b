package models

// Severity classifies budget consumption against a ceiling.
type Severity string

const (
	SeverityOK       Severity = "ok"
	SeverityWarning  Severity = "warning"  // >= 75% of ceiling
	SeverityCritical Severity = "critical" // >= 90% of ceiling
)

// BudgetConfig sets the session ceiling and optional per-phase ceilings, in
// USD. A zero ceiling disables checking for that scope.
type BudgetConfig struct {
	TotalUSD float64            `json:"total_usd" yaml:"total_usd"`
	Phases   map[string]float64 `json:"phases,omitempty" yaml:"phases,omitempty"`
}

// BudgetStatus reports spend against one ceiling: the whole session or a
// single phase. Remaining goes negative once the ceiling is blown.
type BudgetStatus struct {
	Scope        string   `json:"scope"`
	Severity     Severity `json:"severity"`
	SpentUSD     float64  `json:"spent_usd"`
	CeilingUSD   float64  `json:"ceiling_usd"`
	RemainingUSD float64  `json:"remaining_usd"`
	Percent      float64  `json:"percent"`
}
