package models

import "time"

// GroupTotal aggregates call count and cost for one breakdown key.
type GroupTotal struct {
	Calls   int     `json:"calls"`
	CostUSD float64 `json:"cost_usd"`
}

// TokenTotals sums token counts across a ledger.
type TokenTotals struct {
	Prompt int64 `json:"prompt"`
	Output int64 `json:"output"`
	Cached int64 `json:"cached"`
}

// SpendSummary is the aggregated view of one session's ledger. It is derived
// entirely from the session id, start time, budget ceiling, and call records,
// so recomputing it from an exported report reproduces it exactly.
type SpendSummary struct {
	SessionID             string                `json:"session_id"`
	StartedAt             time.Time             `json:"started_at"`
	TotalCalls            int                   `json:"total_calls"`
	TotalCostUSD          float64               `json:"total_cost_usd"`
	BudgetUSD             float64               `json:"budget_usd"`
	PercentOfBudget       float64               `json:"percent_of_budget"`
	ByModel               map[string]GroupTotal `json:"by_model"`
	ByPhase               map[string]GroupTotal `json:"by_phase"`
	ByStatus              map[string]int        `json:"by_status"`
	TotalTokens           TokenTotals           `json:"total_tokens"`
	TotalGenerationTimeMS int64                 `json:"total_generation_time_ms"`
	AvgGenerationTimeMS   float64               `json:"average_generation_time_ms"`
}

// LastCall identifies the most recent ledger entry for live status output.
type LastCall struct {
	Model        string  `json:"model"`
	OperationTag string  `json:"operation_tag"`
	CostUSD      float64 `json:"cost_usd"`
}

// StatusLine is the compact running-spend view printed after each call.
type StatusLine struct {
	TotalCostUSD float64   `json:"total_cost_usd"`
	BudgetUSD    float64   `json:"budget_usd"`
	PercentUsed  float64   `json:"percent_used"`
	TotalCalls   int       `json:"total_calls"`
	LastCall     *LastCall `json:"last_call,omitempty"`
}
