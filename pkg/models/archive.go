package models

import "time"

// ArchiveSession is one imported report in the cross-session archive.
type ArchiveSession struct {
	SessionID    string    `json:"session_id"`
	StartedAt    time.Time `json:"started_at"`
	ImportedAt   time.Time `json:"imported_at"`
	TotalCalls   int       `json:"total_calls"`
	TotalCostUSD float64   `json:"total_cost_usd"`
	SourcePath   string    `json:"source_path"`
}

// ArchiveTotal is an aggregate archive row grouped by model, phase, or day.
type ArchiveTotal struct {
	Key     string  `json:"key"`
	Calls   int     `json:"calls"`
	CostUSD float64 `json:"cost_usd"`
}
