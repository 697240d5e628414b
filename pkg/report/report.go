// Package report persists a session ledger as a JSON report document.
//
// The exported file is the session's only durable artifact. It carries the
// computed summary plus every call record, so the summary can always be
// recomputed from the calls it ships with and checked against the stored one.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/tommybebe/novel-to-toon/pkg/ledger"
	"github.com/tommybebe/novel-to-toon/pkg/models"
	"github.com/tommybebe/novel-to-toon/pkg/pricing"
)

// ErrInconsistent is returned when a report's stored summary does not match
// the summary recomputed from its calls.
var ErrInconsistent = errors.New("report summary does not match its calls")

// Report is the exported spend document.
type Report struct {
	Summary models.SpendSummary `json:"summary"`
	Calls   []models.CallRecord `json:"calls"`
}

// Build assembles the report document for a ledger.
func Build(led *ledger.Ledger, budget models.BudgetConfig) *Report {
	calls := led.All()
	return &Report{
		Summary: ledger.Summarize(led.SessionID(), led.StartedAt(), budget.TotalUSD, calls),
		Calls:   calls,
	}
}

// Write exports a ledger to path. Exporting an unchanged ledger twice
// produces byte-identical files.
func Write(path string, led *ledger.Ledger, budget models.BudgetConfig) error {
	return WriteReport(path, Build(led, budget))
}

// WriteReport writes a report as two-space-indented JSON, creating parent
// directories as needed.
func WriteReport(path string, rep *Report) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Load reads a previously exported report.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return &rep, nil
}

// Restore rebuilds a live ledger from a report so a session can continue
// across process boundaries. Stored costs are kept untouched.
func Restore(rep *Report, table *pricing.Table) *ledger.Ledger {
	return ledger.Restore(rep.Summary.SessionID, rep.Summary.StartedAt, table, rep.Calls)
}

// Recompute derives the summary from the report's calls alone, using the
// identity fields carried in the stored summary.
func (r *Report) Recompute() models.SpendSummary {
	return ledger.Summarize(r.Summary.SessionID, r.Summary.StartedAt, r.Summary.BudgetUSD, r.Calls)
}

// Verify checks that the stored summary matches the summary recomputed from
// the stored calls.
func (r *Report) Verify() error {
	recomputed := r.Recompute()
	if !reflect.DeepEqual(recomputed, r.Summary) {
		return fmt.Errorf("%w: stored $%.4f over %d calls, recomputed $%.4f over %d calls",
			ErrInconsistent,
			r.Summary.TotalCostUSD, r.Summary.TotalCalls,
			recomputed.TotalCostUSD, recomputed.TotalCalls)
	}
	return nil
}
