// Package budget watches session spend against configured ceilings.
//
// The monitor is advisory: it classifies spend and reports, the workflow
// decides what to do. Nothing here ever blocks a call.
package budget

import (
	"io"
	"os"
	"sort"

	"github.com/fatih/color"

	"github.com/tommybebe/novel-to-toon/pkg/ledger"
	"github.com/tommybebe/novel-to-toon/pkg/models"
)

// Severity thresholds, as percent of a ceiling.
const (
	warnPercent     = 75
	criticalPercent = 90
)

// SessionScope names the whole-session ceiling in budget statuses.
const SessionScope = "session"

var (
	warnColor     = color.New(color.FgYellow, color.Bold)
	criticalColor = color.New(color.FgRed, color.Bold)
)

// Monitor checks ledger spend against the configured ceilings.
type Monitor struct {
	cfg   models.BudgetConfig
	alert io.Writer
}

// New creates a Monitor that writes advisories to stderr.
func New(cfg models.BudgetConfig) *Monitor {
	return &Monitor{cfg: cfg, alert: os.Stderr}
}

// Check classifies total session spend against the session ceiling and emits
// an advisory when the state is WARNING or CRITICAL.
func (m *Monitor) Check(led *ledger.Ledger) models.BudgetStatus {
	st := classify(SessionScope, led.TotalCost(), m.cfg.TotalUSD)
	m.advise(st)
	return st
}

// CheckPhase classifies one phase's spend against its ceiling. Phases
// without a configured ceiling always report OK.
func (m *Monitor) CheckPhase(led *ledger.Ledger, phase string) models.BudgetStatus {
	st := classify(phase, led.PhaseCost(phase), m.cfg.Phases[phase])
	m.advise(st)
	return st
}

// Statuses returns the session status followed by every configured phase, in
// phase-name order, without emitting advisories.
func (m *Monitor) Statuses(led *ledger.Ledger) []models.BudgetStatus {
	statuses := []models.BudgetStatus{
		classify(SessionScope, led.TotalCost(), m.cfg.TotalUSD),
	}

	phases := make([]string, 0, len(m.cfg.Phases))
	for name := range m.cfg.Phases {
		phases = append(phases, name)
	}
	sort.Strings(phases)
	for _, name := range phases {
		statuses = append(statuses, classify(name, led.PhaseCost(name), m.cfg.Phases[name]))
	}
	return statuses
}

// classify maps spend against a ceiling onto OK, WARNING, or CRITICAL.
// Remaining goes negative once the ceiling is blown.
func classify(scope string, spent, ceiling float64) models.BudgetStatus {
	st := models.BudgetStatus{
		Scope:      scope,
		Severity:   models.SeverityOK,
		SpentUSD:   spent,
		CeilingUSD: ceiling,
	}
	if ceiling <= 0 {
		// No ceiling configured: nothing to watch.
		return st
	}

	st.RemainingUSD = ceiling - spent
	st.Percent = ledger.PercentOfBudget(spent, ceiling)
	switch {
	case st.Percent >= criticalPercent:
		st.Severity = models.SeverityCritical
	case st.Percent >= warnPercent:
		st.Severity = models.SeverityWarning
	}
	return st
}

func (m *Monitor) advise(st models.BudgetStatus) {
	switch st.Severity {
	case models.SeverityWarning:
		warnColor.Fprintf(m.alert, "budget warning: %s at %.1f%% ($%.2f of $%.2f)\n",
			st.Scope, st.Percent, st.SpentUSD, st.CeilingUSD)
	case models.SeverityCritical:
		if st.Percent >= 100 {
			criticalColor.Fprintf(m.alert, "over budget: %s at %.1f%% ($%.2f of $%.2f, $%.2f over)\n",
				st.Scope, st.Percent, st.SpentUSD, st.CeilingUSD, -st.RemainingUSD)
			return
		}
		criticalColor.Fprintf(m.alert, "budget critical: %s at %.1f%% ($%.2f of $%.2f)\n",
			st.Scope, st.Percent, st.SpentUSD, st.CeilingUSD)
	}
}
