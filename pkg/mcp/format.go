package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tommybebe/novel-to-toon/pkg/models"
	"github.com/tommybebe/novel-to-toon/pkg/pricing"
)

// formatSpendSummary formats a session spend summary as text tables.
func formatSpendSummary(sum models.SpendSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s (started %s)\n", sum.SessionID, sum.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Total:   $%.4f across %d calls\n", sum.TotalCostUSD, sum.TotalCalls)
	if sum.BudgetUSD > 0 {
		fmt.Fprintf(&b, "Budget:  %.1f%% of $%.2f used\n", sum.PercentOfBudget, sum.BudgetUSD)
	}

	writeGroup := func(title string, groups map[string]models.GroupTotal) {
		if len(groups) == 0 {
			return
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "%-30s %8s %12s\n", title, "Calls", "Cost")
		b.WriteString(strings.Repeat("-", 52) + "\n")
		keys := make([]string, 0, len(groups))
		for k := range groups {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			g := groups[k]
			fmt.Fprintf(&b, "%-30s %8d %12s\n", k, g.Calls, fmt.Sprintf("$%.4f", g.CostUSD))
		}
	}
	writeGroup("Model", sum.ByModel)
	writeGroup("Phase", sum.ByPhase)

	fmt.Fprintf(&b, "\nOutcomes: %d success, %d failed, %d retried\n",
		sum.ByStatus[string(models.StatusSuccess)],
		sum.ByStatus[string(models.StatusFailed)],
		sum.ByStatus[string(models.StatusRetried)])
	fmt.Fprintf(&b, "Tokens:   %d prompt, %d output, %d cached\n",
		sum.TotalTokens.Prompt, sum.TotalTokens.Output, sum.TotalTokens.Cached)
	fmt.Fprintf(&b, "Timing:   %dms total, %.2fms average\n",
		sum.TotalGenerationTimeMS, sum.AvgGenerationTimeMS)
	return b.String()
}

// formatSessions formats archived sessions as a text table.
func formatSessions(sessions []models.ArchiveSession) string {
	if len(sessions) == 0 {
		return "No archived sessions."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-30s %-20s %-20s %6s %12s\n",
		"Session ID", "Started", "Imported", "Calls", "Cost")
	b.WriteString(strings.Repeat("-", 92) + "\n")
	for _, s := range sessions {
		fmt.Fprintf(&b, "%-30s %-20s %-20s %6d %12s\n",
			s.SessionID,
			s.StartedAt.Format("2006-01-02 15:04:05"),
			s.ImportedAt.Format("2006-01-02 15:04:05"),
			s.TotalCalls, fmt.Sprintf("$%.4f", s.TotalCostUSD))
	}
	return b.String()
}

// formatTotals formats archive totals as a text table with a grand
// total row at the bottom.
func formatTotals(header string, rows []models.ArchiveTotal, grand models.ArchiveTotal) string {
	if len(rows) == 0 {
		return "No archived spend found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-34s %8s %12s\n", header, "Calls", "Cost")
	b.WriteString(strings.Repeat("-", 56) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-34s %8d %12s\n", r.Key, r.Calls, fmt.Sprintf("$%.4f", r.CostUSD))
	}
	b.WriteString(strings.Repeat("-", 56) + "\n")
	fmt.Fprintf(&b, "%-34s %8d %12s\n", grand.Key, grand.Calls, fmt.Sprintf("$%.4f", grand.CostUSD))
	return b.String()
}

// formatBudgetStatuses formats budget classifications as a text table.
func formatBudgetStatuses(statuses []models.BudgetStatus) string {
	if len(statuses) == 0 {
		return "No budget ceilings configured."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %-10s %10s %10s %10s %7s\n",
		"Scope", "Status", "Spent", "Ceiling", "Remaining", "Used%")
	b.WriteString(strings.Repeat("-", 76) + "\n")
	for _, st := range statuses {
		fmt.Fprintf(&b, "%-24s %-10s %10s %10s %10s %6.1f%%\n",
			st.Scope,
			strings.ToUpper(string(st.Severity)),
			fmt.Sprintf("$%.2f", st.SpentUSD),
			fmt.Sprintf("$%.2f", st.CeilingUSD),
			fmt.Sprintf("$%.2f", st.RemainingUSD),
			st.Percent)
	}
	return b.String()
}

// formatQuote formats a price quote as text.
func formatQuote(model string, tier models.ResolutionTier, batch bool, count int, q pricing.Quote) string {
	var b strings.Builder
	unit := fmt.Sprintf("$%.4f per image", q.USD)
	if batch {
		unit += " (batch)"
	}
	fmt.Fprintf(&b, "%s @ %s: %s\n", model, tier, unit)
	if count > 1 {
		fmt.Fprintf(&b, "%d images: $%.4f\n", count, q.USD*float64(count))
	}
	if q.Fallback {
		b.WriteString("Note: model not in the pricing table, fallback rate applied.\n")
	}
	return b.String()
}
