package ledger

import (
	"math"
	"time"

	"github.com/tommybebe/novel-to-toon/pkg/models"
)

// PhaseKey returns the breakdown key for a phase, "unspecified" when empty.
func PhaseKey(phase string) string {
	if phase == "" {
		return "unspecified"
	}
	return phase
}

// TotalCost sums record costs.
func TotalCost(calls []models.CallRecord) float64 {
	var total float64
	for _, c := range calls {
		total += c.CostUSD
	}
	return total
}

// GroupTotals aggregates cost and call count by an arbitrary projection of
// each record. The by-model and by-phase breakdowns are both built on it.
func GroupTotals(calls []models.CallRecord, key func(models.CallRecord) string) map[string]models.GroupTotal {
	totals := make(map[string]models.GroupTotal)
	for _, c := range calls {
		t := totals[key(c)]
		t.Calls++
		t.CostUSD += c.CostUSD
		totals[key(c)] = t
	}
	return totals
}

// PercentOfBudget returns spent as a percentage of the budget. A zero or
// negative budget reports 0 rather than dividing by zero.
func PercentOfBudget(spentUSD, budgetUSD float64) float64 {
	if budgetUSD <= 0 {
		return 0
	}
	return spentUSD / budgetUSD * 100
}

// Summarize computes the aggregate view of a set of call records. It is a
// pure function of its inputs, so a summary recomputed from an exported
// report reproduces the stored one exactly.
func Summarize(sessionID string, startedAt time.Time, budgetUSD float64, calls []models.CallRecord) models.SpendSummary {
	byModel := GroupTotals(calls, func(c models.CallRecord) string { return c.Model })
	byPhase := GroupTotals(calls, func(c models.CallRecord) string { return PhaseKey(c.Phase) })
	for k, v := range byModel {
		v.CostUSD = round4(v.CostUSD)
		byModel[k] = v
	}
	for k, v := range byPhase {
		v.CostUSD = round4(v.CostUSD)
		byPhase[k] = v
	}

	byStatus := map[string]int{
		string(models.StatusSuccess): 0,
		string(models.StatusFailed):  0,
		string(models.StatusRetried): 0,
	}

	var tokens models.TokenTotals
	var totalTimeMS int64
	for _, c := range calls {
		byStatus[string(c.Status)]++
		tokens.Prompt += int64(c.PromptTokens)
		tokens.Output += int64(c.OutputTokens)
		tokens.Cached += int64(c.CachedTokens)
		totalTimeMS += c.GenerationTimeMS
	}

	total := round4(TotalCost(calls))
	sum := models.SpendSummary{
		SessionID:             sessionID,
		StartedAt:             startedAt,
		TotalCalls:            len(calls),
		TotalCostUSD:          total,
		BudgetUSD:             budgetUSD,
		PercentOfBudget:       round2(PercentOfBudget(total, budgetUSD)),
		ByModel:               byModel,
		ByPhase:               byPhase,
		ByStatus:              byStatus,
		TotalTokens:           tokens,
		TotalGenerationTimeMS: totalTimeMS,
	}
	if len(calls) > 0 {
		sum.AvgGenerationTimeMS = round2(float64(totalTimeMS) / float64(len(calls)))
	}
	return sum
}

func round4(x float64) float64 { return math.Round(x*10000) / 10000 }

func round2(x float64) float64 { return math.Round(x*100) / 100 }
