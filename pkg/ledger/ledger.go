// Package ledger holds the in-memory spend ledger for one pipeline session.
//
// The ledger is append-only: records are priced and stamped when recorded and
// never mutated afterwards. It lives for the duration of a session and is
// durable only through report export.
package ledger

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/tommybebe/novel-to-toon/pkg/models"
	"github.com/tommybebe/novel-to-toon/pkg/pricing"
)

// ErrInvalidCall is returned when call metadata fails validation.
var ErrInvalidCall = errors.New("invalid call metadata")

// Ledger records generation calls for one session. Safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	calls    []models.CallRecord
	totalUSD float64

	sessionID string
	startedAt time.Time
	table     *pricing.Table
	now       func() time.Time
}

// New creates an empty ledger. An empty sessionID is auto-generated from the
// start time; a nil table uses the default pricing table.
func New(sessionID string, table *pricing.Table) *Ledger {
	if table == nil {
		table = pricing.Default()
	}
	l := &Ledger{
		table: table,
		now:   func() time.Time { return time.Now().UTC() },
	}
	l.startedAt = l.now()
	if sessionID == "" {
		sessionID = generateSessionID(l.startedAt)
	}
	l.sessionID = sessionID
	return l
}

// Restore rebuilds a ledger from previously exported records. Stored costs
// are kept as-is; records are never re-priced.
func Restore(sessionID string, startedAt time.Time, table *pricing.Table, calls []models.CallRecord) *Ledger {
	l := New(sessionID, table)
	if !startedAt.IsZero() {
		l.startedAt = startedAt
	}
	l.calls = append(l.calls, calls...)
	for _, c := range calls {
		l.totalUSD += c.CostUSD
	}
	return l
}

// generateSessionID creates an ID like session-20260114-093042.
func generateSessionID(t time.Time) string {
	return "session-" + t.Format("20060102-150405")
}

// Record validates, prices, and appends one call, returning the stored
// record. The ledger owns cost computation; callers never pass a cost.
func (l *Ledger) Record(in models.CallInput) (models.CallRecord, error) {
	if err := validate(in); err != nil {
		return models.CallRecord{}, err
	}

	status := in.Status
	if status == "" {
		status = models.StatusSuccess
	}

	rec := models.CallRecord{
		Model:            in.Model,
		OperationTag:     in.OperationTag,
		Phase:            in.Phase,
		SceneID:          in.SceneID,
		Resolution:       in.Resolution,
		Batch:            in.Batch,
		Megapixels:       in.Megapixels,
		PromptTokens:     in.PromptTokens,
		OutputTokens:     in.OutputTokens,
		CachedTokens:     in.CachedTokens,
		Status:           status,
		GenerationTimeMS: in.GenerationTimeMS,
		ErrorMessage:     in.ErrorMessage,
	}
	if len(in.Tags) > 0 {
		// Copy so later caller mutations cannot reach the stored record.
		rec.Tags = maps.Clone(in.Tags)
	}

	// Only successful calls spend money. Failed and retried attempts are
	// recorded for visibility at zero cost.
	if status == models.StatusSuccess {
		q := l.table.Quote(in.Model, in.Resolution, in.Batch, in.Megapixels)
		rec.CostUSD = q.USD
		rec.FallbackPricing = q.Fallback
	}

	l.mu.Lock()
	rec.Timestamp = l.now()
	l.calls = append(l.calls, rec)
	l.totalUSD += rec.CostUSD
	l.mu.Unlock()

	return rec, nil
}

func validate(in models.CallInput) error {
	switch {
	case in.Model == "":
		return fmt.Errorf("%w: model is required", ErrInvalidCall)
	case in.OperationTag == "":
		return fmt.Errorf("%w: operation tag is required", ErrInvalidCall)
	case in.PromptTokens < 0 || in.OutputTokens < 0 || in.CachedTokens < 0:
		return fmt.Errorf("%w: negative token count", ErrInvalidCall)
	case in.GenerationTimeMS < 0:
		return fmt.Errorf("%w: negative generation time", ErrInvalidCall)
	case in.Megapixels < 0:
		return fmt.Errorf("%w: negative megapixels", ErrInvalidCall)
	}

	switch in.Status {
	case "", models.StatusSuccess, models.StatusFailed, models.StatusRetried:
		return nil
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidCall, in.Status)
	}
}

// SessionID returns the session identifier.
func (l *Ledger) SessionID() string { return l.sessionID }

// StartedAt returns the session start time.
func (l *Ledger) StartedAt() time.Time { return l.startedAt }

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

// TotalCost returns the running session cost in USD.
func (l *Ledger) TotalCost() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalUSD
}

// PhaseCost returns the cost of records in one phase. Untagged records count
// under the "unspecified" phase.
func (l *Ledger) PhaseCost(phase string) float64 {
	key := PhaseKey(phase)
	l.mu.Lock()
	defer l.mu.Unlock()
	var total float64
	for _, c := range l.calls {
		if PhaseKey(c.Phase) == key {
			total += c.CostUSD
		}
	}
	return total
}

// All returns a copy of the records in append order.
func (l *Ledger) All() []models.CallRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.CallRecord, len(l.calls))
	copy(out, l.calls)
	return out
}

// LastCall returns the most recent record, if any.
func (l *Ledger) LastCall() (models.CallRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.calls) == 0 {
		return models.CallRecord{}, false
	}
	return l.calls[len(l.calls)-1], true
}

// Summary computes the aggregated view of the ledger.
func (l *Ledger) Summary(budget models.BudgetConfig) models.SpendSummary {
	return Summarize(l.sessionID, l.startedAt, budget.TotalUSD, l.All())
}

// StatusLine returns the compact running-spend view.
func (l *Ledger) StatusLine(budget models.BudgetConfig) models.StatusLine {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := models.StatusLine{
		TotalCostUSD: round4(l.totalUSD),
		BudgetUSD:    budget.TotalUSD,
		PercentUsed:  round2(PercentOfBudget(l.totalUSD, budget.TotalUSD)),
		TotalCalls:   len(l.calls),
	}
	if n := len(l.calls); n > 0 {
		last := l.calls[n-1]
		line.LastCall = &models.LastCall{
			Model:        last.Model,
			OperationTag: last.OperationTag,
			CostUSD:      last.CostUSD,
		}
	}
	return line
}
