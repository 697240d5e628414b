package ledger

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tommybebe/novel-to-toon/pkg/models"
	"github.com/tommybebe/novel-to-toon/pkg/pricing"
)

func testTable() *pricing.Table {
	return pricing.NewTable(map[string]pricing.Rate{
		"flash": {Default: 0.2, BatchDiscount: 0.5},
		"pro": {
			PerImage: map[models.ResolutionTier]float64{
				models.Resolution2K: 0.134,
				models.Resolution4K: 0.24,
			},
			Default:       0.134,
			BatchDiscount: 0.5,
		},
	}, 0)
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRecordPricesSuccessfulCall(t *testing.T) {
	led := New("sess-1", testTable())

	rec, err := led.Record(models.CallInput{
		Model:        "flash",
		OperationTag: "s1_p01",
		Phase:        "panel_generation",
		PromptTokens: 80,
		OutputTokens: 900,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !closeTo(rec.CostUSD, 0.2) {
		t.Errorf("expected cost 0.2, got %v", rec.CostUSD)
	}
	if rec.Status != models.StatusSuccess {
		t.Errorf("empty status should default to success, got %q", rec.Status)
	}
	if rec.Timestamp.IsZero() {
		t.Error("record must be timestamped")
	}
	if !closeTo(led.TotalCost(), 0.2) {
		t.Errorf("expected total 0.2, got %v", led.TotalCost())
	}
}

func TestRecordFailedCallCostsNothing(t *testing.T) {
	led := New("sess-1", testTable())

	rec, err := led.Record(models.CallInput{
		Model:        "flash",
		OperationTag: "s1_p06",
		Status:       models.StatusFailed,
		ErrorMessage: "content filter triggered",
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.CostUSD != 0 {
		t.Errorf("failed call must cost 0, got %v", rec.CostUSD)
	}
	if rec.ErrorMessage != "content filter triggered" {
		t.Errorf("error message not kept: %q", rec.ErrorMessage)
	}

	rec, err = led.Record(models.CallInput{
		Model:        "flash",
		OperationTag: "s1_p06",
		Status:       models.StatusRetried,
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.CostUSD != 0 {
		t.Errorf("retried call must cost 0, got %v", rec.CostUSD)
	}
	if led.TotalCost() != 0 {
		t.Errorf("expected total 0, got %v", led.TotalCost())
	}
}

func TestRecordUnknownModelFallback(t *testing.T) {
	led := New("sess-1", testTable())

	rec, err := led.Record(models.CallInput{
		Model:        "mystery-model-v9",
		OperationTag: "s1_p01",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !closeTo(rec.CostUSD, 0.05) {
		t.Errorf("expected fallback 0.05, got %v", rec.CostUSD)
	}
	if !rec.FallbackPricing {
		t.Error("fallback-priced record must be flagged")
	}
	if !closeTo(led.TotalCost(), 0.05) {
		t.Errorf("total must include exactly the fallback, got %v", led.TotalCost())
	}
}

func TestRecordRejectsInvalidMetadata(t *testing.T) {
	led := New("sess-1", testTable())

	bad := []models.CallInput{
		{OperationTag: "p1"},                                              // no model
		{Model: "flash"},                                                  // no tag
		{Model: "flash", OperationTag: "p1", PromptTokens: -1},            // negative tokens
		{Model: "flash", OperationTag: "p1", GenerationTimeMS: -5},        // negative time
		{Model: "flash", OperationTag: "p1", Megapixels: -0.5},            // negative size
		{Model: "flash", OperationTag: "p1", Status: models.CallStatus("maybe")}, // unknown status
	}
	for _, in := range bad {
		if _, err := led.Record(in); !errors.Is(err, ErrInvalidCall) {
			t.Errorf("input %+v: expected ErrInvalidCall, got %v", in, err)
		}
	}
	if led.Len() != 0 {
		t.Errorf("rejected calls must not append, got %d records", led.Len())
	}
}

func TestRecordCopiesTags(t *testing.T) {
	led := New("sess-1", testTable())

	tags := map[string]string{"style": "noir", "attempt": "1"}
	rec, err := led.Record(models.CallInput{
		Model:        "flash",
		OperationTag: "s1_p01",
		Tags:         tags,
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Tags["style"] != "noir" || rec.Tags["attempt"] != "1" {
		t.Errorf("tags not kept: %v", rec.Tags)
	}

	// Mutating the caller's map must not reach the stored record.
	tags["style"] = "pastel"
	stored := led.All()[0]
	if stored.Tags["style"] != "noir" {
		t.Errorf("stored tags must be a copy, got %v", stored.Tags)
	}

	rec, err = led.Record(models.CallInput{Model: "flash", OperationTag: "s1_p02"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Tags != nil {
		t.Errorf("untagged call must keep nil tags, got %v", rec.Tags)
	}
}

func TestConcurrentRecords(t *testing.T) {
	led := New("sess-1", testTable())

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := led.Record(models.CallInput{
				Model:        "flash",
				OperationTag: "p",
				Phase:        "panel_generation",
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if led.Len() != n {
		t.Fatalf("expected %d records, got %d", n, led.Len())
	}
	if !closeTo(led.TotalCost(), n*0.2) {
		t.Errorf("expected total %v, got %v", n*0.2, led.TotalCost())
	}
	if len(led.All()) != n {
		t.Errorf("expected %d records from All, got %d", n, len(led.All()))
	}
}

func TestRestoreKeepsStoredCosts(t *testing.T) {
	started := time.Date(2026, 1, 14, 9, 30, 0, 0, time.UTC)
	calls := []models.CallRecord{
		{Model: "retired-model", OperationTag: "a", CostUSD: 1.25, Status: models.StatusSuccess},
		{Model: "retired-model", OperationTag: "b", CostUSD: 0.75, Status: models.StatusSuccess},
	}

	led := Restore("sess-restored", started, testTable(), calls)
	if led.SessionID() != "sess-restored" {
		t.Errorf("session id not kept: %q", led.SessionID())
	}
	if !led.StartedAt().Equal(started) {
		t.Errorf("start time not kept: %v", led.StartedAt())
	}
	// Costs come from the stored records, not the current table.
	if !closeTo(led.TotalCost(), 2.0) {
		t.Errorf("expected restored total 2.0, got %v", led.TotalCost())
	}

	if _, err := led.Record(models.CallInput{Model: "flash", OperationTag: "c"}); err != nil {
		t.Fatal(err)
	}
	if !closeTo(led.TotalCost(), 2.2) {
		t.Errorf("expected 2.2 after new record, got %v", led.TotalCost())
	}
}

func TestStatusLine(t *testing.T) {
	led := New("sess-1", testTable())

	line := led.StatusLine(models.BudgetConfig{TotalUSD: 5})
	if line.TotalCalls != 0 || line.LastCall != nil {
		t.Errorf("empty ledger status line should be empty, got %+v", line)
	}

	led.Record(models.CallInput{Model: "pro", OperationTag: "jin_sohan_base", Resolution: models.Resolution2K, Phase: "character_generation"})
	led.Record(models.CallInput{Model: "flash", OperationTag: "s1_p01", Phase: "panel_generation"})

	line = led.StatusLine(models.BudgetConfig{TotalUSD: 5})
	if line.TotalCalls != 2 {
		t.Errorf("expected 2 calls, got %d", line.TotalCalls)
	}
	if !closeTo(line.TotalCostUSD, 0.334) {
		t.Errorf("expected total 0.334, got %v", line.TotalCostUSD)
	}
	if line.LastCall == nil || line.LastCall.OperationTag != "s1_p01" {
		t.Errorf("last call not reported: %+v", line.LastCall)
	}
	if !closeTo(line.PercentUsed, 6.68) {
		t.Errorf("expected 6.68%%, got %v", line.PercentUsed)
	}
}

func TestSessionIDGenerated(t *testing.T) {
	led := New("", nil)
	if !strings.HasPrefix(led.SessionID(), "session-") {
		t.Errorf("expected generated session id, got %q", led.SessionID())
	}
	if len(led.SessionID()) != len("session-20060102-150405") {
		t.Errorf("unexpected session id shape: %q", led.SessionID())
	}
}
