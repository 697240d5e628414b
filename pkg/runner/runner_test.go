package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tommybebe/novel-to-toon/pkg/config"
	"github.com/tommybebe/novel-to-toon/pkg/ledger"
	"github.com/tommybebe/novel-to-toon/pkg/models"
	"github.com/tommybebe/novel-to-toon/pkg/pricing"
)

func testLedger() *ledger.Ledger {
	table := pricing.NewTable(map[string]pricing.Rate{
		"flash": {Default: 0.2, BatchDiscount: 0.5},
	}, 0)
	return ledger.New("session-test", table)
}

func cents(usd float64) int64 {
	if usd < 0 {
		return -cents(-usd)
	}
	return int64(usd*100 + 0.5)
}

// scriptedGen fails each job a configured number of times before
// succeeding with a fixed result.
type scriptedGen struct {
	mu        sync.Mutex
	failures  map[string]int
	attempted map[string]int
	result    Result
}

func (g *scriptedGen) Generate(ctx context.Context, job Job) (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.attempted == nil {
		g.attempted = make(map[string]int)
	}
	g.attempted[job.OperationTag]++
	if g.attempted[job.OperationTag] <= g.failures[job.OperationTag] {
		return Result{}, errors.New("rate limited")
	}
	return g.result, nil
}

// gaugeGen tracks the peak number of concurrent Generate calls.
type gaugeGen struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
}

func (g *gaugeGen) Generate(ctx context.Context, job Job) (Result, error) {
	g.mu.Lock()
	g.inFlight++
	if g.inFlight > g.maxSeen {
		g.maxSeen = g.inFlight
	}
	g.mu.Unlock()
	time.Sleep(10 * time.Millisecond)
	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
	return Result{GenerationTimeMS: 10}, nil
}

// blockingGen holds every call open until the context is cancelled.
type blockingGen struct{}

func (blockingGen) Generate(ctx context.Context, job Job) (Result, error) {
	<-ctx.Done()
	return Result{}, ctx.Err()
}

func flashJobs(n int) []Job {
	jobs := make([]Job, n)
	for i := range jobs {
		jobs[i] = Job{
			OperationTag: "panel_" + string(rune('a'+i)),
			Phase:        "panel_generation",
			Model:        "flash",
			Resolution:   models.Resolution1K,
			Tags:         map[string]string{"scene": "s1"},
		}
	}
	return jobs
}

func TestRunRecordsEveryJob(t *testing.T) {
	led := testLedger()
	gen := &scriptedGen{result: Result{PromptTokens: 80, OutputTokens: 900, GenerationTimeMS: 1200}}
	r := New(gen, led, nil, config.RunnerConfig{Workers: 3, MaxAttempts: 3})

	if err := r.Run(context.Background(), flashJobs(8)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if led.Len() != 8 {
		t.Fatalf("expected 8 records, got %d", led.Len())
	}
	if got := cents(led.TotalCost()); got != 160 {
		t.Errorf("expected total 160 cents, got %d", got)
	}
	for _, rec := range led.All() {
		if rec.Status != models.StatusSuccess {
			t.Errorf("%s: expected success, got %s", rec.OperationTag, rec.Status)
		}
		if rec.GenerationTimeMS != 1200 {
			t.Errorf("%s: expected backend-reported 1200ms, got %d", rec.OperationTag, rec.GenerationTimeMS)
		}
		if rec.PromptTokens != 80 || rec.OutputTokens != 900 {
			t.Errorf("%s: token counts not carried through: %+v", rec.OperationTag, rec)
		}
		if rec.Tags["scene"] != "s1" {
			t.Errorf("%s: job tags not carried through: %v", rec.OperationTag, rec.Tags)
		}
	}
}

func TestRunFallsBackToWallClock(t *testing.T) {
	led := testLedger()
	gen := &slowGen{delay: 50 * time.Millisecond}
	r := New(gen, led, nil, config.RunnerConfig{Workers: 1, MaxAttempts: 1})

	if err := r.Run(context.Background(), flashJobs(1)); err != nil {
		t.Fatalf("run: %v", err)
	}
	rec, ok := led.LastCall()
	if !ok {
		t.Fatal("expected a record")
	}
	if rec.GenerationTimeMS < 20 {
		t.Errorf("expected wall-clock generation time, got %dms", rec.GenerationTimeMS)
	}
}

type slowGen struct{ delay time.Duration }

func (g *slowGen) Generate(ctx context.Context, job Job) (Result, error) {
	time.Sleep(g.delay)
	return Result{}, nil
}

func TestRunRecordsRetriedAttempts(t *testing.T) {
	led := testLedger()
	gen := &scriptedGen{
		failures: map[string]int{"flaky": 2},
		result:   Result{GenerationTimeMS: 900},
	}
	r := New(gen, led, nil, config.RunnerConfig{Workers: 1, MaxAttempts: 3, RecordRetries: true})

	jobs := []Job{{OperationTag: "flaky", Phase: "panel_generation", Model: "flash", Resolution: models.Resolution1K}}
	if err := r.Run(context.Background(), jobs); err != nil {
		t.Fatalf("run: %v", err)
	}

	calls := led.All()
	if len(calls) != 3 {
		t.Fatalf("expected 2 retried + 1 success records, got %d", len(calls))
	}
	for _, rec := range calls[:2] {
		if rec.Status != models.StatusRetried {
			t.Errorf("expected retried, got %s", rec.Status)
		}
		if rec.CostUSD != 0 {
			t.Errorf("retried attempt should cost nothing, got %f", rec.CostUSD)
		}
		if rec.ErrorMessage != "rate limited" {
			t.Errorf("expected error message on retried attempt, got %q", rec.ErrorMessage)
		}
	}
	if calls[2].Status != models.StatusSuccess {
		t.Errorf("expected terminal success, got %s", calls[2].Status)
	}
	if got := cents(led.TotalCost()); got != 20 {
		t.Errorf("only the success should be billed: expected 20 cents, got %d", got)
	}
}

func TestRunRecordsFailureAfterExhaustedAttempts(t *testing.T) {
	led := testLedger()
	gen := &scriptedGen{failures: map[string]int{"doomed": 99}}
	r := New(gen, led, nil, config.RunnerConfig{Workers: 1, MaxAttempts: 2})

	jobs := []Job{{OperationTag: "doomed", Phase: "panel_generation", Model: "flash", Resolution: models.Resolution1K}}
	if err := r.Run(context.Background(), jobs); err != nil {
		t.Fatalf("run: %v", err)
	}

	if led.Len() != 1 {
		t.Fatalf("expected a single terminal record, got %d", led.Len())
	}
	rec, _ := led.LastCall()
	if rec.Status != models.StatusFailed {
		t.Errorf("expected failed, got %s", rec.Status)
	}
	if rec.CostUSD != 0 {
		t.Errorf("failed job should cost nothing, got %f", rec.CostUSD)
	}
	if rec.ErrorMessage != "rate limited" {
		t.Errorf("expected last error message, got %q", rec.ErrorMessage)
	}
	if led.TotalCost() != 0 {
		t.Errorf("expected zero total, got %f", led.TotalCost())
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	led := testLedger()
	gen := &gaugeGen{}
	r := New(gen, led, nil, config.RunnerConfig{Workers: 2, MaxAttempts: 1})

	if err := r.Run(context.Background(), flashJobs(6)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if led.Len() != 6 {
		t.Fatalf("expected 6 records, got %d", led.Len())
	}
	if gen.maxSeen > 2 {
		t.Errorf("expected at most 2 concurrent generations, saw %d", gen.maxSeen)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	led := testLedger()
	r := New(blockingGen{}, led, nil, config.RunnerConfig{Workers: 1, MaxAttempts: 3, RetryBackoff: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := r.Run(ctx, flashJobs(5))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if led.Len() >= 5 {
		t.Errorf("expected the queue to be abandoned, got %d records", led.Len())
	}
	for _, rec := range led.All() {
		if rec.Status != models.StatusFailed {
			t.Errorf("in-flight job should record failed, got %s", rec.Status)
		}
	}
}
