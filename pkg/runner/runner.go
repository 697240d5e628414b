// Package runner executes batches of image-generation jobs against a
// Generator backend with bounded concurrency, records every outcome in
// the session ledger, and surfaces budget advisories as spend grows.
//
// Retry policy lives here, not in the ledger: the ledger only ever sees
// finished attempts. Each job produces exactly one terminal record
// (success or failed); intermediate failed attempts are optionally
// recorded with status retried at zero cost.
package runner

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/tommybebe/novel-to-toon/pkg/budget"
	"github.com/tommybebe/novel-to-toon/pkg/config"
	"github.com/tommybebe/novel-to-toon/pkg/ledger"
	"github.com/tommybebe/novel-to-toon/pkg/models"
)

// Generator is the image backend the runner drives. Implementations
// call a real API; tests substitute a stub.
type Generator interface {
	Generate(ctx context.Context, job Job) (Result, error)
}

// Job describes one generation request.
type Job struct {
	OperationTag string
	SceneID      string
	Phase        string
	Model        string
	Resolution   models.ResolutionTier
	Batch        bool
	Prompt       string
	Tags         map[string]string
}

// Result is what the backend reports for a finished generation. Zero
// GenerationTimeMS means the backend did not measure it and the runner
// substitutes wall-clock time.
type Result struct {
	PromptTokens     int
	OutputTokens     int
	CachedTokens     int
	Megapixels       float64
	GenerationTimeMS int64
}

// Runner drives jobs through a Generator and into a ledger.
type Runner struct {
	gen           Generator
	led           *ledger.Ledger
	mon           *budget.Monitor
	workers       int
	maxAttempts   int
	backoff       time.Duration
	recordRetries bool
}

// New creates a Runner. The monitor may be nil to disable advisories.
func New(gen Generator, led *ledger.Ledger, mon *budget.Monitor, cfg config.RunnerConfig) *Runner {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Runner{
		gen:           gen,
		led:           led,
		mon:           mon,
		workers:       workers,
		maxAttempts:   attempts,
		backoff:       cfg.RetryBackoff,
		recordRetries: cfg.RecordRetries,
	}
}

// Run executes all jobs and blocks until every dispatched job has a
// terminal ledger record. Worker count bounds concurrency. On context
// cancellation the remaining queue is abandoned and Run returns the
// context error; jobs already in flight still record their outcome.
func (r *Runner) Run(ctx context.Context, jobs []Job) error {
	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return err
		}
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			defer func() { <-sem }()
			r.runJob(ctx, job)
		}(job)
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// runJob attempts one job up to maxAttempts times and records exactly
// one terminal outcome.
func (r *Runner) runJob(ctx context.Context, job Job) {
	var lastErr error
	var lastMS int64
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		start := time.Now()
		res, err := r.gen.Generate(ctx, job)
		elapsed := time.Since(start).Milliseconds()
		if err == nil {
			r.record(job, res, elapsed, models.StatusSuccess, "")
			return
		}
		lastErr = err
		lastMS = elapsed

		if attempt < r.maxAttempts && ctx.Err() == nil {
			log.Printf("generate %s failed (attempt %d/%d): %v, retrying", job.OperationTag, attempt, r.maxAttempts, err)
			if r.recordRetries {
				r.record(job, Result{}, elapsed, models.StatusRetried, err.Error())
			}
			if !r.wait(ctx, attempt) {
				break
			}
			continue
		}
		break
	}

	log.Printf("generate %s failed permanently: %v", job.OperationTag, lastErr)
	r.record(job, Result{}, lastMS, models.StatusFailed, lastErr.Error())
}

// wait sleeps for the linear backoff of the given attempt. It returns
// false if the context was cancelled while waiting.
func (r *Runner) wait(ctx context.Context, attempt int) bool {
	if r.backoff <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(r.backoff * time.Duration(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (r *Runner) record(job Job, res Result, wallMS int64, status models.CallStatus, errMsg string) {
	genMS := res.GenerationTimeMS
	if genMS == 0 {
		genMS = wallMS
	}
	_, err := r.led.Record(models.CallInput{
		Model:            job.Model,
		OperationTag:     job.OperationTag,
		Phase:            job.Phase,
		SceneID:          job.SceneID,
		Resolution:       job.Resolution,
		Batch:            job.Batch,
		Megapixels:       res.Megapixels,
		PromptTokens:     res.PromptTokens,
		OutputTokens:     res.OutputTokens,
		CachedTokens:     res.CachedTokens,
		GenerationTimeMS: genMS,
		Status:           status,
		ErrorMessage:     errMsg,
		Tags:             job.Tags,
	})
	if err != nil {
		log.Printf("record %s: %v", job.OperationTag, err)
		return
	}
	if r.mon != nil && status == models.StatusSuccess {
		r.mon.Check(r.led)
		if job.Phase != "" {
			r.mon.CheckPhase(r.led, job.Phase)
		}
	}
}
