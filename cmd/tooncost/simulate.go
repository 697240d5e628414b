package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tommybebe/novel-to-toon/pkg/budget"
	"github.com/tommybebe/novel-to-toon/pkg/config"
	"github.com/tommybebe/novel-to-toon/pkg/ledger"
	"github.com/tommybebe/novel-to-toon/pkg/models"
	"github.com/tommybebe/novel-to-toon/pkg/report"
	"github.com/tommybebe/novel-to-toon/pkg/runner"
)

// demoGen replays canned backend results for the simulated workload.
type demoGen struct {
	results map[string]runner.Result
}

func (g *demoGen) Generate(_ context.Context, job runner.Job) (runner.Result, error) {
	return g.results[job.OperationTag], nil
}

func newSimulateCmd() *cobra.Command {
	var (
		configPath string
		reportPath string
		workers    int
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a demo generation workload and export its spend report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return err
			}
			if reportPath == "" {
				reportPath = cfg.ReportPath
			}
			if workers < 1 {
				workers = cfg.Runner.Workers
			}

			led := ledger.New("poc-v2-test-001", cfg.Table())
			mon := budget.New(cfg.Budget)

			jobs, results := demoWorkload(cfg)
			r := runner.New(&demoGen{results: results}, led, mon, config.RunnerConfig{
				Workers:     workers,
				MaxAttempts: 1,
			})
			if err := r.Run(cmd.Context(), jobs); err != nil {
				return err
			}

			// One panel the backend rejects outright, recorded the way
			// the workflow logs a refused generation.
			panelModel, panelRes, panelBatch := phaseBackend(cfg, "panel_generation",
				"gemini-2.5-flash-image", models.Resolution1K)
			if _, err := led.Record(models.CallInput{
				Model:            panelModel,
				OperationTag:     "s1_p06_failed",
				Phase:            "panel_generation",
				SceneID:          "scene_01_request",
				Resolution:       panelRes,
				Batch:            panelBatch,
				PromptTokens:     80,
				GenerationTimeMS: 1500,
				Status:           models.StatusFailed,
				ErrorMessage:     "Content filter triggered",
			}); err != nil {
				return err
			}

			if err := report.Write(reportPath, led, cfg.Budget); err != nil {
				return err
			}

			sev := models.SeverityOK
			for _, st := range mon.Statuses(led) {
				if st.Scope == budget.SessionScope {
					sev = st.Severity
				}
			}
			printSummary(led.Summary(cfg.Budget), sev)
			fmt.Printf("\nExported report to %s\n", reportPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (optional)")
	cmd.Flags().StringVar(&reportPath, "report", "", "report file to write (defaults to the configured path)")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent generations (defaults to the configured worker count)")
	return cmd
}

// demoWorkload is a small novel-to-webtoon batch: two character sheets
// and an artifact, then five scene panels with prompt caching kicking in
// after the first. Each phase generates with its configured profile.
func demoWorkload(cfg *config.Config) ([]runner.Job, map[string]runner.Result) {
	job := func(tag, scene, phase, model string, res models.ResolutionTier) runner.Job {
		model, res, batch := phaseBackend(cfg, phase, model, res)
		return runner.Job{
			OperationTag: tag,
			SceneID:      scene,
			Phase:        phase,
			Model:        model,
			Resolution:   res,
			Batch:        batch,
		}
	}

	jobs := []runner.Job{
		job("jin_sohan_base", "", "character_generation", "gemini-3-pro-image-preview", models.Resolution2K),
		job("dokma_base", "", "character_generation", "gemini-3-pro-image-preview", models.Resolution2K),
		job("twin_blades_base", "", "artifact_generation", "gemini-3-pro-image-preview", models.Resolution2K),
	}
	results := map[string]runner.Result{
		"jin_sohan_base":   {PromptTokens: 150, OutputTokens: 1290, GenerationTimeMS: 3200},
		"dokma_base":       {PromptTokens: 145, OutputTokens: 1285, GenerationTimeMS: 3100},
		"twin_blades_base": {PromptTokens: 120, OutputTokens: 1100, GenerationTimeMS: 2800},
	}
	for i := 1; i <= 5; i++ {
		tag := fmt.Sprintf("s1_p%02d", i)
		jobs = append(jobs, job(tag, "scene_01_request", "panel_generation", "gemini-2.5-flash-image", models.Resolution1K))
		res := runner.Result{PromptTokens: 80, OutputTokens: 900, GenerationTimeMS: int64(2000 + (i-1)*100)}
		if i > 1 {
			res.CachedTokens = 50
		}
		results[tag] = res
	}
	return jobs, results
}

// phaseBackend resolves the backend for a phase from its config profile,
// keeping the given defaults when no profile names a model.
func phaseBackend(cfg *config.Config, phase, model string, res models.ResolutionTier) (string, models.ResolutionTier, bool) {
	p, ok := cfg.Phases[phase]
	if !ok || p.Model == "" {
		return model, res, false
	}
	return p.Model, p.Resolution, p.Batch
}
