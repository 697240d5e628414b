package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tommybebe/novel-to-toon/pkg/budget"
	"github.com/tommybebe/novel-to-toon/pkg/config"
	"github.com/tommybebe/novel-to-toon/pkg/ledger"
	"github.com/tommybebe/novel-to-toon/pkg/models"
	"github.com/tommybebe/novel-to-toon/pkg/report"
)

func newTrackCmd() *cobra.Command {
	var (
		configPath string
		reportPath string
		model      string
		op         string
		phase      string
		sceneID    string
		resolution string
		batch      bool
		megapixels float64
		promptTok  int
		outputTok  int
		cachedTok  int
		genMS      int64
		status     string
		errMsg     string
		tags       map[string]string
	)

	cmd := &cobra.Command{
		Use:   "track",
		Short: "Record one image-generation call in the session report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return err
			}
			if reportPath == "" {
				reportPath = cfg.ReportPath
			}

			led, err := openSession(cfg, reportPath)
			if err != nil {
				return err
			}

			rec, err := led.Record(models.CallInput{
				Model:            model,
				OperationTag:     op,
				Phase:            phase,
				SceneID:          sceneID,
				Resolution:       models.ResolutionTier(strings.ToUpper(resolution)),
				Batch:            batch,
				Megapixels:       megapixels,
				PromptTokens:     promptTok,
				OutputTokens:     outputTok,
				CachedTokens:     cachedTok,
				GenerationTimeMS: genMS,
				Status:           models.CallStatus(status),
				ErrorMessage:     errMsg,
				Tags:             tags,
			})
			if err != nil {
				return err
			}

			mon := budget.New(cfg.Budget)
			mon.Check(led)
			if phase != "" {
				mon.CheckPhase(led, phase)
			}

			if err := report.Write(reportPath, led, cfg.Budget); err != nil {
				return err
			}

			fmt.Printf("recorded %s: $%.4f (session total $%.4f)\n", rec.OperationTag, rec.CostUSD, led.TotalCost())
			if rec.FallbackPricing {
				fmt.Printf("note: %s is not in the pricing table, fallback rate applied\n", rec.Model)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (optional)")
	cmd.Flags().StringVar(&reportPath, "report", "", "report file to update (defaults to the configured path)")
	cmd.Flags().StringVar(&model, "model", "", "model that served the call")
	cmd.Flags().StringVar(&op, "op", "", "operation tag (panel or character being generated)")
	cmd.Flags().StringVar(&phase, "phase", "", "pipeline phase")
	cmd.Flags().StringVar(&sceneID, "scene", "", "scene the call belongs to")
	cmd.Flags().StringVar(&resolution, "resolution", "1K", "resolution tier (1K, 2K, 4K)")
	cmd.Flags().BoolVar(&batch, "batch", false, "call was made in batch mode")
	cmd.Flags().Float64Var(&megapixels, "megapixels", 0, "output size for per-megapixel models")
	cmd.Flags().IntVar(&promptTok, "prompt-tokens", 0, "prompt tokens used")
	cmd.Flags().IntVar(&outputTok, "output-tokens", 0, "output tokens used")
	cmd.Flags().IntVar(&cachedTok, "cached-tokens", 0, "cached tokens reused")
	cmd.Flags().Int64Var(&genMS, "gen-ms", 0, "generation time in milliseconds")
	cmd.Flags().StringVar(&status, "status", "success", "call outcome (success, failed, retried)")
	cmd.Flags().StringVar(&errMsg, "error", "", "error message for failed calls")
	cmd.Flags().StringToStringVar(&tags, "tag", nil, "extra metadata as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("op")

	return cmd
}

// openSession restores the session ledger from an existing report file,
// or starts a fresh ledger when no report has been written yet.
func openSession(cfg *config.Config, reportPath string) (*ledger.Ledger, error) {
	table := cfg.Table()
	if _, err := os.Stat(reportPath); err != nil {
		if os.IsNotExist(err) {
			return ledger.New(cfg.SessionID, table), nil
		}
		return nil, err
	}
	rep, err := report.Load(reportPath)
	if err != nil {
		return nil, err
	}
	return report.Restore(rep, table), nil
}
