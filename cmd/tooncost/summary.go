package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tommybebe/novel-to-toon/pkg/budget"
	"github.com/tommybebe/novel-to-toon/pkg/config"
	"github.com/tommybebe/novel-to-toon/pkg/models"
	"github.com/tommybebe/novel-to-toon/pkg/report"
)

var (
	headerColor    = color.New(color.FgCyan, color.Bold)
	warnBudget     = color.New(color.FgYellow, color.Bold)
	criticalBudget = color.New(color.FgRed, color.Bold)
)

func newSummaryCmd() *cobra.Command {
	var (
		configPath string
		reportPath string
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the full spend summary of a session report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return err
			}
			if reportPath == "" {
				reportPath = cfg.ReportPath
			}

			rep, err := report.Load(reportPath)
			if err != nil {
				return err
			}

			if jsonOut {
				data, err := json.MarshalIndent(rep.Summary, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			st := budget.New(cfg.Budget).Check(report.Restore(rep, cfg.Table()))
			printSummary(rep.Summary, st.Severity)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (optional)")
	cmd.Flags().StringVar(&reportPath, "report", "", "report file to read (defaults to the configured path)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the summary as JSON")
	return cmd
}

func printSummary(sum models.SpendSummary, sev models.Severity) {
	headerColor.Printf("Session %s\n", sum.SessionID)
	fmt.Printf("Started %s\n\n", sum.StartedAt.Format("2006-01-02 15:04:05 MST"))

	fmt.Printf("Total cost: $%.4f across %d calls\n", sum.TotalCostUSD, sum.TotalCalls)
	if sum.BudgetUSD > 0 {
		line := fmt.Sprintf("Budget:     %.1f%% of $%.2f used", sum.PercentOfBudget, sum.BudgetUSD)
		switch sev {
		case models.SeverityCritical:
			criticalBudget.Println(line)
		case models.SeverityWarning:
			warnBudget.Println(line)
		default:
			fmt.Println(line)
		}
	}
	fmt.Println()

	writeGroup := func(title string, groups map[string]models.GroupTotal) {
		if len(groups) == 0 {
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "%s\tCALLS\tCOST\n", title)
		keys := make([]string, 0, len(groups))
		for k := range groups {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			g := groups[k]
			fmt.Fprintf(w, "%s\t%d\t$%.4f\n", k, g.Calls, g.CostUSD)
		}
		w.Flush()
		fmt.Println()
	}
	writeGroup("MODEL", sum.ByModel)
	writeGroup("PHASE", sum.ByPhase)

	fmt.Printf("Outcomes: %d success, %d failed, %d retried\n",
		sum.ByStatus[string(models.StatusSuccess)],
		sum.ByStatus[string(models.StatusFailed)],
		sum.ByStatus[string(models.StatusRetried)])
	fmt.Printf("Tokens:   %d prompt, %d output, %d cached\n",
		sum.TotalTokens.Prompt, sum.TotalTokens.Output, sum.TotalTokens.Cached)
	fmt.Printf("Timing:   %dms total, %.2fms average\n",
		sum.TotalGenerationTimeMS, sum.AvgGenerationTimeMS)
}
