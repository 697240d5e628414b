package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tommybebe/novel-to-toon/pkg/budget"
	"github.com/tommybebe/novel-to-toon/pkg/config"
)

func newStatusCmd() *cobra.Command {
	var (
		configPath string
		reportPath string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a one-line spend status for the current session",
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

			st := led.StatusLine(cfg.Budget)
			line := fmt.Sprintf("Cost: $%.4f / $%.2f (%.1f%%) | Calls: %d",
				st.TotalCostUSD, st.BudgetUSD, st.PercentUsed, st.TotalCalls)
			if st.LastCall != nil {
				line += fmt.Sprintf(" | Last: %s %s $%.4f",
					st.LastCall.Model, st.LastCall.OperationTag, st.LastCall.CostUSD)
			}
			fmt.Println(line)

			budget.New(cfg.Budget).Check(led)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (optional)")
	cmd.Flags().StringVar(&reportPath, "report", "", "report file to read (defaults to the configured path)")
	return cmd
}
