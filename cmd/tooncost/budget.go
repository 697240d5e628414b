package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tommybebe/novel-to-toon/pkg/budget"
	"github.com/tommybebe/novel-to-toon/pkg/config"
)

func newBudgetCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Inspect spend against the session and phase budgets",
	}

	var reportPath string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show spend vs ceilings for the session and each phase",
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

			statuses := budget.New(cfg.Budget).Statuses(led)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCOPE\tSTATUS\tSPENT\tCEILING\tREMAINING\tUSED")
			for _, s := range statuses {
				fmt.Fprintf(w, "%s\t%s\t$%.2f\t$%.2f\t$%.2f\t%.1f%%\n",
					s.Scope, strings.ToUpper(string(s.Severity)),
					s.SpentUSD, s.CeilingUSD, s.RemainingUSD, s.Percent)
			}
			return w.Flush()
		},
	}
	statusCmd.Flags().StringVar(&reportPath, "report", "", "report file to read (defaults to the configured path)")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (optional)")
	cmd.AddCommand(statusCmd)
	return cmd
}
