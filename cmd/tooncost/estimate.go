package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tommybebe/novel-to-toon/pkg/config"
	"github.com/tommybebe/novel-to-toon/pkg/ledger"
)

func newEstimateCmd() *cobra.Command {
	var (
		configPath string
		phase      string
		count      int
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the cost of the configured phase profiles before generating",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return err
			}
			table := cfg.Table()

			phases := make([]string, 0, len(cfg.Phases))
			for name := range cfg.Phases {
				if phase != "" && name != phase {
					continue
				}
				phases = append(phases, name)
			}
			if phase != "" && len(phases) == 0 {
				return fmt.Errorf("phase %q is not configured", phase)
			}
			sort.Strings(phases)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PHASE\tMODEL\tRES\tBATCH\tCOUNT\tUNIT\tCOST")
			var total float64
			fallback := false
			for _, name := range phases {
				p := cfg.Phases[name]
				n := p.Count
				if phase != "" && count > 0 {
					n = count
				}
				q := table.Price(p.Model, p.Resolution, p.Batch)
				if q.Fallback {
					fallback = true
				}
				cost := q.USD * float64(n)
				total += cost
				batchStr := "no"
				if p.Batch {
					batchStr = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t$%.4f\t$%.4f\n",
					name, p.Model, p.Resolution, batchStr, n, q.USD, cost)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Printf("\nEstimated total: $%.4f", total)
			if cfg.Budget.TotalUSD > 0 {
				fmt.Printf(" (%.1f%% of $%.2f budget)",
					ledger.PercentOfBudget(total, cfg.Budget.TotalUSD), cfg.Budget.TotalUSD)
			}
			fmt.Println()
			if fallback {
				fmt.Println("note: some models are not in the pricing table, fallback rate applied")
			}
			if cfg.Budget.TotalUSD > 0 && total > cfg.Budget.TotalUSD {
				warnBudget.Println("estimate exceeds the session budget")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (optional)")
	cmd.Flags().StringVar(&phase, "phase", "", "estimate a single phase")
	cmd.Flags().IntVar(&count, "count", 0, "override the generation count (requires --phase)")
	return cmd
}
