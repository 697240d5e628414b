package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tommybebe/novel-to-toon/pkg/audit"
	"github.com/tommybebe/novel-to-toon/pkg/config"
	"github.com/tommybebe/novel-to-toon/pkg/models"
)

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Import and query exported session reports",
	}

	cmd.AddCommand(
		newArchiveImportCmd(),
		newArchiveSessionsCmd(),
		newArchiveSummaryCmd(),
		newArchivePruneCmd(),
	)
	return cmd
}

func newArchiveImportCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "import <report>...",
		Short: "Import exported report files into the archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := openArchive(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := context.Background()
			for _, path := range args {
				n, err := a.ImportFile(ctx, path)
				if err != nil {
					return err
				}
				fmt.Printf("Imported %s: %d calls.\n", path, n)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (optional)")
	return cmd
}

func newArchiveSessionsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions imported into the archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := openArchive(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			sessions, err := a.Sessions(context.Background())
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("No archived sessions.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION ID\tSTARTED\tIMPORTED\tCALLS\tCOST\tSOURCE")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t$%.4f\t%s\n",
					s.SessionID,
					s.StartedAt.Format("2006-01-02 15:04:05"),
					s.ImportedAt.Format("2006-01-02 15:04:05"),
					s.TotalCalls, s.TotalCostUSD, s.SourcePath)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (optional)")
	return cmd
}

func newArchiveSummaryCmd() *cobra.Command {
	var (
		configPath string
		by         string
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show archived spend totals grouped by model, phase, or day",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := openArchive(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := context.Background()
			var (
				rows   []models.ArchiveTotal
				header string
			)
			switch by {
			case "model":
				header = "MODEL"
				rows, err = a.TotalsByModel(ctx)
			case "phase":
				header = "PHASE"
				rows, err = a.TotalsByPhase(ctx)
			case "day":
				header = "DAY"
				rows, err = a.TotalsByDay(ctx)
			default:
				return fmt.Errorf("invalid --by grouping (use model, phase, or day): %s", by)
			}
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("No archived spend found.")
				return nil
			}

			grand, err := a.GrandTotal(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "%s\tCALLS\tCOST\n", header)
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%d\t$%.4f\n", r.Key, r.Calls, r.CostUSD)
			}
			fmt.Fprintf(w, "%s\t%d\t$%.4f\n", grand.Key, grand.Calls, grand.CostUSD)
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (optional)")
	cmd.Flags().StringVar(&by, "by", "model", "grouping key (model, phase, day)")
	return cmd
}

func newArchivePruneCmd() *cobra.Command {
	var (
		configPath string
		days       int
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete archived sessions older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := openArchive(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			removed, err := a.Cleanup(context.Background(), days)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d archived sessions.\n", removed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (optional)")
	cmd.Flags().IntVar(&days, "days", 90, "retention period in days")
	return cmd
}

func openArchive(configPath string) (*audit.Archive, func(), error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, nil, err
	}

	a, err := audit.Open(cfg.ArchiveDB)
	if err != nil {
		return nil, nil, err
	}
	return a, func() { _ = a.Close() }, nil
}
