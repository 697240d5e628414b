package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tommybebe/novel-to-toon/pkg/audit"
	"github.com/tommybebe/novel-to-toon/pkg/budget"
	"github.com/tommybebe/novel-to-toon/pkg/config"
	"github.com/tommybebe/novel-to-toon/pkg/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		configPath string
		reportPath string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve spend data to agents over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return err
			}
			if reportPath == "" {
				reportPath = cfg.ReportPath
			}

			var archive mcp.ArchiveStore
			if cfg.ArchiveDB != "" {
				a, err := audit.Open(cfg.ArchiveDB)
				if err != nil {
					return err
				}
				defer func() { _ = a.Close() }()
				archive = a
			}

			srv := mcp.New(archive, cfg.Table(), budget.New(cfg.Budget), reportPath, version)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (optional)")
	cmd.Flags().StringVar(&reportPath, "report", "", "report file served by the report tools (defaults to the configured path)")
	return cmd
}
