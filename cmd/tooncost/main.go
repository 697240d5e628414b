package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "tooncost",
		Short:   "Track and budget image-generation spend for the novel-to-webtoon pipeline",
		Version: version,
	}

	root.AddCommand(
		newTrackCmd(),
		newStatusCmd(),
		newSummaryCmd(),
		newBudgetCmd(),
		newEstimateCmd(),
		newSimulateCmd(),
		newArchiveCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
