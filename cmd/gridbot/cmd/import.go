package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/xyproto/unzip"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Extract a zip archive of CSV bar files into the data directory",
	Long: `Import a dataset archive. The archive is expected to contain one
directory per symbol with one CSV file per trading day, matching the layout
the backtest and fetch commands read from.

Example:
  gridbot import --archive aapl-2023.zip --data ./data`,
	RunE: runImport,
}

var (
	importArchive string
	importDataDir string
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importArchive, "archive", "", "zip archive to extract (required)")
	importCmd.Flags().StringVar(&importDataDir, "data", "./data", "CSV bar directory")
	importCmd.MarkFlagRequired("archive")
}

func runImport(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(importArchive); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if err := os.MkdirAll(importDataDir, 0755); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}

	if err := unzip.Extract(importArchive, importDataDir); err != nil {
		return fmt.Errorf("extract %s: %w", importArchive, err)
	}

	fmt.Printf("Extracted %s into %s\n", importArchive, importDataDir)
	return nil
}
