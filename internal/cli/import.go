package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/spf13/cobra"
)

var restartImport bool

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Control the discovery crawl",
	Long: `Control the discovery crawl over the primary catalogue.

Examples:
  reelimport import start             # Start or continue the crawl
  reelimport import start --restart   # Rewind to page 1
  reelimport import stop              # Stop after the page in flight
  reelimport import resume            # Continue from the cursor`,
}

var importStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the discovery crawl",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := apiClient.StartImport(context.Background(), restartImport)
		if err != nil {
			return fmt.Errorf("start import: %w", err)
		}
		return printProgress(*p)
	},
}

var importStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the discovery crawl",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := apiClient.StopImport(context.Background())
		if err != nil {
			return fmt.Errorf("stop import: %w", err)
		}
		return printProgress(*p)
	},
}

var importResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the discovery crawl from its cursor",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := apiClient.ResumeImport(context.Background())
		if err != nil {
			return fmt.Errorf("resume import: %w", err)
		}
		return printProgress(*p)
	},
}

func init() {
	importStartCmd.Flags().BoolVar(&restartImport, "restart", false, "rewind the crawl to page 1")
	importCmd.AddCommand(importStartCmd, importStopCmd, importResumeCmd)
}

func printProgress(p models.ImportProgress) error {
	if jsonOut {
		return printJSON(p)
	}
	printf("%s\n", formatProgress(p))
	return nil
}

// formatProgress renders one scope on a single line.
func formatProgress(p models.ImportProgress) string {
	line := fmt.Sprintf("%-24s %-8s page %d", p.Scope, p.Status, p.LastPageProcessed)
	if p.TotalPages > 0 {
		line += fmt.Sprintf("/%d", p.TotalPages)
	}
	if p.TotalKnown > 0 {
		line += fmt.Sprintf("  %d/%d imported (%.2f%%)", p.TotalImported, p.TotalKnown, p.CompletionPercentage)
	}
	if len(p.FailedPages) > 0 {
		line += fmt.Sprintf("  failed pages: %v", p.FailedPages)
	}
	return line
}

func printJSON(v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
