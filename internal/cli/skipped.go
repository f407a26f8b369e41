package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/spf13/cobra"
)

var (
	skippedDecision string
	skippedLimit    int
)

var skippedCmd = &cobra.Command{
	Use:   "skipped",
	Short: "Show candidates the quality gate did not import in full",
	Long: `Show the audit trail of soft-imported and rejected candidates.

Examples:
  reelimport skipped                    # Most recent rows
  reelimport skipped --decision reject  # Only rejections`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := apiClient.ListSkipped(context.Background(), skippedDecision, skippedLimit)
		if err != nil {
			return fmt.Errorf("list skipped: %w", err)
		}
		if jsonOut {
			return printJSON(rows)
		}
		if len(rows) == 0 {
			printf("Nothing skipped\n")
			return nil
		}
		printf("%-7s %-10s %-7s %-30s %s\n", "KIND", "ID", "RESULT", "TITLE", "REASON")
		printf("--------------------------------------------------------------------------------\n")
		for _, r := range rows {
			printf("%-7s %-10s %-7s %-30s %s\n", r.EntityKind, skippedRef(r), r.Decision, truncate(r.Title, 30), r.Reason)
		}
		return nil
	},
}

func init() {
	skippedCmd.Flags().StringVar(&skippedDecision, "decision", "", "filter by decision (soft, reject)")
	skippedCmd.Flags().IntVar(&skippedLimit, "limit", 50, "maximum number of rows")
}

// skippedRef names the candidate by TMDb id, or by IMDb id when the primary
// provider never resolved it.
func skippedRef(r models.SkippedImport) string {
	if r.ExternalID == 0 && r.IMDbID != "" {
		return r.IMDbID
	}
	return strconv.Itoa(r.ExternalID)
}
