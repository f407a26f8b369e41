package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show movie totals, queue depth and runtime counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := apiClient.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		if jsonOut {
			return printJSON(s)
		}
		printStats(*s)
		return nil
	},
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage the import policy",
}

var policyReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Re-read the policy file on the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := apiClient.ReloadPolicy(context.Background())
		if err != nil {
			return fmt.Errorf("reload policy: %w", err)
		}
		return printJSON(res)
	},
}

func init() {
	policyCmd.AddCommand(policyReloadCmd)
}

func printStats(s models.ImportStats) {
	printf("Movies\n")
	printf("  Total:   %d\n", s.Movies.Total)
	printf("  Full:    %d\n", s.Movies.Full)
	printf("  Soft:    %d\n", s.Movies.Soft)
	if s.Movies.Pending > 0 {
		printf("  Pending: %d\n", s.Movies.Pending)
	}

	printf("\nQueue\n")
	if len(s.Jobs) == 0 {
		printf("  empty\n")
	}
	for _, c := range s.Jobs {
		printf("  %-22s %-10s %d\n", c.Kind, c.State, c.Count)
	}

	if s.Runtime == nil {
		return
	}
	printf("\nRuntime (up %.0fs)\n", s.Runtime.UptimeSeconds)
	for _, name := range s.Runtime.OperationNames() {
		op := s.Runtime.Operations[name]
		printf("  %-28s %6d calls  avg %.1fms  max %dms\n", name, op.Count, op.AvgTimeMs, op.MaxTimeMs)
	}
	names := make([]string, 0, len(s.Runtime.Counters))
	for name := range s.Runtime.Counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		printf("  %-28s %6d\n", name, s.Runtime.Counters[name])
	}
}
