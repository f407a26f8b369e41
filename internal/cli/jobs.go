package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/spf13/cobra"
)

var (
	jobsState string
	jobsKind  string
	jobsLimit int
	jobsCount bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List queued import jobs",
	Long: `List import jobs or show queue depth.

Examples:
  reelimport jobs                       # Most recent jobs
  reelimport jobs --state discarded     # Jobs that ran out of attempts
  reelimport jobs --counts              # Jobs per kind and state
  reelimport jobs retry movie_detail_42 # Replay a discarded job`,
	Args: cobra.NoArgs,
	RunE: runJobs,
}

var jobsRetryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Replay a discarded or cancelled job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := apiClient.RetryJob(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("retry job: %w", err)
		}
		if jsonOut {
			return printJSON(job)
		}
		printf("Job %s queued again (%s)\n", args[0], job.State)
		return nil
	},
}

func init() {
	jobsCmd.Flags().StringVar(&jobsState, "state", "", "filter by state (available, executing, retryable, completed, discarded, cancelled)")
	jobsCmd.Flags().StringVar(&jobsKind, "kind", "", "filter by kind (discovery_page, movie_detail, canonical_list_page, festival_ceremony)")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 20, "maximum number of jobs")
	jobsCmd.Flags().BoolVar(&jobsCount, "counts", false, "show job counts per kind and state")
	jobsCmd.AddCommand(jobsRetryCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if jobsCount {
		counts, err := apiClient.JobCounts(ctx)
		if err != nil {
			return fmt.Errorf("job counts: %w", err)
		}
		if jsonOut {
			return printJSON(counts)
		}
		printJobCounts(counts)
		return nil
	}

	jobs, err := apiClient.ListJobs(ctx, models.JobFilter{
		Kind:  models.JobKind(jobsKind),
		State: models.JobState(jobsState),
		Limit: jobsLimit,
	})
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	if jsonOut {
		return printJSON(jobs)
	}
	printJobs(jobs)
	return nil
}

func printJobCounts(counts []models.JobCount) {
	if len(counts) == 0 {
		printf("Queue is empty\n")
		return
	}
	printf("%-22s %-10s %s\n", "KIND", "STATE", "COUNT")
	printf("----------------------------------------\n")
	for _, c := range counts {
		printf("%-22s %-10s %d\n", c.Kind, c.State, c.Count)
	}
}

func printJobs(jobs []models.ImportJob) {
	if len(jobs) == 0 {
		printf("No jobs found\n")
		return
	}

	printf("%-36s %-10s %-8s %-9s %s\n", "ID", "STATE", "ATTEMPT", "SCHEDULED", "LAST ERROR")
	printf("--------------------------------------------------------------------------------------\n")
	for _, j := range jobs {
		lastErr := ""
		if j.LastError != nil {
			lastErr = truncate(*j.LastError, 40)
		}
		printf("%-36s %-10s %-8s %-9s %s\n",
			truncate(j.Key(), 36),
			j.State,
			fmt.Sprintf("%d/%d", j.Attempt, j.MaxAttempts),
			j.ScheduledAt.Local().Format(time.TimeOnly),
			lastErr,
		)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
