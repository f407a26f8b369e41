// Package cli provides the command-line interface for reelimport.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/raphaelgruber/reelimport/internal/client"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	jsonOut   bool

	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "reelimport",
	Short: "Operate the film import pipeline",
	Long: `Reelimport drives the film catalogue import server.

Start, stop and resume the discovery crawl, import canonical lists and
festival ceremonies, watch progress, and inspect or replay failed jobs.
The server URL defaults to REELIMPORT_SERVER_URL or http://localhost:8585.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		apiClient = client.New(serverURL)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server base URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print raw JSON")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(skippedCmd)
	rootCmd.AddCommand(listsCmd)
	rootCmd.AddCommand(festivalsCmd)
	rootCmd.AddCommand(moviesCmd)
	rootCmd.AddCommand(peopleCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(policyCmd)
}

// out is where commands print. Tests swap it.
var out io.Writer = os.Stdout

func printf(format string, args ...any) {
	fmt.Fprintf(out, format, args...)
}
