package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var listsCmd = &cobra.Command{
	Use:   "lists",
	Short: "Import canonical film lists",
}

var listsImportCmd = &cobra.Command{
	Use:   "import <key> <list-id>",
	Short: "Import a canonical list and stamp its films",
	Long: `Import a canonical list page by page. Films already stored get the list
stamped onto their canonical sources; unknown films are fetched first.

Examples:
  reelimport lists import criterion ls000001`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		queued, err := apiClient.ImportList(context.Background(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("import list: %w", err)
		}
		if queued {
			printf("List %s queued\n", args[0])
		} else {
			printf("List %s is already being imported\n", args[0])
		}
		return nil
	},
}

var (
	festivalFrom int
	festivalTo   int
)

var festivalsCmd = &cobra.Command{
	Use:   "festivals",
	Short: "Import festival ceremonies",
}

var festivalsImportCmd = &cobra.Command{
	Use:   "import <festival>",
	Short: "Import the nominations of a festival for a range of years",
	Long: `Queue one ceremony job per year and stamp every nominated film.

Examples:
  reelimport festivals import cannes --from 2015 --to 2024
  reelimport festivals import berlinale --from 2023`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		to := festivalTo
		if to == 0 {
			to = festivalFrom
		}
		n, err := apiClient.ImportFestival(context.Background(), args[0], festivalFrom, to)
		if err != nil {
			return fmt.Errorf("import festival: %w", err)
		}
		printf("Queued %d ceremonies of %s (%d-%d)\n", n, args[0], festivalFrom, to)
		return nil
	},
}

func init() {
	listsCmd.AddCommand(listsImportCmd)

	festivalsImportCmd.Flags().IntVar(&festivalFrom, "from", 0, "first year (required)")
	festivalsImportCmd.Flags().IntVar(&festivalTo, "to", 0, "last year (defaults to --from)")
	_ = festivalsImportCmd.MarkFlagRequired("from")
	festivalsCmd.AddCommand(festivalsImportCmd)
}
