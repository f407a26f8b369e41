package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/spf13/cobra"
)

var moviesLimit int

var moviesCmd = &cobra.Command{
	Use:   "movies",
	Short: "Inspect imported movies",
	Long: `Inspect movies in the store.

Examples:
  reelimport movies show 278            # By TMDb id
  reelimport movies show tt0111161      # By IMDb id
  reelimport movies source criterion    # Movies stamped by a canonical list`,
}

var moviesShowCmd = &cobra.Command{
	Use:   "show <tmdb-id|imdb-id>",
	Short: "Show a movie with its credits and collaborations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := apiClient.Movie(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("get movie: %w", err)
		}
		if jsonOut {
			return printJSON(d)
		}
		printMovie(d)
		return nil
	},
}

var moviesSourceCmd = &cobra.Command{
	Use:   "source <key>",
	Short: "List movies stamped by a canonical source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		movies, err := apiClient.SourceMovies(context.Background(), args[0], moviesLimit)
		if err != nil {
			return fmt.Errorf("source movies: %w", err)
		}
		if jsonOut {
			return printJSON(movies)
		}
		if len(movies) == 0 {
			printf("No movies carry source %s\n", args[0])
			return nil
		}
		printf("%-8s %-7s %-11s %s\n", "TMDB", "STATUS", "IMDB", "TITLE")
		printf("------------------------------------------------------------\n")
		for _, m := range movies {
			printf("%-8d %-7s %-11s %s\n", m.TMDbID, m.ImportStatus, deref(m.IMDbID), truncate(m.Title, 40))
		}
		return nil
	},
}

var peopleCmd = &cobra.Command{
	Use:   "people",
	Short: "Inspect imported persons",
}

var peopleShowCmd = &cobra.Command{
	Use:   "show <tmdb-id>",
	Short: "Show a person",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("person id must be numeric: %q", args[0])
		}
		p, err := apiClient.Person(context.Background(), id)
		if err != nil {
			return fmt.Errorf("get person: %w", err)
		}
		if jsonOut {
			return printJSON(p)
		}
		printf("%s (%d)\n", p.Name, p.TMDbID)
		printf("  Status:     %s\n", p.ImportStatus)
		if p.KnownForDepartment != nil {
			printf("  Department: %s\n", *p.KnownForDepartment)
		}
		if p.Popularity != nil {
			printf("  Popularity: %.1f\n", *p.Popularity)
		}
		return nil
	},
}

func init() {
	moviesSourceCmd.Flags().IntVar(&moviesLimit, "limit", 50, "maximum number of movies")
	moviesCmd.AddCommand(moviesShowCmd, moviesSourceCmd)
	peopleCmd.AddCommand(peopleShowCmd)
}

func printMovie(d *models.MovieDetail) {
	m := d.Movie
	printf("%s (%d)\n", m.Title, m.TMDbID)
	printf("  Status:  %s\n", m.ImportStatus)
	if m.IMDbID != nil {
		printf("  IMDb:    %s\n", *m.IMDbID)
	}
	if m.ReleaseDate != nil {
		printf("  Release: %s\n", *m.ReleaseDate)
	}
	if len(m.CanonicalSources) > 0 {
		printf("  Sources: %s\n", strings.Join(slices.Sorted(maps.Keys(m.CanonicalSources)), ", "))
	}

	var cast, crew int
	for _, c := range d.Credits {
		if c.Kind == models.CreditKindCast {
			cast++
		} else {
			crew++
		}
	}
	printf("  Credits: %d cast, %d crew\n", cast, crew)
	printf("  Collaborations: %d\n", len(d.Collaborations))
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
