package db

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// UpsertPersons writes persons keyed by TMDb id. A person already stored as
// full stays full; absent optional fields keep their stored values.
func (c *Client) UpsertPersons(ctx context.Context, persons []models.PersonWrite) error {
	if len(persons) == 0 {
		return nil
	}
	_, err := surrealdb.Query[any](ctx, c.db, `
		FOR $p IN $persons {
			UPSERT type::record("person", <string>$p.tmdb_id) SET
				tmdb_id = $p.tmdb_id,
				name = $p.name,
				popularity = $p.popularity ?? popularity,
				profile_path = $p.profile_path ?? profile_path,
				known_for_department = $p.known_for_department ?? known_for_department,
				import_status = IF import_status = "full" THEN "full" ELSE $p.import_status END,
				updated = time::now();
		};
	`, map[string]any{"persons": persons})
	if err != nil {
		return fmt.Errorf("upsert persons: %w", wrapQueryError(err))
	}
	return nil
}

// GetPerson retrieves a person by TMDb id. Returns nil if not found.
func (c *Client) GetPerson(ctx context.Context, tmdbID int) (*models.Person, error) {
	results, err := surrealdb.Query[[]models.Person](ctx, c.db, `
		SELECT * FROM type::record("person", $id)
	`, map[string]any{"id": models.IntKey(tmdbID)})
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	return first(results), nil
}

// UpsertCredits writes credits keyed by their provider credit id, so
// ingesting the same movie twice leaves the credit set unchanged.
func (c *Client) UpsertCredits(ctx context.Context, credits []models.Credit) error {
	if len(credits) == 0 {
		return nil
	}
	_, err := surrealdb.Query[any](ctx, c.db, `
		FOR $c IN $credits {
			UPSERT type::record("credit", $c.credit_id) SET
				credit_id = $c.credit_id,
				movie = $c.movie,
				person = $c.person,
				kind = $c.kind,
				character = $c.character,
				department = $c.department,
				job = $c.job,
				billing_order = $c.billing_order;
		};
	`, map[string]any{"credits": credits})
	if err != nil {
		return fmt.Errorf("upsert credits: %w", wrapQueryError(err))
	}
	return nil
}

// CreditsForMovie lists the credits of one movie in billing order.
func (c *Client) CreditsForMovie(ctx context.Context, tmdbID int) ([]models.Credit, error) {
	results, err := surrealdb.Query[[]models.Credit](ctx, c.db, `
		SELECT * FROM credit WHERE movie = $movie ORDER BY kind, billing_order, credit_id
	`, map[string]any{"movie": tmdbID})
	if err != nil {
		return nil, fmt.Errorf("credits for movie: %w", err)
	}
	return rows(results), nil
}

// ReplaceCollaborations makes collabs the complete collaboration set of the
// movie: pairs are upserted by their symmetric key and pairs no longer in the
// bounded set are removed.
func (c *Client) ReplaceCollaborations(ctx context.Context, movieTMDbID int, collabs []models.Collaboration) error {
	type row struct {
		Key     string `json:"key"`
		PersonA int    `json:"person_a"`
		PersonB int    `json:"person_b"`
		Movie   int    `json:"movie"`
		Year    *int   `json:"year,omitempty"`
	}
	rowsIn := make([]row, 0, len(collabs))
	keys := make([]string, 0, len(collabs))
	for _, col := range collabs {
		if col.MovieTMDbID != movieTMDbID {
			return fmt.Errorf("replace collaborations: pair %s belongs to movie %d", col.Key(), col.MovieTMDbID)
		}
		r := row{Key: col.Key(), PersonA: col.PersonA, PersonB: col.PersonB, Movie: col.MovieTMDbID}
		if col.Year > 0 {
			y := col.Year
			r.Year = &y
		}
		rowsIn = append(rowsIn, r)
		keys = append(keys, r.Key)
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		BEGIN TRANSACTION;
		FOR $c IN $collabs {
			UPSERT type::record("collaboration", $c.key) SET
				person_a = $c.person_a,
				person_b = $c.person_b,
				movie = $c.movie,
				year = $c.year;
		};
		DELETE collaboration WHERE movie = $movie AND record::id(id) NOTINSIDE $keys;
		COMMIT TRANSACTION;
	`, map[string]any{"collabs": rowsIn, "keys": keys, "movie": movieTMDbID})
	if err != nil {
		return fmt.Errorf("replace collaborations: %w", wrapQueryError(err))
	}
	return nil
}

// CollaborationsForMovie lists the stored pairs of one movie.
func (c *Client) CollaborationsForMovie(ctx context.Context, tmdbID int) ([]models.Collaboration, error) {
	results, err := surrealdb.Query[[]models.Collaboration](ctx, c.db, `
		SELECT person_a, person_b, movie, year FROM collaboration
		WHERE movie = $movie ORDER BY person_a, person_b
	`, map[string]any{"movie": tmdbID})
	if err != nil {
		return nil, fmt.Errorf("collaborations for movie: %w", err)
	}
	return rows(results), nil
}
