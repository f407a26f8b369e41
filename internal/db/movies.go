package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// UpsertMovie creates or updates the movie keyed by tmdbID in one statement.
// Only non-nil fields are written. A stamp adds or replaces a single key of
// canonical_sources and leaves the others alone. import_status is never
// downgraded from full. Returns the stored row and whether it was created.
func (c *Client) UpsertMovie(
	ctx context.Context,
	tmdbID int,
	fields models.MovieFields,
	status *models.ImportStatus,
	stamp *models.SourceStamp,
) (*models.Movie, bool, error) {
	if tmdbID <= 0 {
		return nil, false, fmt.Errorf("upsert movie: invalid tmdb id %d", tmdbID)
	}

	sets := []string{
		"tmdb_id = $tmdb_id",
		"revision = (revision ?? 0) + 1",
		"updated = time::now()",
	}
	vars := map[string]any{
		"id":      models.IntKey(tmdbID),
		"tmdb_id": tmdbID,
	}
	fieldSets, err := movieFieldSets(fields, vars)
	if err != nil {
		return nil, false, fmt.Errorf("upsert movie: %w", err)
	}
	sets = append(sets, fieldSets...)
	sets = append(sets, statusSet(status, vars))

	if stamp != nil {
		s, err := stampSet(stamp, vars)
		if err != nil {
			return nil, false, fmt.Errorf("upsert movie: %w", err)
		}
		sets = append(sets, s)
	}

	sql := `UPSERT type::record("movie", $id) SET ` + strings.Join(sets, ", ") + ` RETURN AFTER`
	results, err := surrealdb.Query[[]models.Movie](ctx, c.db, sql, vars)
	if err != nil {
		return nil, false, fmt.Errorf("upsert movie: %w", wrapQueryError(err))
	}
	m := first(results)
	if m == nil {
		return nil, false, fmt.Errorf("upsert movie %d: empty result", tmdbID)
	}
	return m, m.Revision == 1, nil
}

// StampMovieByIMDbID adds a canonical source to the movie with the given IMDb
// id. Returns ErrNotFound when no movie carries that id yet.
func (c *Client) StampMovieByIMDbID(ctx context.Context, imdbID string, stamp models.SourceStamp) (*models.Movie, error) {
	vars := map[string]any{"imdb": imdbID}
	s, err := stampSet(&stamp, vars)
	if err != nil {
		return nil, fmt.Errorf("stamp movie: %w", err)
	}

	sql := `UPDATE movie SET ` + s + `, revision += 1, updated = time::now()
		WHERE imdb_id = $imdb RETURN AFTER`
	results, err := surrealdb.Query[[]models.Movie](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("stamp movie: %w", wrapQueryError(err))
	}
	m := first(results)
	if m == nil {
		return nil, fmt.Errorf("stamp movie %s: %w", imdbID, ErrNotFound)
	}
	return m, nil
}

// GetMovie retrieves a movie by TMDb id. Returns nil if not found.
func (c *Client) GetMovie(ctx context.Context, tmdbID int) (*models.Movie, error) {
	results, err := surrealdb.Query[[]models.Movie](ctx, c.db, `
		SELECT * FROM type::record("movie", $id)
	`, map[string]any{"id": models.IntKey(tmdbID)})
	if err != nil {
		return nil, fmt.Errorf("get movie: %w", err)
	}
	return first(results), nil
}

// GetMovieByIMDbID retrieves a movie by IMDb id. Returns nil if not found.
func (c *Client) GetMovieByIMDbID(ctx context.Context, imdbID string) (*models.Movie, error) {
	results, err := surrealdb.Query[[]models.Movie](ctx, c.db, `
		SELECT * FROM movie WHERE imdb_id = $imdb LIMIT 1
	`, map[string]any{"imdb": imdbID})
	if err != nil {
		return nil, fmt.Errorf("get movie by imdb id: %w", err)
	}
	return first(results), nil
}

// CountMovies returns movie totals by import status.
func (c *Client) CountMovies(ctx context.Context) (models.MovieCounts, error) {
	type statusCount struct {
		ImportStatus models.ImportStatus `json:"import_status"`
		Count        int                 `json:"count"`
	}
	results, err := surrealdb.Query[[]statusCount](ctx, c.db, `
		SELECT import_status, count() AS count FROM movie GROUP BY import_status
	`, nil)
	if err != nil {
		return models.MovieCounts{}, fmt.Errorf("count movies: %w", err)
	}

	var counts models.MovieCounts
	for _, r := range rows(results) {
		counts.Total += r.Count
		switch r.ImportStatus {
		case models.ImportStatusFull:
			counts.Full = r.Count
		case models.ImportStatusSoft:
			counts.Soft = r.Count
		case models.ImportStatusPending:
			counts.Pending = r.Count
		}
	}
	return counts, nil
}

// ListMoviesBySource returns movies stamped with the given canonical source key.
func (c *Client) ListMoviesBySource(ctx context.Context, key string, limit int) ([]models.Movie, error) {
	if !models.ValidSourceKey(key) {
		return nil, fmt.Errorf("list movies by source: invalid key %q", key)
	}
	if limit <= 0 {
		limit = 100
	}
	sql := fmt.Sprintf("SELECT * FROM movie WHERE canonical_sources.`%s` != NONE ORDER BY tmdb_id LIMIT $limit", key)
	results, err := surrealdb.Query[[]models.Movie](ctx, c.db, sql, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list movies by source: %w", err)
	}
	return rows(results), nil
}

func movieFieldSets(f models.MovieFields, vars map[string]any) ([]string, error) {
	var sets []string
	add := func(field string, v any) {
		sets = append(sets, field+" = $"+field)
		vars[field] = v
	}
	if f.Title != nil {
		if strings.TrimSpace(*f.Title) == "" {
			return nil, fmt.Errorf("empty title")
		}
		add("title", *f.Title)
	}
	if f.IMDbID != nil {
		add("imdb_id", *f.IMDbID)
	}
	if f.OriginalTitle != nil {
		add("original_title", *f.OriginalTitle)
	}
	if f.ReleaseDate != nil {
		add("release_date", *f.ReleaseDate)
	}
	if f.Overview != nil {
		add("overview", *f.Overview)
	}
	if f.Runtime != nil {
		add("runtime", *f.Runtime)
	}
	if f.Popularity != nil {
		add("popularity", *f.Popularity)
	}
	if f.VoteAverage != nil {
		add("vote_average", *f.VoteAverage)
	}
	if f.VoteCount != nil {
		add("vote_count", *f.VoteCount)
	}
	if f.PosterPath != nil {
		add("poster_path", *f.PosterPath)
	}
	if f.BackdropPath != nil {
		add("backdrop_path", *f.BackdropPath)
	}
	if len(f.ExternalRatings) > 0 {
		add("external_ratings", f.ExternalRatings)
	}
	return sets, nil
}

func statusSet(status *models.ImportStatus, vars map[string]any) string {
	if status == nil || *status == models.ImportStatusPending {
		return `import_status = import_status ?? "pending"`
	}
	vars["status"] = string(*status)
	return `import_status = IF import_status = "full" THEN "full" ELSE $status END`
}

// stampSet builds the assignment for one canonical source key. The key is
// interpolated into the field path, so it must pass ValidSourceKey.
func stampSet(stamp *models.SourceStamp, vars map[string]any) (string, error) {
	if !models.ValidSourceKey(stamp.Key) {
		return "", fmt.Errorf("invalid source key %q", stamp.Key)
	}
	meta := stamp.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	vars["source_meta"] = meta
	return "canonical_sources.`" + stamp.Key + "` = $source_meta", nil
}
