package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// ImportStatus describes how completely a record was ingested.
type ImportStatus string

const (
	ImportStatusFull    ImportStatus = "full"    // passed the quality gate, fully enriched
	ImportStatusSoft    ImportStatus = "soft"    // minimal placeholder, no enrichment
	ImportStatusPending ImportStatus = "pending" // referenced but not yet evaluated
)

// Movie is the primary imported record, keyed by its TMDb id.
type Movie struct {
	ID               surrealmodels.RecordID `json:"id"`
	TMDbID           int                    `json:"tmdb_id"`
	IMDbID           *string                `json:"imdb_id,omitempty"`
	Title            string                 `json:"title"`
	OriginalTitle    *string                `json:"original_title,omitempty"`
	ReleaseDate      *string                `json:"release_date,omitempty"`
	Overview         *string                `json:"overview,omitempty"`
	Runtime          *int                   `json:"runtime,omitempty"`
	Popularity       *float64               `json:"popularity,omitempty"`
	VoteAverage      *float64               `json:"vote_average,omitempty"`
	VoteCount        *int                   `json:"vote_count,omitempty"`
	PosterPath       *string                `json:"poster_path,omitempty"`
	BackdropPath     *string                `json:"backdrop_path,omitempty"`
	ImportStatus     ImportStatus           `json:"import_status"`
	CanonicalSources map[string]any         `json:"canonical_sources,omitempty"`
	ExternalRatings  map[string]any         `json:"external_ratings,omitempty"`
	Revision         int                    `json:"revision"`
	Created          time.Time              `json:"created,omitempty"`
	Updated          time.Time              `json:"updated,omitempty"`
}

// MovieDetail is a stored movie with its credits and collaboration pairs.
type MovieDetail struct {
	Movie          Movie           `json:"movie"`
	Credits        []Credit        `json:"credits"`
	Collaborations []Collaboration `json:"collaborations"`
}

// MovieFields is a partial movie write. Nil fields are left untouched
// on existing rows; non-nil fields overwrite.
type MovieFields struct {
	IMDbID          *string        `json:"imdb_id,omitempty"`
	Title           *string        `json:"title,omitempty"`
	OriginalTitle   *string        `json:"original_title,omitempty"`
	ReleaseDate     *string        `json:"release_date,omitempty"`
	Overview        *string        `json:"overview,omitempty"`
	Runtime         *int           `json:"runtime,omitempty"`
	Popularity      *float64       `json:"popularity,omitempty"`
	VoteAverage     *float64       `json:"vote_average,omitempty"`
	VoteCount       *int           `json:"vote_count,omitempty"`
	PosterPath      *string        `json:"poster_path,omitempty"`
	BackdropPath    *string        `json:"backdrop_path,omitempty"`
	ExternalRatings map[string]any `json:"external_ratings,omitempty"`
}

// Empty reports whether no field is set.
func (f MovieFields) Empty() bool {
	return f.IMDbID == nil && f.Title == nil && f.OriginalTitle == nil &&
		f.ReleaseDate == nil && f.Overview == nil && f.Runtime == nil &&
		f.Popularity == nil && f.VoteAverage == nil && f.VoteCount == nil &&
		f.PosterPath == nil && f.BackdropPath == nil && len(f.ExternalRatings) == 0
}

// SourceStamp records that an external list or ceremony references a movie.
// Key becomes a key of Movie.CanonicalSources.
type SourceStamp struct {
	Key  string         `json:"key"`
	Meta map[string]any `json:"meta"`
}

// MovieCounts aggregates movies by import status.
type MovieCounts struct {
	Total   int `json:"total"`
	Full    int `json:"full"`
	Soft    int `json:"soft"`
	Pending int `json:"pending"`
}
