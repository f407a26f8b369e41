package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Person is a cast or crew member, keyed by TMDb id.
type Person struct {
	ID                 surrealmodels.RecordID `json:"id"`
	TMDbID             int                    `json:"tmdb_id"`
	Name               string                 `json:"name"`
	Popularity         *float64               `json:"popularity,omitempty"`
	ProfilePath        *string                `json:"profile_path,omitempty"`
	KnownForDepartment *string                `json:"known_for_department,omitempty"`
	ImportStatus       ImportStatus           `json:"import_status"`
	Created            time.Time              `json:"created,omitempty"`
	Updated            time.Time              `json:"updated,omitempty"`
}

// PersonWrite pairs a person candidate with its gate outcome.
type PersonWrite struct {
	TMDbID             int          `json:"tmdb_id"`
	Name               string       `json:"name"`
	Popularity         *float64     `json:"popularity,omitempty"`
	ProfilePath        *string      `json:"profile_path,omitempty"`
	KnownForDepartment *string      `json:"known_for_department,omitempty"`
	ImportStatus       ImportStatus `json:"import_status"`
}

// CreditKind distinguishes cast from crew credits.
type CreditKind string

const (
	CreditKindCast CreditKind = "cast"
	CreditKindCrew CreditKind = "crew"
)

// Credit relates a person to a movie. Keyed by the provider's credit id
// so repeated ingestion upserts instead of duplicating.
type Credit struct {
	CreditID     string     `json:"credit_id"`
	MovieTMDbID  int        `json:"movie"`
	PersonTMDbID int        `json:"person"`
	Kind         CreditKind `json:"kind"`
	Character    *string    `json:"character,omitempty"`
	Department   *string    `json:"department,omitempty"`
	Job          *string    `json:"job,omitempty"`
	BillingOrder *int       `json:"billing_order,omitempty"`
}

// Collaboration is the symmetric relation between two persons who share
// a significant credit on the same movie. PersonA is always the smaller id.
type Collaboration struct {
	PersonA     int `json:"person_a"`
	PersonB     int `json:"person_b"`
	MovieTMDbID int `json:"movie"`
	Year        int `json:"year,omitempty"`
}

// NewCollaboration orders the pair so (a, b) and (b, a) produce the same record.
func NewCollaboration(a, b, movie, year int) Collaboration {
	if b < a {
		a, b = b, a
	}
	return Collaboration{PersonA: a, PersonB: b, MovieTMDbID: movie, Year: year}
}

// Key is the record key of the collaboration.
func (c Collaboration) Key() string {
	return IntKey(c.PersonA) + "_" + IntKey(c.PersonB) + "_" + IntKey(c.MovieTMDbID)
}
