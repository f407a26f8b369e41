// Package service holds the import pipeline: discovery, detail fetching,
// canonical list and festival imports, and the operator controls on top.
package service

import (
	"context"
	"time"

	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/raphaelgruber/reelimport/internal/provider"
)

// MovieStore persists movies.
type MovieStore interface {
	UpsertMovie(ctx context.Context, tmdbID int, fields models.MovieFields, status *models.ImportStatus, stamp *models.SourceStamp) (*models.Movie, bool, error)
	StampMovieByIMDbID(ctx context.Context, imdbID string, stamp models.SourceStamp) (*models.Movie, error)
	GetMovie(ctx context.Context, tmdbID int) (*models.Movie, error)
	CountMovies(ctx context.Context) (models.MovieCounts, error)
}

// CreditStore persists persons, credits and collaborations.
type CreditStore interface {
	UpsertPersons(ctx context.Context, persons []models.PersonWrite) error
	UpsertCredits(ctx context.Context, credits []models.Credit) error
	ReplaceCollaborations(ctx context.Context, movieTMDbID int, collabs []models.Collaboration) error
}

// AuditStore keeps the append-only record of gated-out candidates.
type AuditStore interface {
	RecordSkipped(ctx context.Context, s models.SkippedImport) error
	ListSkipped(ctx context.Context, decision string, limit int) ([]models.SkippedImport, error)
}

// StateStore persists import cursors.
type StateStore interface {
	GetImportState(ctx context.Context, scope string) (*models.ImportState, error)
	EnsureImportState(ctx context.Context, scope string) (*models.ImportState, error)
	AdvanceCursor(ctx context.Context, scope string, page int, totals models.CursorTotals) (*models.ImportState, error)
	SetImportStatus(ctx context.Context, scope string, status models.RunStatus) (*models.ImportState, error)
	SetImportMetadata(ctx context.Context, scope string, meta map[string]any) error
	RecordFailedPage(ctx context.Context, scope string, page int) error
	ResetImportState(ctx context.Context, scope string, status models.RunStatus) (*models.ImportState, error)
	ListImportStates(ctx context.Context, prefix string) ([]models.ImportState, error)
}

// JobStore is the producer and inspection side of the durable queue.
type JobStore interface {
	Enqueue(ctx context.Context, kind models.JobKind, payload models.JobPayload, opts models.EnqueueOptions) (*models.ImportJob, bool, error)
	CancelPending(ctx context.Context, kind models.JobKind, msg string) (int, error)
	ReplayJob(ctx context.Context, id string) (*models.ImportJob, error)
	JobCounts(ctx context.Context) ([]models.JobCount, error)
	ListJobs(ctx context.Context, filter models.JobFilter) ([]models.ImportJob, error)
}

// ReadStore serves operator lookups of imported rows.
type ReadStore interface {
	GetMovieByIMDbID(ctx context.Context, imdbID string) (*models.Movie, error)
	ListMoviesBySource(ctx context.Context, key string, limit int) ([]models.Movie, error)
	GetPerson(ctx context.Context, tmdbID int) (*models.Person, error)
	CreditsForMovie(ctx context.Context, tmdbID int) ([]models.Credit, error)
	CollaborationsForMovie(ctx context.Context, tmdbID int) ([]models.Collaboration, error)
}

// Store is everything the pipeline persists. *db.Client implements it.
type Store interface {
	MovieStore
	CreditStore
	AuditStore
	StateStore
	JobStore
	ReadStore
}

// Catalog is the primary movie provider.
type Catalog interface {
	Discover(ctx context.Context, page int, sortBy string) (provider.DiscoverResult, error)
	MovieDetails(ctx context.Context, id int) (models.MovieCandidate, error)
	FindByIMDbID(ctx context.Context, imdbID string) (int, error)
}

// Enricher supplies secondary ratings for full movies.
type Enricher interface {
	Lookup(ctx context.Context, imdbID string) (map[string]any, error)
}

// ListScraper reads pages of a canonical list.
type ListScraper interface {
	FetchPage(ctx context.Context, listID string, page int) (provider.ListPage, error)
}

// CeremonyScraper reads the nominations of one festival edition.
type CeremonyScraper interface {
	FetchCeremony(ctx context.Context, festival string, year int) (provider.Ceremony, error)
}

// Counter receives outcome counts. *metrics.Collector implements it.
type Counter interface {
	Incr(name string)
	RecordTiming(op string, d time.Duration)
}

type nopCounter struct{}

func (nopCounter) Incr(string) {}

func (nopCounter) RecordTiming(string, time.Duration) {}

// Scope of the primary catalog crawl.
const DiscoveryScope = "discovery"

// DetailJobKey is the unique key of the detail job for a TMDb id.
func DetailJobKey(tmdbID int) string {
	return "movie_detail_" + models.IntKey(tmdbID)
}

// ReferencedDetailJobKey is the unique key of a detail job started from a
// secondary source that only knows the IMDb id.
func ReferencedDetailJobKey(imdbID, sourceKey string) string {
	return "movie_detail_" + imdbID + "_" + sourceKey
}

// DiscoveryJobKey is the unique key of one discovery page job.
func DiscoveryJobKey(page int) string {
	return "discovery_page_" + models.IntKey(page)
}

// ListJobKey is the unique key of one canonical list page job.
func ListJobKey(listKey string, page int) string {
	return "list_page_" + listKey + "_" + models.IntKey(page)
}

// CeremonyJobKey is the unique key of one ceremony job.
func CeremonyJobKey(festival string, year int) string {
	return "ceremony_" + models.FestivalSourceKey(festival, year)
}
