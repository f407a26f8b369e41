// Package db provides integration tests for SurrealDB operations.
package db

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func requireDB(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

func strp(s string) *string     { return &s }
func intp(n int) *int           { return &n }
func floatp(f float64) *float64 { return &f }

func statusp(s models.ImportStatus) *models.ImportStatus { return &s }

// =============================================================================
// MOVIE TESTS
// =============================================================================

func TestUpsertMovieCreateThenUpdate(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	m, created, err := testDB.UpsertMovie(ctx, 1001, models.MovieFields{
		Title:      strp("Heat"),
		IMDbID:     strp("tt0113277"),
		VoteCount:  intp(6000),
		Popularity: floatp(40.5),
	}, statusp(models.ImportStatusFull), nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1001, m.TMDbID)
	assert.Equal(t, "Heat", m.Title)
	assert.Equal(t, models.ImportStatusFull, m.ImportStatus)
	assert.Equal(t, 1, m.Revision)

	// A partial write leaves absent fields alone and never downgrades full.
	m, created, err = testDB.UpsertMovie(ctx, 1001, models.MovieFields{
		Overview: strp("A heist."),
	}, statusp(models.ImportStatusSoft), nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Heat", m.Title)
	require.NotNil(t, m.Overview)
	assert.Equal(t, "A heist.", *m.Overview)
	require.NotNil(t, m.VoteCount)
	assert.Equal(t, 6000, *m.VoteCount)
	assert.Equal(t, models.ImportStatusFull, m.ImportStatus)
	assert.Equal(t, 2, m.Revision)
}

func TestUpsertMovieTwoSourcesOneRow(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	_, _, err := testDB.UpsertMovie(ctx, 1002, models.MovieFields{Title: strp("Oppenheimer"), IMDbID: strp("tt15398776")},
		statusp(models.ImportStatusFull), &models.SourceStamp{Key: "sight_and_sound", Meta: map[string]any{"position": 7}})
	require.NoError(t, err)

	m, err := testDB.StampMovieByIMDbID(ctx, "tt15398776", models.SourceStamp{
		Key:  "oscars_2024",
		Meta: map[string]any{"year": 2024, "winner": true},
	})
	require.NoError(t, err)
	assert.Equal(t, 1002, m.TMDbID)
	assert.Contains(t, m.CanonicalSources, "sight_and_sound")
	assert.Contains(t, m.CanonicalSources, "oscars_2024")

	// Restamping the same key replaces only that key.
	m, err = testDB.StampMovieByIMDbID(ctx, "tt15398776", models.SourceStamp{
		Key:  "oscars_2024",
		Meta: map[string]any{"year": 2024, "winner": false},
	})
	require.NoError(t, err)
	assert.Len(t, m.CanonicalSources, 2)

	byIMDb, err := testDB.GetMovieByIMDbID(ctx, "tt15398776")
	require.NoError(t, err)
	require.NotNil(t, byIMDb)
	assert.Equal(t, 1002, byIMDb.TMDbID)

	listed, err := testDB.ListMoviesBySource(ctx, "oscars_2024", 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, 1002, listed[0].TMDbID)
}

func TestStampMovieByIMDbIDNotFound(t *testing.T) {
	requireDB(t)
	_, err := testDB.StampMovieByIMDbID(context.Background(), "tt0000000", models.SourceStamp{Key: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertMovieRejectsBadKey(t *testing.T) {
	requireDB(t)
	_, _, err := testDB.UpsertMovie(context.Background(), 1003, models.MovieFields{Title: strp("X")}, nil,
		&models.SourceStamp{Key: "bad key`; DELETE movie"})
	assert.Error(t, err)

	m, err := testDB.GetMovie(context.Background(), 1003)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestCountMovies(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	before, err := testDB.CountMovies(ctx)
	require.NoError(t, err)

	_, _, err = testDB.UpsertMovie(ctx, 1004, models.MovieFields{Title: strp("Soft one")}, statusp(models.ImportStatusSoft), nil)
	require.NoError(t, err)
	_, _, err = testDB.UpsertMovie(ctx, 1005, models.MovieFields{Title: strp("Full one")}, statusp(models.ImportStatusFull), nil)
	require.NoError(t, err)

	after, err := testDB.CountMovies(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Total+2, after.Total)
	assert.Equal(t, before.Soft+1, after.Soft)
	assert.Equal(t, before.Full+1, after.Full)
}

// =============================================================================
// PERSON / CREDIT / COLLABORATION TESTS
// =============================================================================

func TestUpsertPersonsNeverDowngrades(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	require.NoError(t, testDB.UpsertPersons(ctx, []models.PersonWrite{
		{TMDbID: 2001, Name: "Al Pacino", Popularity: floatp(30), ImportStatus: models.ImportStatusFull},
	}))
	require.NoError(t, testDB.UpsertPersons(ctx, []models.PersonWrite{
		{TMDbID: 2001, Name: "Al Pacino", ImportStatus: models.ImportStatusSoft},
	}))

	p, err := testDB.GetPerson(ctx, 2001)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, models.ImportStatusFull, p.ImportStatus)
	require.NotNil(t, p.Popularity)
	assert.Equal(t, 30.0, *p.Popularity)
}

func TestUpsertCreditsIdempotent(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	credits := []models.Credit{
		{CreditID: "cr1", MovieTMDbID: 1010, PersonTMDbID: 2001, Kind: models.CreditKindCast, Character: strp("Hanna"), BillingOrder: intp(0)},
		{CreditID: "cr2", MovieTMDbID: 1010, PersonTMDbID: 2002, Kind: models.CreditKindCrew, Job: strp("Director"), Department: strp("Directing")},
	}
	require.NoError(t, testDB.UpsertCredits(ctx, credits))
	require.NoError(t, testDB.UpsertCredits(ctx, credits))

	stored, err := testDB.CreditsForMovie(ctx, 1010)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestReplaceCollaborations(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	first := []models.Collaboration{
		models.NewCollaboration(3, 1, 1020, 1995),
		models.NewCollaboration(1, 2, 1020, 1995),
		models.NewCollaboration(2, 3, 1020, 1995),
	}
	require.NoError(t, testDB.ReplaceCollaborations(ctx, 1020, first))
	require.NoError(t, testDB.ReplaceCollaborations(ctx, 1020, first))

	got, err := testDB.CollaborationsForMovie(ctx, 1020)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].PersonA)
	assert.Equal(t, 2, got[0].PersonB)

	// A smaller bound drops stale pairs.
	require.NoError(t, testDB.ReplaceCollaborations(ctx, 1020, first[:1]))
	got, err = testDB.CollaborationsForMovie(ctx, 1020)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.NewCollaboration(1, 3, 1020, 1995), got[0])

	err = testDB.ReplaceCollaborations(ctx, 1021, first)
	assert.Error(t, err, "pairs of another movie are refused")
}

// =============================================================================
// AUDIT TESTS
// =============================================================================

func TestRecordAndListSkipped(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	countFor := func(rows []models.SkippedImport, match func(models.SkippedImport) bool) int {
		n := 0
		for _, s := range rows {
			if match(s) {
				n++
			}
		}
		return n
	}

	row := models.SkippedImport{
		EntityKind: "movie", ExternalID: 1030, Title: "Obscure", Decision: "reject", Reason: "adult content", Source: "discovery",
	}
	require.NoError(t, testDB.RecordSkipped(ctx, row))
	first, err := testDB.ListSkipped(ctx, "reject", 100)
	require.NoError(t, err)

	t.Run("redelivery keeps one row and its created time", func(t *testing.T) {
		row.Reason = "adult content (again)"
		require.NoError(t, testDB.RecordSkipped(ctx, row))

		rejected, err := testDB.ListSkipped(ctx, "reject", 100)
		require.NoError(t, err)
		is1030 := func(s models.SkippedImport) bool { return s.ExternalID == 1030 }
		assert.Equal(t, 1, countFor(rejected, is1030))
		for _, s := range rejected {
			if is1030(s) {
				assert.Equal(t, "adult content (again)", s.Reason)
				for _, f := range first {
					if is1030(f) {
						assert.True(t, f.Created.Equal(s.Created))
					}
				}
			}
		}
	})

	t.Run("another source gets its own row", func(t *testing.T) {
		other := row
		other.Source = "criterion"
		require.NoError(t, testDB.RecordSkipped(ctx, other))

		rejected, err := testDB.ListSkipped(ctx, "reject", 100)
		require.NoError(t, err)
		assert.Equal(t, 2, countFor(rejected, func(s models.SkippedImport) bool { return s.ExternalID == 1030 }))
	})

	t.Run("imdb-only candidate keeps its imdb id", func(t *testing.T) {
		require.NoError(t, testDB.RecordSkipped(ctx, models.SkippedImport{
			EntityKind: "movie", IMDbID: "tt0009999", Decision: "reject", Reason: "not found at primary provider", Source: "criterion",
		}))
		rejected, err := testDB.ListSkipped(ctx, "reject", 100)
		require.NoError(t, err)
		assert.Equal(t, 1, countFor(rejected, func(s models.SkippedImport) bool { return s.IMDbID == "tt0009999" }))
	})
}
