package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/reelimport/internal/config"
	"github.com/raphaelgruber/reelimport/internal/db"
	"github.com/raphaelgruber/reelimport/internal/metrics"
	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/raphaelgruber/reelimport/internal/server"
	"github.com/raphaelgruber/reelimport/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOperator struct {
	mu       sync.Mutex
	restart  bool
	calls    []string
	festival []any
	report   models.ProgressReport
	fail     error
}

func (f *fakeOperator) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.fail
}

func (f *fakeOperator) StartDiscovery(_ context.Context, restart bool) (models.ImportProgress, error) {
	f.mu.Lock()
	f.restart = restart
	f.mu.Unlock()
	return models.ImportProgress{Scope: "discovery", Status: models.RunStatusRunning}, f.record("start")
}

func (f *fakeOperator) StopDiscovery(context.Context) (models.ImportProgress, error) {
	return models.ImportProgress{Scope: "discovery", Status: models.RunStatusStopped}, f.record("stop")
}

func (f *fakeOperator) ResumeDiscovery(context.Context) (models.ImportProgress, error) {
	return models.ImportProgress{Scope: "discovery", Status: models.RunStatusRunning}, f.record("resume")
}

func (f *fakeOperator) Progress(context.Context) (models.ImportProgress, error) {
	return f.report.Discovery, f.record("progress")
}

func (f *fakeOperator) SecondaryProgress(context.Context) ([]models.ImportProgress, error) {
	return f.report.Secondary, f.record("secondary")
}

func (f *fakeOperator) Report(context.Context) (models.ProgressReport, error) {
	return f.report, f.record("report")
}

func (f *fakeOperator) ImportList(_ context.Context, key, listID string) (*models.ImportJob, error) {
	if key == "Bad Key" {
		return nil, fmt.Errorf("%w: list key", service.ErrInvalidInput)
	}
	return &models.ImportJob{Kind: models.JobKindListPage, Payload: models.JobPayload{Page: 1, ListKey: key, ListID: listID}}, f.record("list")
}

func (f *fakeOperator) ImportFestival(_ context.Context, festival string, from, to int) ([]models.ImportJob, error) {
	f.mu.Lock()
	f.festival = []any{festival, from, to}
	f.mu.Unlock()
	var jobs []models.ImportJob
	for y := from; y <= to; y++ {
		jobs = append(jobs, models.ImportJob{Kind: models.JobKindCeremony, Payload: models.JobPayload{Festival: festival, Year: y}})
	}
	return jobs, f.record("festival")
}

func (f *fakeOperator) JobCounts(context.Context) ([]models.JobCount, error) {
	return []models.JobCount{{Kind: models.JobKindMovieDetail, State: models.JobStateAvailable, Count: 7}}, f.record("counts")
}

func (f *fakeOperator) ListJobs(_ context.Context, filter models.JobFilter) ([]models.ImportJob, error) {
	return []models.ImportJob{{Kind: filter.Kind, State: filter.State, MaxAttempts: filter.Limit}}, f.record("jobs")
}

func (f *fakeOperator) RetryJob(_ context.Context, id string) (*models.ImportJob, error) {
	if id == "missing" {
		return nil, db.ErrNotFound
	}
	return &models.ImportJob{State: models.JobStateAvailable}, f.record("retry")
}

func (f *fakeOperator) ListSkipped(_ context.Context, decision string, limit int) ([]models.SkippedImport, error) {
	return []models.SkippedImport{{Decision: decision, ExternalID: limit}}, f.record("skipped")
}

func (f *fakeOperator) MovieCounts(context.Context) (models.MovieCounts, error) {
	return models.MovieCounts{Total: 3, Full: 2, Soft: 1}, f.record("movies")
}

func (f *fakeOperator) Movie(_ context.Context, ref string) (*models.MovieDetail, error) {
	if ref == "tt0000000" {
		return nil, fmt.Errorf("movie %s: %w", ref, db.ErrNotFound)
	}
	return &models.MovieDetail{
		Movie:   models.Movie{TMDbID: 278, IMDbID: &ref},
		Credits: []models.Credit{{CreditID: "c1", MovieTMDbID: 278, PersonTMDbID: 504}},
	}, f.record("movie")
}

func (f *fakeOperator) SourceMovies(_ context.Context, key string, limit int) ([]models.Movie, error) {
	if key == "Bad-Key" {
		return nil, fmt.Errorf("%w: source key", service.ErrInvalidInput)
	}
	return []models.Movie{{TMDbID: 278, Revision: limit}}, f.record("source")
}

func (f *fakeOperator) Person(_ context.Context, tmdbID int) (*models.Person, error) {
	return &models.Person{TMDbID: tmdbID, Name: "Tim Robbins"}, f.record("person")
}

func (f *fakeOperator) ReloadPolicy() (config.Policy, error) {
	return config.DefaultPolicy(), f.record("reload")
}

func (f *fakeOperator) snapshot() (calls []string, restart bool, festival []any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...), f.restart, f.festival
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, op *fakeOperator) *httptest.Server {
	t.Helper()
	stats := metrics.NewCollector()
	stats.Incr(metrics.CounterMovieFull)
	srv := server.New(op, stats, nil, testLogger(), server.WithStreamInterval(10*time.Millisecond))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	t.Run("ok without pinger", func(t *testing.T) {
		ts := newTestServer(t, &fakeOperator{})
		status, body := do(t, http.MethodGet, ts.URL+"/health", "")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("unavailable when the store is down", func(t *testing.T) {
		srv := server.New(&fakeOperator{}, nil, downPinger{}, testLogger())
		ts := httptest.NewServer(srv.Handler())
		defer ts.Close()

		status, body := do(t, http.MethodGet, ts.URL+"/health", "")
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Equal(t, "connection refused", body["error"])
	})
}

func TestImportControl(t *testing.T) {
	op := &fakeOperator{}
	ts := newTestServer(t, op)

	status, body := do(t, http.MethodPost, ts.URL+"/api/import/start?restart=true", "")
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "running", body["status"])
	_, restart, _ := op.snapshot()
	assert.True(t, restart)

	status, body = do(t, http.MethodPost, ts.URL+"/api/import/stop", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "stopped", body["status"])

	status, _ = do(t, http.MethodPost, ts.URL+"/api/import/resume", "")
	assert.Equal(t, http.StatusAccepted, status)
	calls, _, _ := op.snapshot()
	assert.Equal(t, []string{"start", "stop", "resume"}, calls)
}

func TestProgress(t *testing.T) {
	op := &fakeOperator{report: models.ProgressReport{
		Discovery: models.ImportProgress{Scope: "discovery", LastPageProcessed: 4, Status: models.RunStatusRunning},
	}}
	ts := newTestServer(t, op)

	status, body := do(t, http.MethodGet, ts.URL+"/api/progress", "")
	assert.Equal(t, http.StatusOK, status)
	discovery := body["discovery"].(map[string]any)
	assert.Equal(t, float64(4), discovery["last_page_processed"])
}

func TestJobs(t *testing.T) {
	ts := newTestServer(t, &fakeOperator{})

	t.Run("counts", func(t *testing.T) {
		status, body := do(t, http.MethodGet, ts.URL+"/api/jobs/counts", "")
		assert.Equal(t, http.StatusOK, status)
		assert.Len(t, body["counts"], 1)
	})

	t.Run("list passes filters", func(t *testing.T) {
		status, body := do(t, http.MethodGet, ts.URL+"/api/jobs?kind=movie_detail&state=discarded&limit=5", "")
		assert.Equal(t, http.StatusOK, status)
		jobs := body["jobs"].([]any)
		require.Len(t, jobs, 1)
		job := jobs[0].(map[string]any)
		assert.Equal(t, "movie_detail", job["kind"])
		assert.Equal(t, "discarded", job["state"])
		assert.Equal(t, float64(5), job["max_attempts"])
	})

	t.Run("bad limit falls back to the default", func(t *testing.T) {
		_, body := do(t, http.MethodGet, ts.URL+"/api/jobs?limit=abc", "")
		job := body["jobs"].([]any)[0].(map[string]any)
		assert.Equal(t, float64(50), job["max_attempts"])
	})

	t.Run("retry", func(t *testing.T) {
		status, body := do(t, http.MethodPost, ts.URL+"/api/jobs/movie_detail_10/retry", "")
		assert.Equal(t, http.StatusAccepted, status)
		assert.Equal(t, "available", body["state"])
	})

	t.Run("retry unknown job is 404", func(t *testing.T) {
		status, body := do(t, http.MethodPost, ts.URL+"/api/jobs/missing/retry", "")
		assert.Equal(t, http.StatusNotFound, status)
		assert.Contains(t, body["error"], "not found")
	})
}

func TestSecondaryImports(t *testing.T) {
	op := &fakeOperator{}
	ts := newTestServer(t, op)

	t.Run("list", func(t *testing.T) {
		status, body := do(t, http.MethodPost, ts.URL+"/api/lists", `{"key":"criterion","list_id":"ls000001"}`)
		assert.Equal(t, http.StatusAccepted, status)
		assert.Equal(t, true, body["queued"])
	})

	t.Run("list missing id is 400", func(t *testing.T) {
		status, _ := do(t, http.MethodPost, ts.URL+"/api/lists", `{"key":"criterion"}`)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("invalid input maps to 400", func(t *testing.T) {
		status, body := do(t, http.MethodPost, ts.URL+"/api/lists", `{"key":"Bad Key","list_id":"ls1"}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, body["error"], "invalid input")
	})

	t.Run("festival single year", func(t *testing.T) {
		status, body := do(t, http.MethodPost, ts.URL+"/api/festivals", `{"festival":"cannes","from":2024}`)
		assert.Equal(t, http.StatusAccepted, status)
		assert.Equal(t, float64(1), body["queued"])
		_, _, festival := op.snapshot()
		assert.Equal(t, []any{"cannes", 2024, 2024}, festival)
	})

	t.Run("festival range", func(t *testing.T) {
		_, body := do(t, http.MethodPost, ts.URL+"/api/festivals", `{"festival":"berlinale","from":2020,"to":2022}`)
		assert.Equal(t, float64(3), body["queued"])
	})
}

func TestReads(t *testing.T) {
	ts := newTestServer(t, &fakeOperator{})

	t.Run("movie detail", func(t *testing.T) {
		status, body := do(t, http.MethodGet, ts.URL+"/api/movies/tt0111161", "")
		assert.Equal(t, http.StatusOK, status)
		movie := body["movie"].(map[string]any)
		assert.Equal(t, float64(278), movie["tmdb_id"])
		assert.Equal(t, "tt0111161", movie["imdb_id"])
		assert.Len(t, body["credits"], 1)
	})

	t.Run("unknown movie is 404", func(t *testing.T) {
		status, _ := do(t, http.MethodGet, ts.URL+"/api/movies/tt0000000", "")
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("source movies pass the limit", func(t *testing.T) {
		status, body := do(t, http.MethodGet, ts.URL+"/api/sources/criterion/movies?limit=7", "")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, float64(1), body["count"])
		movie := body["movies"].([]any)[0].(map[string]any)
		assert.Equal(t, float64(7), movie["revision"])
	})

	t.Run("invalid source key is 400", func(t *testing.T) {
		status, _ := do(t, http.MethodGet, ts.URL+"/api/sources/Bad-Key/movies", "")
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("person", func(t *testing.T) {
		status, body := do(t, http.MethodGet, ts.URL+"/api/persons/504", "")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "Tim Robbins", body["name"])
		assert.Equal(t, float64(504), body["tmdb_id"])
	})

	t.Run("non-numeric person id is 400", func(t *testing.T) {
		status, body := do(t, http.MethodGet, ts.URL+"/api/persons/robbins", "")
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, body["error"], "numeric")
	})
}

func TestStatsAndAudit(t *testing.T) {
	ts := newTestServer(t, &fakeOperator{})

	status, body := do(t, http.MethodGet, ts.URL+"/api/stats", "")
	assert.Equal(t, http.StatusOK, status)
	movies := body["movies"].(map[string]any)
	assert.Equal(t, float64(2), movies["full"])
	runtime := body["runtime"].(map[string]any)
	counters := runtime["counters"].(map[string]any)
	assert.Equal(t, float64(1), counters[metrics.CounterMovieFull])

	status, body = do(t, http.MethodGet, ts.URL+"/api/skipped?decision=soft&limit=3", "")
	assert.Equal(t, http.StatusOK, status)
	row := body["skipped"].([]any)[0].(map[string]any)
	assert.Equal(t, "soft", row["decision"])
	assert.Equal(t, float64(3), row["external_id"])

	status, body = do(t, http.MethodPost, ts.URL+"/api/policy/reload", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "reloaded", body["status"])
}

func TestInternalErrors(t *testing.T) {
	ts := newTestServer(t, &fakeOperator{fail: errors.New("store unavailable")})

	status, body := do(t, http.MethodGet, ts.URL+"/api/progress", "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "store unavailable", body["error"])
}

func TestProgressStream(t *testing.T) {
	op := &fakeOperator{report: models.ProgressReport{
		Discovery: models.ImportProgress{Scope: "discovery", LastPageProcessed: 2},
	}}
	ts := newTestServer(t, op)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/progress/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 2; i++ {
		var msg server.StreamMessage
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&msg))
		require.NotNil(t, msg.Report)
		assert.Equal(t, 2, msg.Report.Discovery.LastPageProcessed)
	}
}
