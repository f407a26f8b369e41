// Package client provides an HTTP client for the reelimport operator API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/reelimport/internal/models"
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error: %d - %s", e.StatusCode, e.Message)
}

// Is maps 404 onto ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client talks to the reelimport server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new client.
// If baseURL is empty, uses REELIMPORT_SERVER_URL env var or defaults to localhost:8585.
// Timeout can be configured via REELIMPORT_CLIENT_TIMEOUT env var (default 30s).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("REELIMPORT_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8585"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("REELIMPORT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// do sends a request and decodes the JSON answer into result.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// Health checks that the server and its store are reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// Progress returns the combined progress report.
func (c *Client) Progress(ctx context.Context) (*models.ProgressReport, error) {
	var r models.ProgressReport
	if err := c.do(ctx, http.MethodGet, "/api/progress", nil, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// StartImport starts the discovery crawl. restart rewinds it to page one.
func (c *Client) StartImport(ctx context.Context, restart bool) (*models.ImportProgress, error) {
	q := url.Values{}
	if restart {
		q.Set("restart", "true")
	}
	return c.control(ctx, "/api/import/start", q)
}

// StopImport stops the discovery crawl.
func (c *Client) StopImport(ctx context.Context) (*models.ImportProgress, error) {
	return c.control(ctx, "/api/import/stop", nil)
}

// ResumeImport resumes the discovery crawl from its cursor.
func (c *Client) ResumeImport(ctx context.Context) (*models.ImportProgress, error) {
	return c.control(ctx, "/api/import/resume", nil)
}

func (c *Client) control(ctx context.Context, path string, q url.Values) (*models.ImportProgress, error) {
	var p models.ImportProgress
	if err := c.do(ctx, http.MethodPost, path, q, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// JobCounts returns queue depth per kind and state.
func (c *Client) JobCounts(ctx context.Context) ([]models.JobCount, error) {
	var out struct {
		Counts []models.JobCount `json:"counts"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/jobs/counts", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Counts, nil
}

// ListJobs lists jobs matching filter.
func (c *Client) ListJobs(ctx context.Context, filter models.JobFilter) ([]models.ImportJob, error) {
	q := url.Values{}
	if filter.Kind != "" {
		q.Set("kind", string(filter.Kind))
	}
	if filter.State != "" {
		q.Set("state", string(filter.State))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	var out struct {
		Jobs []models.ImportJob `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/jobs", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// RetryJob replays a discarded or cancelled job.
func (c *Client) RetryJob(ctx context.Context, id string) (*models.ImportJob, error) {
	var job models.ImportJob
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/retry", nil, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListSkipped returns recent quality gate audit rows.
func (c *Client) ListSkipped(ctx context.Context, decision string, limit int) ([]models.SkippedImport, error) {
	q := url.Values{}
	if decision != "" {
		q.Set("decision", decision)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Skipped []models.SkippedImport `json:"skipped"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/skipped", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Skipped, nil
}

// ImportList starts a canonical list import. queued is false when the first
// page job was already waiting.
func (c *Client) ImportList(ctx context.Context, key, listID string) (queued bool, err error) {
	var out struct {
		Queued bool `json:"queued"`
	}
	body := map[string]string{"key": key, "list_id": listID}
	if err := c.do(ctx, http.MethodPost, "/api/lists", nil, body, &out); err != nil {
		return false, err
	}
	return out.Queued, nil
}

// ImportFestival queues ceremonies for the years in [from, to] and returns
// the number of new jobs.
func (c *Client) ImportFestival(ctx context.Context, festival string, from, to int) (int, error) {
	var out struct {
		Queued int `json:"queued"`
	}
	body := map[string]any{"festival": festival, "from": from, "to": to}
	if err := c.do(ctx, http.MethodPost, "/api/festivals", nil, body, &out); err != nil {
		return 0, err
	}
	return out.Queued, nil
}

// Movie returns a stored movie with its credits and collaborations. ref is
// a TMDb id or an IMDb id.
func (c *Client) Movie(ctx context.Context, ref string) (*models.MovieDetail, error) {
	var d models.MovieDetail
	if err := c.do(ctx, http.MethodGet, "/api/movies/"+url.PathEscape(ref), nil, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// SourceMovies lists movies stamped by a canonical source.
func (c *Client) SourceMovies(ctx context.Context, key string, limit int) ([]models.Movie, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Movies []models.Movie `json:"movies"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/sources/"+url.PathEscape(key)+"/movies", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Movies, nil
}

// Person returns a stored person.
func (c *Client) Person(ctx context.Context, tmdbID int) (*models.Person, error) {
	var p models.Person
	if err := c.do(ctx, http.MethodGet, "/api/persons/"+strconv.Itoa(tmdbID), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Stats returns movie totals, queue depth and runtime counters.
func (c *Client) Stats(ctx context.Context) (*models.ImportStats, error) {
	var s models.ImportStats
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ReloadPolicy asks the server to re-read its policy file.
func (c *Client) ReloadPolicy(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, "/api/policy/reload", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// streamMessage mirrors one frame of the server's progress stream.
type streamMessage struct {
	Report *models.ProgressReport `json:"report,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// WatchProgress subscribes to the progress stream and invokes onReport for
// every report. Return an error from onReport to stop watching. It returns
// ctx.Err() when the context is cancelled.
func (c *Client) WatchProgress(ctx context.Context, onReport func(models.ProgressReport) error) error {
	wsEndpoint := c.baseURL + "/api/progress/stream"
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}

	var once sync.Once
	closeConn := func() { once.Do(func() { conn.Close() }) }
	defer closeConn()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}
		if msg.Error != "" {
			return fmt.Errorf("progress stream: %s", msg.Error)
		}
		if msg.Report == nil {
			continue
		}
		if err := onReport(*msg.Report); err != nil {
			return err
		}
	}
}
