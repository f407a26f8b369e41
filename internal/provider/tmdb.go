package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/raphaelgruber/reelimport/internal/models"
)

// ResponseCache stores raw provider responses keyed by request.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key, kind string, body []byte) error
}

// DiscoverResult is one page of the catalog listing.
type DiscoverResult struct {
	Page         int
	TotalPages   int
	TotalResults int
	IDs          []int
}

// TMDb is the primary catalog provider.
type TMDb struct {
	client *Client
	cache  ResponseCache
}

// NewTMDb wraps a rate-limited client. cache may be nil.
func NewTMDb(c *Client, cache ResponseCache) *TMDb {
	return &TMDb{client: c, cache: cache}
}

// TMDbAuth returns a request decorator for key. Read-access tokens (JWTs)
// go in the Authorization header, v3 API keys in the query string.
func TMDbAuth(key string) func(*http.Request) {
	return func(r *http.Request) {
		if key == "" {
			return
		}
		if strings.Count(key, ".") == 2 {
			r.Header.Set("Authorization", "Bearer "+key)
			return
		}
		q := r.URL.Query()
		q.Set("api_key", key)
		r.URL.RawQuery = q.Encode()
	}
}

// Discover fetches one page of the catalog ordered by sortBy.
func (t *TMDb) Discover(ctx context.Context, page int, sortBy string) (DiscoverResult, error) {
	if sortBy == "" {
		sortBy = "popularity.desc"
	}
	body, err := t.client.Get(ctx, "/discover/movie", url.Values{
		"page":          {strconv.Itoa(page)},
		"sort_by":       {sortBy},
		"include_adult": {"false"},
		"include_video": {"false"},
	})
	if err != nil {
		return DiscoverResult{}, err
	}
	res, err := parseDiscover(body)
	if err != nil {
		return DiscoverResult{}, parseError(NameTMDb, "/discover/movie", err)
	}
	return res, nil
}

// MovieDetails fetches a movie with credits, external ids and images.
func (t *TMDb) MovieDetails(ctx context.Context, id int) (models.MovieCandidate, error) {
	endpoint := fmt.Sprintf("/movie/%d", id)
	key := "tmdb:movie:" + strconv.Itoa(id)

	body, cached := t.cached(ctx, key)
	if !cached {
		var err error
		body, err = t.client.Get(ctx, endpoint, url.Values{
			"append_to_response": {"credits,external_ids,images"},
		})
		if err != nil {
			return models.MovieCandidate{}, err
		}
	}

	c, err := parseMovieDetails(body)
	if err != nil {
		return models.MovieCandidate{}, parseError(NameTMDb, endpoint, err)
	}
	if !cached {
		t.store(ctx, key, "movie", body)
	}
	return c, nil
}

// FindByIMDbID resolves an IMDb id to a TMDb movie id.
func (t *TMDb) FindByIMDbID(ctx context.Context, imdbID string) (int, error) {
	endpoint := "/find/" + url.PathEscape(imdbID)
	body, err := t.client.Get(ctx, endpoint, url.Values{"external_source": {"imdb_id"}})
	if err != nil {
		return 0, err
	}
	d, err := decodeDoc(body)
	if err != nil {
		return 0, parseError(NameTMDb, endpoint, err)
	}
	for _, m := range d.list("movie_results") {
		if id := m.intOr("id", 0); id > 0 {
			return id, nil
		}
	}
	return 0, &Error{Provider: NameTMDb, Op: endpoint, NotFound: true, Err: fmt.Errorf("no movie for %s", imdbID)}
}

func (t *TMDb) cached(ctx context.Context, key string) ([]byte, bool) {
	if t.cache == nil {
		return nil, false
	}
	return t.cache.Get(ctx, key)
}

func (t *TMDb) store(ctx context.Context, key, kind string, body []byte) {
	if t.cache == nil {
		return
	}
	if err := t.cache.Set(ctx, key, kind, body); err != nil {
		t.client.logger.Warn("failed to cache provider response", "key", key, "error", err)
	}
}

func parseDiscover(body []byte) (DiscoverResult, error) {
	d, err := decodeDoc(body)
	if err != nil {
		return DiscoverResult{}, err
	}
	res := DiscoverResult{
		Page:         d.intOr("page", 0),
		TotalPages:   d.intOr("total_pages", 0),
		TotalResults: d.intOr("total_results", 0),
	}
	for _, r := range d.list("results") {
		if id := r.intOr("id", 0); id > 0 {
			res.IDs = append(res.IDs, id)
		}
	}
	return res, nil
}

func parseMovieDetails(body []byte) (models.MovieCandidate, error) {
	d, err := decodeDoc(body)
	if err != nil {
		return models.MovieCandidate{}, err
	}
	id := d.intOr("id", 0)
	if id <= 0 {
		return models.MovieCandidate{}, errors.New("missing movie id")
	}

	c := models.MovieCandidate{
		TMDbID:        id,
		IMDbID:        d.str("imdb_id"),
		Title:         d.text("title"),
		OriginalTitle: d.str("original_title"),
		ReleaseDate:   d.str("release_date"),
		Overview:      d.str("overview"),
		Runtime:       d.int("runtime"),
		Popularity:    d.float("popularity"),
		VoteAverage:   d.float("vote_average"),
		VoteCount:     d.int("vote_count"),
		PosterPath:    d.str("poster_path"),
		BackdropPath:  d.str("backdrop_path"),
		Adult:         d.bool("adult"),
	}
	if c.IMDbID == nil {
		c.IMDbID = d.obj("external_ids").str("imdb_id")
	}
	if c.PosterPath == nil {
		for _, p := range d.obj("images").list("posters") {
			if fp := p.str("file_path"); fp != nil {
				c.PosterPath = fp
				break
			}
		}
	}

	credits := d.obj("credits")
	for _, m := range credits.list("cast") {
		p := parsePerson(m)
		if p.TMDbID <= 0 {
			continue
		}
		c.Cast = append(c.Cast, models.CastMember{
			PersonCandidate: p,
			CreditID:        creditID(m, id, p.TMDbID, "cast"),
			Character:       m.text("character"),
			Order:           m.intOr("order", len(c.Cast)),
		})
	}
	for _, m := range credits.list("crew") {
		p := parsePerson(m)
		if p.TMDbID <= 0 {
			continue
		}
		job := m.text("job")
		c.Crew = append(c.Crew, models.CrewMember{
			PersonCandidate: p,
			CreditID:        creditID(m, id, p.TMDbID, job),
			Department:      m.text("department"),
			Job:             job,
		})
	}
	return c, nil
}

func parsePerson(m doc) models.PersonCandidate {
	return models.PersonCandidate{
		TMDbID:             m.intOr("id", 0),
		Name:               m.text("name"),
		Popularity:         m.float("popularity"),
		ProfilePath:        m.str("profile_path"),
		KnownForDepartment: m.str("known_for_department"),
	}
}

func creditID(m doc, movie, person int, role string) string {
	if id := m.str("credit_id"); id != nil {
		return *id
	}
	return fmt.Sprintf("%d_%d_%s", movie, person, models.Slugify(role))
}
