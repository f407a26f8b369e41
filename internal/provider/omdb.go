package provider

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// OMDb is the secondary enrichment provider, looked up by IMDb id.
type OMDb struct {
	client *Client
}

// NewOMDb wraps a rate-limited client.
func NewOMDb(c *Client) *OMDb {
	return &OMDb{client: c}
}

// OMDbAuth adds the apikey query parameter.
func OMDbAuth(key string) func(*http.Request) {
	return func(r *http.Request) {
		if key == "" {
			return
		}
		q := r.URL.Query()
		q.Set("apikey", key)
		r.URL.RawQuery = q.Encode()
	}
}

// Lookup returns the enrichment fields for imdbID, suitable for
// Movie.ExternalRatings. Absent values are omitted.
func (o *OMDb) Lookup(ctx context.Context, imdbID string) (map[string]any, error) {
	body, err := o.client.Get(ctx, "/", url.Values{"i": {imdbID}, "plot": {"short"}})
	if err != nil {
		return nil, err
	}
	out, err := parseOMDb(body)
	if err != nil {
		var perr *Error
		if errors.As(err, &perr) {
			return nil, perr
		}
		return nil, parseError(NameOMDb, "lookup", err)
	}
	return out, nil
}

func parseOMDb(body []byte) (map[string]any, error) {
	d, err := decodeDoc(body)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(d.text("Response"), "False") {
		msg := d.text("Error")
		if msg == "" {
			msg = "no result"
		}
		return nil, &Error{Provider: NameOMDb, Op: "lookup", NotFound: true, Err: errors.New(msg)}
	}

	out := map[string]any{}
	if v := d.float("imdbRating"); v != nil {
		out["imdb_rating"] = *v
	}
	if v := d.int("imdbVotes"); v != nil {
		out["imdb_votes"] = *v
	}
	if v := d.int("Metascore"); v != nil {
		out["metascore"] = *v
	}
	for key, field := range map[string]string{
		"rated":      "Rated",
		"awards":     "Awards",
		"box_office": "BoxOffice",
		"country":    "Country",
		"language":   "Language",
	} {
		if v := d.str(field); v != nil {
			out[key] = *v
		}
	}
	for _, r := range d.list("Ratings") {
		src, val := r.text("Source"), r.text("Value")
		if src == "Rotten Tomatoes" && val != "" {
			out["rotten_tomatoes"] = val
		}
	}
	return out, nil
}
