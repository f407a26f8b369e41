package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyListHTML = `<html><body>
<div class="lister-list">
  <div class="lister-item">
    <span class="lister-item-index">1.</span>
    <h3 class="lister-item-header"><a href="/title/tt0111161/?ref_=ttls_li_tt">The Shawshank Redemption</a></h3>
  </div>
  <div class="lister-item">
    <span class="lister-item-index">2.</span>
    <h3 class="lister-item-header"><a href="/title/tt0068646/">The Godfather</a></h3>
  </div>
  <div class="lister-item">
    <span class="lister-item-index">3.</span>
    <h3 class="lister-item-header"><a href="/title/tt0068646/">The Godfather (dup)</a></h3>
  </div>
</div>
<a class="lister-page-next next-page" href="?page=2">Next</a>
</body></html>`

const modernListHTML = `<html><body><ul>
  <li class="ipc-metadata-list-summary-item">
    <a href="/title/tt0071562/"><h3 class="ipc-title__text">101. The Godfather Part II</h3></a>
  </li>
  <li class="ipc-metadata-list-summary-item">
    <a href="/name/nm0000199/">Al Pacino</a>
  </li>
</ul></body></html>`

func TestParseListPageLegacy(t *testing.T) {
	lp, err := parseListPage([]byte(legacyListHTML), 1)
	require.NoError(t, err)
	assert.True(t, lp.HasNext)
	assert.Equal(t, []ListEntry{
		{IMDbID: "tt0111161", Title: "The Shawshank Redemption", Position: 1},
		{IMDbID: "tt0068646", Title: "The Godfather", Position: 2},
	}, lp.Entries)
}

func TestParseListPageModern(t *testing.T) {
	lp, err := parseListPage([]byte(modernListHTML), 2)
	require.NoError(t, err)
	assert.False(t, lp.HasNext)
	require.Len(t, lp.Entries, 1)
	assert.Equal(t, ListEntry{IMDbID: "tt0071562", Title: "The Godfather Part II", Position: 101}, lp.Entries[0])
}

const ceremonyHTML = `<html><body>
<div class="award-category">
  <h3 class="category-name">Best Picture</h3>
  <div class="nominee winner"><a href="/title/tt15398776/">Oppenheimer</a></div>
  <div class="nominee"><a href="/title/tt1517268/">Barbie</a></div>
</div>
<div class="award-category">
  <h3>Best Director</h3>
  <div class="nominee"><span class="winner">Winner</span><a href="/title/tt15398776/">Oppenheimer</a></div>
  <div class="nominee"><a href="/name/nm0000001/">No film link</a></div>
</div>
</body></html>`

func TestParseCeremony(t *testing.T) {
	noms, err := parseCeremony([]byte(ceremonyHTML))
	require.NoError(t, err)
	assert.Equal(t, []Nomination{
		{Category: "Best Picture", IMDbID: "tt15398776", Title: "Oppenheimer", Winner: true},
		{Category: "Best Picture", IMDbID: "tt1517268", Title: "Barbie", Winner: false},
		{Category: "Best Director", IMDbID: "tt15398776", Title: "Oppenheimer", Winner: true},
	}, noms)
}

func TestFetchPageAndCeremony(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/list/ls055592025/":
			assert.Equal(t, "1", r.URL.Query().Get("page"))
			_, _ = w.Write([]byte(legacyListHTML))
		case "/event/ev0000003/2024/1/":
			_, _ = w.Write([]byte(ceremonyHTML))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(NameScrape, srv.URL, fastLimits(), nil)

	lp, err := NewListSource(client).FetchPage(context.Background(), "ls055592025", 1)
	require.NoError(t, err)
	assert.Len(t, lp.Entries, 2)

	cer, err := NewFestivalSource(client).FetchCeremony(context.Background(), "ev0000003", 2024)
	require.NoError(t, err)
	assert.Equal(t, 2024, cer.Year)
	assert.Len(t, cer.Nominations, 3)

	_, err = NewListSource(client).FetchPage(context.Background(), "missing", 1)
	assert.True(t, IsPermanent(err))
}
