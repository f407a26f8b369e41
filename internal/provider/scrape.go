package provider

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var imdbIDPattern = regexp.MustCompile(`tt\d{7,}`)

// ListEntry is one film on a curated list page.
type ListEntry struct {
	IMDbID   string
	Title    string
	Position int
}

// ListPage is one page of a curated list.
type ListPage struct {
	Page    int
	Entries []ListEntry
	HasNext bool
}

// Nomination is one nominee of a ceremony category.
type Nomination struct {
	Category string
	IMDbID   string
	Title    string
	Winner   bool
}

// Ceremony is the parsed result of one festival or award ceremony.
type Ceremony struct {
	Festival    string
	Year        int
	Nominations []Nomination
}

// ListSource scrapes curated list pages.
type ListSource struct {
	client *Client
}

// NewListSource wraps a rate-limited client.
func NewListSource(c *Client) *ListSource {
	return &ListSource{client: c}
}

// FetchPage fetches and parses one page of list listID.
func (s *ListSource) FetchPage(ctx context.Context, listID string, page int) (ListPage, error) {
	endpoint := "/list/" + url.PathEscape(listID) + "/"
	body, err := s.client.Get(ctx, endpoint, url.Values{"page": {strconv.Itoa(page)}})
	if err != nil {
		return ListPage{}, err
	}
	lp, err := parseListPage(body, page)
	if err != nil {
		return ListPage{}, parseError(NameScrape, endpoint, err)
	}
	return lp, nil
}

// FestivalSource scrapes ceremony pages.
type FestivalSource struct {
	client *Client
}

// NewFestivalSource wraps a rate-limited client.
func NewFestivalSource(c *Client) *FestivalSource {
	return &FestivalSource{client: c}
}

// FetchCeremony fetches and parses the ceremony of festival in year.
func (s *FestivalSource) FetchCeremony(ctx context.Context, festival string, year int) (Ceremony, error) {
	endpoint := fmt.Sprintf("/event/%s/%d/1/", url.PathEscape(festival), year)
	body, err := s.client.Get(ctx, endpoint, nil)
	if err != nil {
		return Ceremony{}, err
	}
	noms, err := parseCeremony(body)
	if err != nil {
		return Ceremony{}, parseError(NameScrape, endpoint, err)
	}
	return Ceremony{Festival: festival, Year: year, Nominations: noms}, nil
}

// parseListPage accepts both the legacy ".lister-item" layout and the
// current ".ipc-metadata-list-summary-item" layout.
func parseListPage(html []byte, page int) (ListPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ListPage{}, err
	}

	lp := ListPage{Page: page}
	seen := map[string]bool{}
	doc.Find(".lister-item, .ipc-metadata-list-summary-item").Each(func(i int, item *goquery.Selection) {
		link := item.Find(`a[href*="/title/tt"]`).First()
		href, _ := link.Attr("href")
		id := imdbIDPattern.FindString(href)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true

		title := normSpace(item.Find(".lister-item-header a, .ipc-title__text").First().Text())
		if title == "" {
			title = normSpace(link.Text())
		}
		pos := len(lp.Entries) + 1
		if n, err := strconv.Atoi(strings.TrimSuffix(normSpace(item.Find(".lister-item-index").First().Text()), ".")); err == nil {
			pos = n
		} else if n, ok := leadingNumber(title); ok {
			pos = n
		}
		lp.Entries = append(lp.Entries, ListEntry{IMDbID: id, Title: stripRank(title), Position: pos})
	})

	lp.HasNext = doc.Find("a.lister-page-next, a.next-page, a[rel='next']").Length() > 0
	return lp, nil
}

// parseCeremony reads ".award-category" blocks; each ".nominee" inside names
// a film, and ".winner" (on the nominee or a child) marks the winner.
func parseCeremony(html []byte) ([]Nomination, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	var noms []Nomination
	doc.Find(".award-category").Each(func(_ int, cat *goquery.Selection) {
		category := normSpace(cat.Find(".category-name").First().Text())
		if category == "" {
			category = normSpace(cat.Find("h3").First().Text())
		}
		cat.Find(".nominee").Each(func(_ int, n *goquery.Selection) {
			link := n.Find(`a[href*="/title/tt"]`).First()
			href, _ := link.Attr("href")
			id := imdbIDPattern.FindString(href)
			if id == "" {
				return
			}
			noms = append(noms, Nomination{
				Category: category,
				IMDbID:   id,
				Title:    normSpace(link.Text()),
				Winner:   n.HasClass("winner") || n.Find(".winner").Length() > 0,
			})
		})
	})
	return noms, nil
}

func normSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// leadingNumber reads a "12. Title" rank prefix.
func leadingNumber(s string) (int, bool) {
	dot := strings.Index(s, ". ")
	if dot <= 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:dot])
	return n, err == nil
}

func stripRank(s string) string {
	if _, ok := leadingNumber(s); ok {
		return s[strings.Index(s, ". ")+2:]
	}
	return s
}
