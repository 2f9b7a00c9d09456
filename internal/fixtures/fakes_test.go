package fixtures

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// fakeGetter serves canned pages keyed by URL and records every request.
type fakeGetter struct {
	mu     sync.Mutex
	pages  map[string]Page
	errs   map[string]error
	calls  []string
	before func(rawURL string)
}

func newFakeGetter() *fakeGetter {
	return &fakeGetter{pages: map[string]Page{}, errs: map[string]error{}}
}

func (g *fakeGetter) serve(rawURL string, status int, body string) {
	g.pages[rawURL] = Page{URL: rawURL, StatusCode: status, Body: []byte(body)}
}

func (g *fakeGetter) fail(rawURL string, err error) {
	g.errs[rawURL] = err
}

func (g *fakeGetter) Get(_ context.Context, rawURL string) (Page, error) {
	if g.before != nil {
		g.before(rawURL)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, rawURL)
	if err, ok := g.errs[rawURL]; ok {
		return Page{}, err
	}
	page, ok := g.pages[rawURL]
	if !ok {
		return Page{URL: rawURL, StatusCode: http.StatusNotFound}, nil
	}
	return page, nil
}

func (g *fakeGetter) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

var errConnRefused = errors.New("connection refused")

func searchPage(hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, href := range hrefs {
		if href == "" {
			b.WriteString(`<li class="style_searchItem__li__mziH_"><span>no link</span></li>`)
			continue
		}
		fmt.Fprintf(&b, `<li class="style_searchItem__li__mziH_"><a href=%q>team</a></li>`, href)
	}
	b.WriteString(`<li class="other"><a href="/club/999">unrelated</a></li>`)
	b.WriteString("</ul></body></html>")
	return b.String()
}

func calendarPage(payload string) string {
	return `<html><head><script id="__NEXT_DATA__" type="application/json">` +
		payload + `</script></head><body></body></html>`
}

func fixtureJSON(when, home, away string) string {
	return fmt.Sprintf(`{"match_date_time":%q,"stadium_name":"Arena","stadium_address":"Lenina 1",`+
		`"home_club_name":%q,"away_club_name":%q,"tour":3}`, when, home, away)
}

func matchesPayload(club string, length int, fixtures ...string) string {
	return fmt.Sprintf(`{"props":{"pageProps":{"club":{"name":%q},"matches":{"data":[%s],"length":%d}}}}`,
		club, strings.Join(fixtures, ","), length)
}

func nullMatchesPayload(club string) string {
	return fmt.Sprintf(`{"props":{"pageProps":{"club":{"name":%q},"matches":null}}}`, club)
}
