package fixtures

import (
	"fmt"
	"net/url"
	"strings"
)

// Defaults for the league site layout.
const (
	DefaultBaseURL            = "https://page.lfl.ru"
	DefaultSearchItemSelector = "li.style_searchItem__li__mziH_"
	DefaultPayloadScriptID    = "__NEXT_DATA__"
)

// Site describes where and how the league site exposes search results and calendars.
type Site struct {
	BaseURL            string
	SearchItemSelector string
	PayloadScriptID    string
}

// DefaultSite returns the production site layout.
func DefaultSite() Site {
	return Site{
		BaseURL:            DefaultBaseURL,
		SearchItemSelector: DefaultSearchItemSelector,
		PayloadScriptID:    DefaultPayloadScriptID,
	}
}

func (s Site) withDefaults() Site {
	if strings.TrimSpace(s.BaseURL) == "" {
		s.BaseURL = DefaultBaseURL
	}
	s.BaseURL = strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if s.SearchItemSelector == "" {
		s.SearchItemSelector = DefaultSearchItemSelector
	}
	if s.PayloadScriptID == "" {
		s.PayloadScriptID = DefaultPayloadScriptID
	}
	return s
}

// SearchURL builds the search endpoint URL for a team name.
// The name is lower-cased and percent-encoded with spaces as %20.
func (s Site) SearchURL(query string) string {
	return fmt.Sprintf("%s/search?search=%s", s.BaseURL, encodeQuery(query))
}

// CalendarURL builds the upcoming-matches page URL for a team.
func (s Site) CalendarURL(id TeamID) string {
	return fmt.Sprintf(
		"%s/matches-calendar/%s?order=asc&currentDate=upcoming",
		s.BaseURL,
		url.PathEscape(string(id)),
	)
}

func encodeQuery(query string) string {
	// QueryEscape writes spaces as '+' and escapes literal '+' as %2B, so the
	// replacement only touches spaces.
	return strings.ReplaceAll(url.QueryEscape(strings.ToLower(query)), "+", "%20")
}
