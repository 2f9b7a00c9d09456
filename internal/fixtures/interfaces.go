package fixtures

import "context"

// Page is a fetched HTML document.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// PageGetter issues a single GET and returns the page regardless of status code.
// Transport failures are returned as errors.
type PageGetter interface {
	Get(ctx context.Context, rawURL string) (Page, error)
}

// Resolver turns a free-text team name into team identifiers.
type Resolver interface {
	Resolve(ctx context.Context, query string) []TeamID
}

// Fetcher loads the upcoming fixtures for one team.
type Fetcher interface {
	Fetch(ctx context.Context, id TeamID) Outcome
}
