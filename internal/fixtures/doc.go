// Package fixtures resolves a free-text team name into upcoming matches scraped
// from the amateur football league site.
//
// The flow is one-directional: the SearchResolver turns the query into team
// identifiers, the Pipeline fans out one CalendarFetcher call per identifier,
// and the surviving results come back in resolver order. A fetch never returns
// an error to the pipeline; it either yields a ResolvedTeam or a Skip carrying
// the reason, and skips are logged and dropped.
package fixtures
