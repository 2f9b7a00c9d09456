package fixtures

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/lflhelper/fixtures-bot/internal/metrics"
)

// Search outcomes reported to metrics.
const (
	searchFound     = "found"
	searchEmpty     = "empty"
	searchFailed    = "failed"
	searchMalformed = "malformed"
)

// SearchResolver resolves team names through the site's search page.
type SearchResolver struct {
	getter PageGetter
	site   Site
	logger *zap.Logger
}

// NewSearchResolver builds a resolver that issues requests through getter.
func NewSearchResolver(getter PageGetter, site Site, logger *zap.Logger) *SearchResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchResolver{
		getter: getter,
		site:   site.withDefaults(),
		logger: logger.Named("resolver"),
	}
}

// Resolve returns the distinct team identifiers listed for query, in page order.
// Transport failures and non-200 responses yield an empty result.
func (r *SearchResolver) Resolve(ctx context.Context, query string) []TeamID {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	searchURL := r.site.SearchURL(query)
	page, err := r.getter.Get(ctx, searchURL)
	if err != nil {
		r.logger.Warn("search request failed", zap.String("query", query), zap.Error(err))
		metrics.ObserveSearch(searchFailed, 0)
		return nil
	}
	if page.StatusCode != http.StatusOK {
		r.logger.Warn("search returned non-200",
			zap.String("query", query),
			zap.Int("status", page.StatusCode),
		)
		metrics.ObserveSearch(searchFailed, 0)
		return nil
	}

	raw, err := extractTeamIDs(page.Body, r.site.SearchItemSelector)
	if err != nil {
		r.logger.Warn("search page unreadable", zap.String("query", query), zap.Error(err))
		metrics.ObserveSearch(searchMalformed, 0)
		return nil
	}
	ids := dedupeIDs(raw)
	outcome := searchFound
	if len(ids) == 0 {
		outcome = searchEmpty
	}
	metrics.ObserveSearch(outcome, len(ids))
	r.logger.Debug("search resolved",
		zap.String("query", query),
		zap.Int("raw", len(raw)),
		zap.Int("identifiers", len(ids)),
	)
	return ids
}

// extractTeamIDs collects the digits of each search item's first link, in
// document order. Items without a link or without digits are ignored.
func extractTeamIDs(body []byte, selector string) ([]TeamID, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var ids []TeamID
	doc.Find(selector).Each(func(_ int, item *goquery.Selection) {
		href, ok := item.Find("a").First().Attr("href")
		if !ok {
			return
		}
		if digits := keepDigits(href); digits != "" {
			ids = append(ids, TeamID(digits))
		}
	})
	return ids, nil
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r <= unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func dedupeIDs(ids []TeamID) []TeamID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[TeamID]struct{}, len(ids))
	out := make([]TeamID, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
