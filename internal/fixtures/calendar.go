package fixtures

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/lflhelper/fixtures-bot/internal/metrics"
)

var errNoPayload = errors.New("hydration script not found")

// CalendarFetcher loads a team's upcoming-matches page and extracts fixtures.
type CalendarFetcher struct {
	getter PageGetter
	site   Site
	logger *zap.Logger
}

// NewCalendarFetcher builds a fetcher that issues requests through getter.
func NewCalendarFetcher(getter PageGetter, site Site, logger *zap.Logger) *CalendarFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarFetcher{
		getter: getter,
		site:   site.withDefaults(),
		logger: logger.Named("calendar"),
	}
}

// Fetch returns the team's club name and at most MaxFixtures upcoming matches.
// It never panics and never returns an error; failures are reported as a Skip.
func (f *CalendarFetcher) Fetch(ctx context.Context, id TeamID) (out Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			out = skipped(id, SkipPanic, fmt.Errorf("recovered: %v", rec))
		}
		reason := "ok"
		if out.Skip != nil {
			reason = string(out.Skip.Reason)
		}
		metrics.ObserveCalendarFetch(reason)
	}()

	page, err := f.getter.Get(ctx, f.site.CalendarURL(id))
	if err != nil {
		return skipped(id, SkipTransport, err)
	}
	if page.StatusCode != http.StatusOK {
		return skipped(id, SkipStatus, fmt.Errorf("unexpected status %d", page.StatusCode))
	}

	raw, err := hydrationScript(page.Body, f.site.PayloadScriptID)
	if err != nil {
		return skipped(id, SkipNoPayload, err)
	}
	doc, err := decodePayload(raw)
	if err != nil {
		return skipped(id, SkipDecode, err)
	}
	team, err := teamFromPayload(id, doc)
	if err != nil {
		return skipped(id, SkipShape, err)
	}
	f.logger.Debug("calendar parsed",
		zap.String("team_id", string(id)),
		zap.String("team", team.TeamName),
		zap.Int("fixtures", len(team.Result.Fixtures)),
	)
	return found(team)
}

func hydrationScript(body []byte, scriptID string) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar page: %w", err)
	}
	script := doc.Find(fmt.Sprintf("script[id=%q]", scriptID)).First()
	if script.Length() == 0 {
		return nil, errNoPayload
	}
	text := strings.TrimSpace(script.Text())
	if text == "" {
		return nil, errNoPayload
	}
	return []byte(text), nil
}
