package fixtures

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"github.com/lflhelper/fixtures-bot/internal/metrics"
)

// Pipeline resolves a team name and fetches every matching team's fixtures.
type Pipeline struct {
	resolver Resolver
	fetcher  Fetcher
	logger   *zap.Logger
	now      func() time.Time
}

// NewPipeline wires a resolver and a fetcher into a pipeline.
func NewPipeline(resolver Resolver, fetcher Fetcher, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		resolver: resolver,
		fetcher:  fetcher,
		logger:   logger.Named("pipeline"),
		now:      time.Now,
	}
}

// NewSitePipeline builds the production pipeline over a single page getter,
// so the search and every calendar fetch share one transport.
func NewSitePipeline(getter PageGetter, site Site, logger *zap.Logger) *Pipeline {
	return NewPipeline(
		NewSearchResolver(getter, site, logger),
		NewCalendarFetcher(getter, site, logger),
		logger,
	)
}

// Run returns the teams matching query in resolver order. Teams whose fetch
// failed are left out.
func (p *Pipeline) Run(ctx context.Context, query string) []ResolvedTeam {
	return p.RunReport(ctx, query).Teams
}

// RunReport runs the pipeline and also reports how many identifiers were
// resolved and which fetches were skipped.
func (p *Pipeline) RunReport(ctx context.Context, query string) (report Report) {
	start := p.now()
	report.Query = query
	defer func() {
		report.Duration = p.now().Sub(start)
		metrics.ObservePipeline(report.Duration)
	}()

	ids := p.resolver.Resolve(ctx, query)
	report.Resolved = len(ids)
	if len(ids) == 0 {
		p.logger.Info("no teams matched", zap.String("query", query))
		return report
	}

	outcomes := p.fetchAll(ctx, ids)

	report.Teams = make([]ResolvedTeam, 0, len(outcomes))
	for _, outcome := range outcomes {
		if outcome.Skip != nil {
			p.logger.Warn("team skipped",
				zap.String("query", query),
				zap.String("team_id", string(outcome.Skip.TeamID)),
				zap.String("reason", string(outcome.Skip.Reason)),
				zap.Error(outcome.Skip.Err),
			)
			report.Skipped = append(report.Skipped, *outcome.Skip)
			continue
		}
		report.Teams = append(report.Teams, outcome.Team)
	}
	p.logger.Info("fixtures resolved",
		zap.String("query", query),
		zap.Int("resolved", report.Resolved),
		zap.Int("teams", len(report.Teams)),
		zap.Int("skipped", len(report.Skipped)),
	)
	return report
}

// fetchAll runs one fetch per identifier concurrently. Each goroutine writes
// only its own slot, so the result order matches ids.
func (p *Pipeline) fetchAll(ctx context.Context, ids []TeamID) []Outcome {
	mapper := iter.Mapper[TeamID, Outcome]{MaxGoroutines: len(ids)}
	return mapper.Map(ids, func(id *TeamID) Outcome {
		return p.fetchOne(ctx, *id)
	})
}

func (p *Pipeline) fetchOne(ctx context.Context, id TeamID) (out Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			out = skipped(id, SkipPanic, fmt.Errorf("recovered: %v", rec))
		}
	}()
	out = p.fetcher.Fetch(ctx, id)
	if out.Skip == nil {
		out.Team.TeamID = id
	}
	return out
}
