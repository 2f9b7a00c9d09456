package fixtures

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubResolver struct {
	ids   []TeamID
	calls atomic.Int32
}

func (r *stubResolver) Resolve(context.Context, string) []TeamID {
	r.calls.Add(1)
	return r.ids
}

type funcFetcher struct {
	fn    func(ctx context.Context, id TeamID) Outcome
	calls atomic.Int32
}

func (f *funcFetcher) Fetch(ctx context.Context, id TeamID) Outcome {
	f.calls.Add(1)
	return f.fn(ctx, id)
}

func teamNamed(name string) Outcome {
	return found(ResolvedTeam{TeamName: name, Result: NoFixtures()})
}

func TestPipelineZeroIdentifiersIssuesNoFetches(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{}
	fetcher := &funcFetcher{fn: func(context.Context, TeamID) Outcome { return teamNamed("x") }}
	pipeline := NewPipeline(resolver, fetcher, zap.NewNop())

	report := pipeline.RunReport(context.Background(), "nobody")
	require.Empty(t, report.Teams)
	require.Zero(t, report.Resolved)
	require.False(t, report.AllFailed())
	require.EqualValues(t, 1, resolver.calls.Load())
	require.Zero(t, fetcher.calls.Load())
}

func TestPipelinePreservesDispatchOrder(t *testing.T) {
	t.Parallel()

	release := map[TeamID]chan struct{}{
		"1": make(chan struct{}),
		"2": make(chan struct{}),
		"3": make(chan struct{}),
	}
	var started sync.WaitGroup
	started.Add(3)
	fetcher := &funcFetcher{fn: func(_ context.Context, id TeamID) Outcome {
		started.Done()
		<-release[id]
		return teamNamed("team-" + string(id))
	}}
	pipeline := NewPipeline(&stubResolver{ids: []TeamID{"1", "2", "3"}}, fetcher, nil)

	done := make(chan []ResolvedTeam, 1)
	go func() { done <- pipeline.Run(context.Background(), "q") }()

	// All fetches are in flight at once; completion order is 3, 1, 2.
	waitOrFail(t, &started)
	close(release["3"])
	close(release["1"])
	close(release["2"])

	select {
	case teams := <-done:
		require.Len(t, teams, 3)
		require.Equal(t, "team-1", teams[0].TeamName)
		require.Equal(t, "team-2", teams[1].TeamName)
		require.Equal(t, "team-3", teams[2].TeamName)
		require.Equal(t, TeamID("1"), teams[0].TeamID)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not finish")
	}
}

func TestPipelineIsolatesFailures(t *testing.T) {
	t.Parallel()

	fetcher := &funcFetcher{fn: func(_ context.Context, id TeamID) Outcome {
		switch id {
		case "2":
			return skipped(id, SkipStatus, nil)
		case "3":
			panic("unexpected payload")
		default:
			return teamNamed("team-" + string(id))
		}
	}}
	pipeline := NewPipeline(&stubResolver{ids: []TeamID{"1", "2", "3", "4"}}, fetcher, zap.NewNop())

	report := pipeline.RunReport(context.Background(), "q")
	require.Equal(t, 4, report.Resolved)
	require.Len(t, report.Teams, 2)
	require.Equal(t, "team-1", report.Teams[0].TeamName)
	require.Equal(t, "team-4", report.Teams[1].TeamName)
	require.Len(t, report.Skipped, 2)
	require.Equal(t, SkipStatus, report.Skipped[0].Reason)
	require.Equal(t, SkipPanic, report.Skipped[1].Reason)
	require.Equal(t, TeamID("3"), report.Skipped[1].TeamID)
	require.EqualValues(t, 4, fetcher.calls.Load())
}

func TestPipelineAllFailedIsDistinctFromNoTeams(t *testing.T) {
	t.Parallel()

	fetcher := &funcFetcher{fn: func(_ context.Context, id TeamID) Outcome {
		return skipped(id, SkipTransport, errConnRefused)
	}}
	report := NewPipeline(&stubResolver{ids: []TeamID{"1", "2"}}, fetcher, nil).
		RunReport(context.Background(), "q")

	require.Empty(t, report.Teams)
	require.Equal(t, 2, report.Resolved)
	require.True(t, report.AllFailed())
}

func TestSitePipelineEndToEnd(t *testing.T) {
	t.Parallel()

	site := Site{BaseURL: "https://lfl.test"}.withDefaults()
	getter := newFakeGetter()
	getter.serve(site.SearchURL("dynamo"), http.StatusOK,
		searchPage("/club/101", "/club/202", "/club/101", "/club/303"))
	getter.serve(site.CalendarURL("101"), http.StatusOK, calendarPage(matchesPayload("Dynamo Moscow", 3,
		fixtureJSON("2024-10-12T15:00:00.000000Z", "Dynamo Moscow", "Zenit"),
		fixtureJSON("2024-10-19T12:30:00.000000Z", "Spartak", "Dynamo Moscow"),
		fixtureJSON("2024-10-26T12:30:00.000000Z", "Dynamo Moscow", "CSKA"),
	)))
	getter.serve(site.CalendarURL("202"), http.StatusOK, calendarPage(nullMatchesPayload("Dynamo Kazan")))
	getter.fail(site.CalendarURL("303"), errConnRefused)

	report := NewSitePipeline(getter, site, zap.NewNop()).RunReport(context.Background(), "Dynamo")

	require.Equal(t, 3, report.Resolved)
	require.Len(t, report.Teams, 2)
	require.Equal(t, "Dynamo Moscow", report.Teams[0].TeamName)
	require.Len(t, report.Teams[0].Result.Fixtures, 2)
	require.Equal(t, "Zenit", report.Teams[0].Result.Fixtures[0].AwayClubName)
	require.Equal(t, "Dynamo Kazan", report.Teams[1].TeamName)
	require.False(t, report.Teams[1].Result.Available())
	require.Len(t, report.Skipped, 1)
	require.Equal(t, SkipTransport, report.Skipped[0].Reason)
	// One search plus one fetch per distinct identifier.
	require.Equal(t, 4, getter.callCount())
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	ch := make(chan struct{})
	go func() {
		wg.Wait()
		close(ch)
	}()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("fetches were not dispatched concurrently")
	}
}
