package fixtures

import (
	"fmt"
	"time"
)

// MaxFixtures caps how many upcoming matches are reported per team.
const MaxFixtures = 2

// TeamID is the numeric token identifying a team on the league site.
type TeamID string

// MatchFixture describes one upcoming match exactly as the site reports it.
// MatchDateTime keeps the upstream format (2006-01-02T15:04:05.000000Z).
type MatchFixture struct {
	MatchDateTime  string `json:"match_date_time"`
	StadiumName    string `json:"stadium_name"`
	StadiumAddress string `json:"stadium_address"`
	HomeClubName   string `json:"home_club_name"`
	AwayClubName   string `json:"away_club_name"`
}

// FixtureResult is either a non-empty list of upcoming fixtures or the
// explicit "no fixtures available" marker.
type FixtureResult struct {
	Fixtures    []MatchFixture `json:"fixtures"`
	Unavailable bool           `json:"no_fixtures"`
}

// NoFixtures returns the marker for a team the site lists without a schedule.
func NoFixtures() FixtureResult {
	return FixtureResult{Unavailable: true}
}

// Upcoming wraps fixtures in a result. An empty list yields NoFixtures.
func Upcoming(fixtures []MatchFixture) FixtureResult {
	if len(fixtures) == 0 {
		return NoFixtures()
	}
	return FixtureResult{Fixtures: fixtures}
}

// Available reports whether the result carries at least one fixture.
func (r FixtureResult) Available() bool {
	return !r.Unavailable && len(r.Fixtures) > 0
}

// ResolvedTeam pairs the club name shown on the team's page with its fixtures.
type ResolvedTeam struct {
	TeamID   TeamID        `json:"team_id"`
	TeamName string        `json:"team_name"`
	Result   FixtureResult `json:"result"`
}

// SkipReason classifies why a team was dropped from a pipeline run.
type SkipReason string

// Skip reasons recorded for dropped teams.
const (
	SkipTransport SkipReason = "transport"
	SkipStatus    SkipReason = "status"
	SkipNoPayload SkipReason = "no_payload"
	SkipDecode    SkipReason = "decode"
	SkipShape     SkipReason = "shape"
	SkipPanic     SkipReason = "panic"
)

// Skip explains why a single team fetch produced no result.
type Skip struct {
	TeamID TeamID     `json:"team_id"`
	Reason SkipReason `json:"reason"`
	Err    error      `json:"-"`
}

func (s Skip) Error() string {
	if s.Err == nil {
		return fmt.Sprintf("team %s skipped: %s", s.TeamID, s.Reason)
	}
	return fmt.Sprintf("team %s skipped: %s: %v", s.TeamID, s.Reason, s.Err)
}

func (s Skip) Unwrap() error {
	return s.Err
}

// Outcome is the per-team result of a calendar fetch: a team or a skip.
type Outcome struct {
	Team ResolvedTeam
	Skip *Skip
}

// OK reports whether the fetch produced a team.
func (o Outcome) OK() bool {
	return o.Skip == nil
}

// Result returns the resolved team and whether the fetch succeeded.
func (o Outcome) Result() (ResolvedTeam, bool) {
	if o.Skip != nil {
		return ResolvedTeam{}, false
	}
	return o.Team, true
}

func found(team ResolvedTeam) Outcome {
	return Outcome{Team: team}
}

func skipped(id TeamID, reason SkipReason, err error) Outcome {
	return Outcome{Skip: &Skip{TeamID: id, Reason: reason, Err: err}}
}

// Report is the full account of one pipeline run.
// Resolved counts the identifiers the search produced, so callers can tell an
// unknown team (Resolved == 0) from a team whose every fetch failed.
type Report struct {
	Query    string         `json:"query"`
	Resolved int            `json:"resolved"`
	Teams    []ResolvedTeam `json:"teams"`
	Skipped  []Skip         `json:"skipped"`
	Duration time.Duration  `json:"-"`
}

// AllFailed reports whether identifiers were found but none produced a team.
func (r Report) AllFailed() bool {
	return r.Resolved > 0 && len(r.Teams) == 0
}
