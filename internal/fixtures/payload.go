package fixtures

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

var (
	errNoClubName    = errors.New("club name missing")
	errNoMatchesKey  = errors.New("matches key missing")
	errShortData     = errors.New("matches data shorter than reported length")
	errNullLength    = errors.New("matches length is null")
	errMissingFields = errors.New("fixture field missing")
)

// nextData mirrors the hydration document embedded in calendar pages.
type nextData struct {
	Props struct {
		PageProps *pageProps `json:"pageProps"`
	} `json:"props"`
}

type pageProps struct {
	Club    *clubInfo     `json:"club"`
	Matches *matchesBlock `json:"matches"`

	// hasMatches separates an explicit "matches": null from an absent key.
	hasMatches bool
}

func (p *pageProps) UnmarshalJSON(data []byte) error {
	type plain pageProps
	if err := sonic.Unmarshal(data, (*plain)(p)); err != nil {
		return err
	}
	var keys map[string]any
	if err := sonic.Unmarshal(data, &keys); err != nil {
		return err
	}
	_, p.hasMatches = keys["matches"]
	return nil
}

type clubInfo struct {
	Name *string `json:"name"`
}

type matchesBlock struct {
	Data   []rawFixture `json:"data"`
	Length *int         `json:"length"`

	// hasLength separates an explicit "length": null from an absent key,
	// which counts as zero.
	hasLength bool
}

func (m *matchesBlock) UnmarshalJSON(data []byte) error {
	type plain matchesBlock
	if err := sonic.Unmarshal(data, (*plain)(m)); err != nil {
		return err
	}
	var keys map[string]any
	if err := sonic.Unmarshal(data, &keys); err != nil {
		return err
	}
	_, m.hasLength = keys["length"]
	return nil
}

func (m *matchesBlock) length() (int, error) {
	if m.Length != nil {
		return *m.Length, nil
	}
	if m.hasLength {
		return 0, errNullLength
	}
	return 0, nil
}

type rawFixture struct {
	MatchDateTime  *string `json:"match_date_time"`
	StadiumName    *string `json:"stadium_name"`
	StadiumAddress *string `json:"stadium_address"`
	HomeClubName   *string `json:"home_club_name"`
	AwayClubName   *string `json:"away_club_name"`
}

func (r rawFixture) fixture() (MatchFixture, bool) {
	if r.MatchDateTime == nil || r.StadiumName == nil || r.StadiumAddress == nil ||
		r.HomeClubName == nil || r.AwayClubName == nil {
		return MatchFixture{}, false
	}
	return MatchFixture{
		MatchDateTime:  *r.MatchDateTime,
		StadiumName:    *r.StadiumName,
		StadiumAddress: *r.StadiumAddress,
		HomeClubName:   *r.HomeClubName,
		AwayClubName:   *r.AwayClubName,
	}, true
}

// decodePayload parses the hydration JSON. Malformed JSON is reported as a
// decode failure; well-formed JSON that lacks the expected path is a shape failure.
func decodePayload(raw []byte) (nextData, error) {
	var doc nextData
	if err := sonic.Unmarshal(raw, &doc); err != nil {
		return nextData{}, fmt.Errorf("decode hydration payload: %w", err)
	}
	return doc, nil
}

// teamFromPayload projects the decoded page props into a ResolvedTeam.
func teamFromPayload(id TeamID, doc nextData) (ResolvedTeam, error) {
	props := doc.Props.PageProps
	if props == nil || props.Club == nil || props.Club.Name == nil {
		return ResolvedTeam{}, errNoClubName
	}
	team := ResolvedTeam{TeamID: id, TeamName: *props.Club.Name}
	if !props.hasMatches {
		return ResolvedTeam{}, errNoMatchesKey
	}
	if props.Matches == nil {
		team.Result = NoFixtures()
		return team, nil
	}

	length, err := props.Matches.length()
	if err != nil {
		return ResolvedTeam{}, err
	}
	limit := min(length, MaxFixtures)
	if limit <= 0 {
		team.Result = NoFixtures()
		return team, nil
	}
	if len(props.Matches.Data) < limit {
		return ResolvedTeam{}, fmt.Errorf("%w: length %d, data %d",
			errShortData, length, len(props.Matches.Data))
	}
	upcoming := make([]MatchFixture, 0, limit)
	for i := range limit {
		fixture, ok := props.Matches.Data[i].fixture()
		if !ok {
			return ResolvedTeam{}, fmt.Errorf("%w: entry %d", errMissingFields, i)
		}
		upcoming = append(upcoming, fixture)
	}
	team.Result = Upcoming(upcoming)
	return team, nil
}
