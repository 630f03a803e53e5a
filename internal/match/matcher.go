// Package match resolves which identifiers on each venue refer to the
// same real-world game. The sportsbook lists events with full team names
// and numeric event IDs; the exchange encodes a date and two team short
// codes into each market ticker. Matching goes through static per-league
// name→code tables: reference data embedded at build time, loaded once,
// never mutated.
package match

import (
	_ "embed"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/jcarden/arbscan/internal/domain"
)

//go:embed teams.toml
var teamsTOML []byte

// Tables maps league -> full team name -> ticker short code.
type Tables map[domain.League]map[string]string

// LoadTables parses the embedded team reference tables.
func LoadTables() (Tables, error) {
	return ParseTables(teamsTOML)
}

// ParseTables decodes TOML team tables, dropping entries with empty
// codes (an empty code can never appear in a ticker).
func ParseTables(data []byte) (Tables, error) {
	var raw map[string]map[string]string
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	tables := make(Tables, len(raw))
	for league, teams := range raw {
		t := make(map[string]string, len(teams))
		for name, code := range teams {
			if code != "" {
				t[name] = code
			}
		}
		tables[domain.League(league)] = t
	}
	return tables, nil
}

// tickerDatePrefixLen is the length of the date component that leads the
// team-codes segment of an exchange ticker, e.g. "25NOV28" in
// "KXNBAGAME-25NOV28BOSMIA-BOS".
const tickerDatePrefixLen = 7

// TickerParts is the decoded form of an exchange market ticker.
type TickerParts struct {
	// Teams is the concatenated short codes of both teams.
	Teams string
	// Outcome is the short code of the team the market pays out on.
	Outcome string
}

// ParseTicker splits a dash-delimited exchange ticker into its date+teams
// and outcome segments. Returns false for tickers that do not follow the
// PREFIX-DATETEAMS-OUTCOME shape.
func ParseTicker(ticker string) (TickerParts, bool) {
	parts := strings.Split(ticker, "-")
	if len(parts) < 3 {
		return TickerParts{}, false
	}
	dateTeams := parts[1]
	if len(dateTeams) <= tickerDatePrefixLen {
		return TickerParts{}, false
	}
	return TickerParts{
		Teams:   dateTeams[tickerDatePrefixLen:],
		Outcome: parts[2],
	}, true
}

// Event is a sportsbook listing as fed into BuildEvents.
type Event struct {
	EventID   string
	HomeTeam  string
	AwayTeam  string
	StartTime string
}

// Matcher builds and holds the canonical-game registry. BuildEvents runs
// once per league activation and again on periodic catalog refresh;
// lookups happen on every feed update.
type Matcher struct {
	tables Tables

	mu        sync.RWMutex
	byEventID map[string]string
	byTicker  map[string]string
	games     map[string]domain.CanonicalGame
}

// NewMatcher creates a Matcher over the given immutable team tables.
func NewMatcher(tables Tables) *Matcher {
	return &Matcher{
		tables:    tables,
		byEventID: make(map[string]string),
		byTicker:  make(map[string]string),
		games:     make(map[string]domain.CanonicalGame),
	}
}

// Abbreviation returns the ticker short code for a full team name, or ""
// when the league or team is not in the reference tables.
func (m *Matcher) Abbreviation(team string, league domain.League) string {
	return m.tables[league][team]
}

// BuildEvents pairs sportsbook events with exchange tickers for one
// league. For every event whose two team codes both appear in some
// ticker's teams segment, it mints a canonical game ID and registers the
// event ID and every related ticker (one per outcome side) against it.
//
// Matching is first-match and unscored: if two distinct games could
// satisfy the same code pair, the first ticker encountered wins. An
// event already registered keeps its game ID; refresh passes only add
// games that are new.
func (m *Matcher) BuildEvents(events []Event, tickers []string, league domain.League) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ev := range events {
		if _, seen := m.byEventID[ev.EventID]; seen {
			continue
		}

		home := m.tables[league][ev.HomeTeam]
		away := m.tables[league][ev.AwayTeam]
		if home == "" || away == "" {
			continue
		}

		teams, ok := m.findTickerTeams(tickers, home, away)
		if !ok {
			continue
		}

		gameID := gameID(ev)

		// Register every ticker for this code pair; a game has one
		// market per outcome side.
		var related []string
		for _, ticker := range tickers {
			if p, ok := ParseTicker(ticker); ok && p.Teams == teams {
				related = append(related, ticker)
				m.byTicker[ticker] = gameID
			}
		}

		m.byEventID[ev.EventID] = gameID
		m.games[gameID] = domain.CanonicalGame{
			ID:            gameID,
			HomeTeam:      ev.HomeTeam,
			AwayTeam:      ev.AwayTeam,
			StartTime:     ev.StartTime,
			League:        league,
			Bet105EventID: ev.EventID,
			KalshiTickers: related,
		}
	}
}

// findTickerTeams scans tickers for the first whose teams segment
// contains both short codes, in either order, and returns that segment.
func (m *Matcher) findTickerTeams(tickers []string, home, away string) (string, bool) {
	for _, ticker := range tickers {
		p, ok := ParseTicker(ticker)
		if !ok {
			continue
		}
		if strings.Contains(p.Teams, home) && strings.Contains(p.Teams, away) {
			return p.Teams, true
		}
	}
	return "", false
}

// GameIDByEvent returns the canonical game ID for a sportsbook event ID.
func (m *Matcher) GameIDByEvent(eventID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEventID[eventID]
	return id, ok
}

// GameIDByTicker returns the canonical game ID for an exchange ticker.
func (m *Matcher) GameIDByTicker(ticker string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byTicker[ticker]
	return id, ok
}

// Game returns the canonical game record for an ID.
func (m *Matcher) Game(gameID string) (domain.CanonicalGame, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[gameID]
	return g, ok
}

// Games returns a copy of every registered canonical game.
func (m *Matcher) Games() []domain.CanonicalGame {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.CanonicalGame, 0, len(m.games))
	for _, g := range m.games {
		out = append(out, g)
	}
	return out
}

// gameID derives the canonical ID. Stable for the life of the event:
// the same listing always yields the same ID.
func gameID(ev Event) string {
	return ev.HomeTeam + "-" + ev.AwayTeam + "-" + ev.StartTime
}
