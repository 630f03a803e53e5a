package bet105

import (
	"encoding/json"
	"strconv"

	"github.com/jcarden/arbscan/internal/diffstate"
	"github.com/jcarden/arbscan/internal/odds"
)

// channelToken is the account-scoped segment of every room name.
const channelToken = "VEZBZ1VFbE9Ua0ZEVEVVZ1MwbENUQT09"

// SportsChannel is the catalog room: a replicated tree of every live
// sport, league, and event.
const SportsChannel = "live.sportsDiff"

// EventChannel returns the room name carrying odds for one event.
func EventChannel(eventID string) string {
	return "live.main." + channelToken + ".eventCoefficients." + eventID
}

// Envelope is the decoded message shape shared by every room. When
// IsDiff is false the payload is a full replacement state; when true it
// is an ordered list of patches against the previous state.
type Envelope struct {
	IsDiff  bool            `json:"isDiff"`
	Payload json.RawMessage `json:"payload"`
	TI      struct {
		T int64 `json:"t"`
	} `json:"ti"`
}

// moneylineMarketID keys the moneyline market inside an event's
// coefficient tree.
const moneylineMarketID = "3"

// MoneylineOdds is the extracted two-way quote for one event.
type MoneylineOdds struct {
	Home odds.Decimal
	Away odds.Decimal
}

// ExtractOdds pulls the moneyline quote out of a replicated event tree.
// The odds live at c/m/<marketID>/o keyed "1" (home) and "2" (away). A
// missing market or odds subtree means the book has pulled the market;
// callers treat ok=false as suspended.
func ExtractOdds(state map[string]any) (MoneylineOdds, bool) {
	v, ok := diffstate.Resolve(state, "c/m/"+moneylineMarketID+"/o")
	if !ok {
		return MoneylineOdds{}, false
	}
	oddsMap, ok := v.(map[string]any)
	if !ok {
		return MoneylineOdds{}, false
	}

	home, okHome := asFloat(oddsMap["1"])
	away, okAway := asFloat(oddsMap["2"])
	if !okHome || !okAway {
		return MoneylineOdds{}, false
	}

	return MoneylineOdds{Home: odds.Decimal(home), Away: odds.Decimal(away)}, true
}

// CatalogEvent is one listing extracted from the sports catalog tree.
type CatalogEvent struct {
	EventID   string
	HomeTeam  string
	AwayTeam  string
	StartTime string
}

// ExtractLeagueEvents collects every event listed under the named
// league anywhere in the catalog tree. The tree nests sport -> "l" ->
// league -> {"n": name, "e": {eventID: {"h", "a", "tm"}}}.
func ExtractLeagueEvents(state map[string]any, league string) []CatalogEvent {
	var events []CatalogEvent

	for _, sportVal := range state {
		sport, ok := sportVal.(map[string]any)
		if !ok {
			continue
		}
		leagues, ok := sport["l"].(map[string]any)
		if !ok {
			continue
		}

		for _, leagueVal := range leagues {
			lg, ok := leagueVal.(map[string]any)
			if !ok {
				continue
			}
			if name, _ := lg["n"].(string); name != league {
				continue
			}
			evs, ok := lg["e"].(map[string]any)
			if !ok {
				continue
			}

			for eventID, evVal := range evs {
				ev, ok := evVal.(map[string]any)
				if !ok {
					continue
				}
				home, _ := ev["h"].(string)
				away, _ := ev["a"].(string)
				start, _ := ev["tm"].(string)
				if home == "" || away == "" {
					continue
				}
				events = append(events, CatalogEvent{
					EventID:   eventID,
					HomeTeam:  home,
					AwayTeam:  away,
					StartTime: start,
				})
			}
		}
	}

	return events
}

// asFloat accepts the book's two spellings of a price: a JSON number or
// a numeric string.
func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
