// Package domain defines the core types shared across the arbitrage
// monitor: canonical games, per-venue odds state, opportunities, and the
// store/cache interfaces implemented by the infrastructure packages.
package domain

import (
	"time"

	"github.com/jcarden/arbscan/internal/odds"
)

// Venue identifies one of the two monitored trading venues.
type Venue string

const (
	// VenueBet105 is the sportsbook feed: snapshot+diff replicated state,
	// decimal-odds quotes.
	VenueBet105 Venue = "BET105"

	// VenueKalshi is the binary-contract exchange: orderbook snapshots and
	// quantity deltas, cents-price quotes.
	VenueKalshi Venue = "KALSHI"
)

// League is a venue-neutral league code (NBA, NHL, MLB, NCAAMB, ...).
type League string

// CanonicalGame is the venue-neutral identity for one real-world match.
// The ID is assigned once when the matcher pairs the venues' listings and
// is never reassigned to a different pair of teams.
type CanonicalGame struct {
	ID        string
	HomeTeam  string
	AwayTeam  string
	StartTime string
	League    League

	// Bet105EventID is the sportsbook's event identifier.
	Bet105EventID string

	// KalshiTickers holds every exchange ticker that resolves to this
	// game; a game has one ticker per outcome side.
	KalshiTickers []string
}

// VenueOddsState is the latest observed two-way quote from one venue for
// one game. Zero odds values mean the side has not been observed (or the
// market is suspended). Liquidity fields are only populated for the
// exchange venue, where the resting size at the quoted price caps the
// stake that could actually be placed.
type VenueOddsState struct {
	Home odds.Decimal
	Away odds.Decimal

	HomeLiquidity float64
	AwayLiquidity float64

	UpdatedAt time.Time
}

// Complete reports whether both sides of the quote are usable.
func (s VenueOddsState) Complete() bool {
	return s.Home.Valid() && s.Away.Valid()
}
