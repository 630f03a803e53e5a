package domain

import (
	"time"

	"github.com/jcarden/arbscan/internal/odds"
)

// LegID distinguishes the two possible hedge combinations for a
// two-outcome market quoted on two venues.
type LegID string

const (
	// LegKalshiHome backs home on Kalshi and away on Bet105.
	LegKalshiHome LegID = "opt1"

	// LegBet105Home backs home on Bet105 and away on Kalshi.
	LegBet105Home LegID = "opt2"
)

// Leg is one side of a two-sided hedge: a stake placed on one
// venue/outcome at a decimal price.
type Leg struct {
	Venue Venue        `json:"venue"`
	Team  string       `json:"team"`
	Odds  odds.Decimal `json:"decimal_odds"`
	Stake float64      `json:"stake"`
}

// Opportunity is an open arbitrage window: both legs priced, liquidity
// sufficient, and profit above threshold. It is keyed by (GameID, LegID)
// and lives only while every qualifying condition keeps holding.
type Opportunity struct {
	ID       string `json:"id"`
	GameID   string `json:"game_id"`
	LegID    LegID  `json:"leg_id"`
	HomeTeam string `json:"home_team"`
	AwayTeam string `json:"away_team"`

	Legs [2]Leg `json:"legs"`

	// CombinedImpliedProb is 1/odds1 + 1/odds2; below 1 means risk-free.
	CombinedImpliedProb float64 `json:"combined_implied_prob"`
	Payout              float64 `json:"payout"`
	Profit              float64 `json:"profit"`
	ProfitPct           float64 `json:"profit_pct"`

	OpenedAt time.Time `json:"opened_at"`
}

// Key returns the open-set key for this opportunity.
func (o Opportunity) Key() string {
	return o.GameID + "-" + string(o.LegID)
}

// ClosedOpportunity is the audit record written when a window closes.
type ClosedOpportunity struct {
	Opportunity

	ClosedAt        time.Time `json:"closed_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}
