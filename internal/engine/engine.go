// Package engine holds the latest normalized quote per canonical game
// and venue, runs arbitrage detection on every update, and tracks the
// open/close lifecycle of detected opportunities.
//
// A two-outcome market quoted on two venues yields two possible hedges:
// back home on the exchange and away at the sportsbook, or the reverse.
// A hedge qualifies while the combined implied probability of its legs
// stays below 1, the exchange has enough resting size for its stake,
// and the profit clears the configured threshold. The moment any of
// that stops holding the opportunity closes and is written to the audit
// log.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jcarden/arbscan/internal/domain"
	"github.com/jcarden/arbscan/internal/match"
	"github.com/jcarden/arbscan/internal/notify"
	"github.com/jcarden/arbscan/internal/odds"
)

// busChannel is the signal-bus channel carrying lifecycle events for the
// display sink.
const busChannel = "arbs"

// Config holds the engine's tunables.
type Config struct {
	// Bankroll is the total stake split across both legs of a hedge.
	Bankroll float64

	// ProfitThresholdPct suppresses opportunities whose profit percentage
	// falls below it.
	ProfitThresholdPct float64
}

// Params bundles the engine's dependencies. Audit and Matcher are
// required; the rest are optional sinks.
type Params struct {
	Config   Config
	Matcher  *match.Matcher
	Audit    domain.AuditLog
	History  domain.OpportunityStore
	Cache    domain.OddsCache
	Bus      domain.SignalBus
	Notifier *notify.Notifier
	Logger   *slog.Logger
}

// gameOdds is the per-game quote state for both venues.
type gameOdds struct {
	bet105 domain.VenueOddsState
	kalshi domain.VenueOddsState
}

// Engine is the arbitrage detector. All mutation of the odds and
// open-opportunity maps happens under one mutex: venue handlers run on
// independent dispatcher goroutines and must never interleave inside a
// single game's state.
type Engine struct {
	cfg      Config
	matcher  *match.Matcher
	audit    domain.AuditLog
	history  domain.OpportunityStore
	cache    domain.OddsCache
	bus      domain.SignalBus
	notifier *notify.Notifier
	logger   *slog.Logger

	// now is swapped out by tests.
	now func() time.Time

	mu   sync.Mutex
	odds map[string]*gameOdds
	open map[string]*domain.Opportunity
}

// New creates an Engine.
func New(p Params) *Engine {
	return &Engine{
		cfg:      p.Config,
		matcher:  p.Matcher,
		audit:    p.Audit,
		history:  p.History,
		cache:    p.Cache,
		bus:      p.Bus,
		notifier: p.Notifier,
		logger:   p.Logger.With(slog.String("component", "engine")),
		now:      time.Now,
		odds:     make(map[string]*gameOdds),
		open:     make(map[string]*domain.Opportunity),
	}
}

// Bet105Update is a normalized sportsbook quote for one game. A zero
// value (neither side valid) signals a suspended or unavailable market.
type Bet105Update struct {
	Home odds.Decimal
	Away odds.Decimal
}

// Suspended reports whether the update carries no usable quote.
func (u Bet105Update) Suspended() bool {
	return !u.Home.Valid() && !u.Away.Valid()
}

// KalshiUpdate is a normalized exchange quote for one market side of a
// game: the effective yes ask for the outcome team and the size resting
// at that price.
type KalshiUpdate struct {
	// WinningTeam is the short code of the team this market pays out on.
	WinningTeam string

	YesAsk         odds.Cents
	LiquidityAtAsk float64
}

// OnBet105Update ingests a sportsbook quote. A suspended market clears
// the venue's odds for the game and immediately closes any open
// opportunities on it.
func (e *Engine) OnBet105Update(ctx context.Context, gameID string, update Bet105Update) {
	if gameID == "" {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	g := e.ensureLocked(gameID)

	if update.Suspended() {
		g.bet105 = domain.VenueOddsState{UpdatedAt: e.now()}
		e.logger.Debug("bet105 market suspended", slog.String("game_id", gameID))
		e.closeLegLocked(ctx, gameID, domain.LegKalshiHome)
		e.closeLegLocked(ctx, gameID, domain.LegBet105Home)
		e.cacheLocked(ctx, gameID, domain.VenueBet105, g.bet105)
		return
	}

	g.bet105.Home = update.Home
	g.bet105.Away = update.Away
	g.bet105.UpdatedAt = e.now()

	e.cacheLocked(ctx, gameID, domain.VenueBet105, g.bet105)
	e.checkArbitrageLocked(ctx, gameID)
}

// OnKalshiUpdate ingests an exchange quote. Only the side named by the
// update's outcome team is touched; whether that is home or away is
// decided by comparing against the canonical game's home short code.
func (e *Engine) OnKalshiUpdate(ctx context.Context, gameID string, update KalshiUpdate, league domain.League) {
	if gameID == "" {
		return
	}
	game, ok := e.matcher.Game(gameID)
	if !ok {
		return
	}

	quote := update.YesAsk.Decimal()
	isHome := update.WinningTeam == e.matcher.Abbreviation(game.HomeTeam, league)

	e.mu.Lock()
	defer e.mu.Unlock()

	g := e.ensureLocked(gameID)
	if isHome {
		g.kalshi.Home = quote
		g.kalshi.HomeLiquidity = update.LiquidityAtAsk
	} else {
		g.kalshi.Away = quote
		g.kalshi.AwayLiquidity = update.LiquidityAtAsk
	}
	g.kalshi.UpdatedAt = e.now()

	e.cacheLocked(ctx, gameID, domain.VenueKalshi, g.kalshi)
	e.checkArbitrageLocked(ctx, gameID)
}

// VenueOdds returns the current quote state for one game and venue.
func (e *Engine) VenueOdds(gameID string, venue domain.Venue) (domain.VenueOddsState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.odds[gameID]
	if !ok {
		return domain.VenueOddsState{}, false
	}
	if venue == domain.VenueKalshi {
		return g.kalshi, true
	}
	return g.bet105, true
}

// OpenOpportunities returns a copy of the currently open set.
func (e *Engine) OpenOpportunities() []domain.Opportunity {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Opportunity, 0, len(e.open))
	for _, opp := range e.open {
		out = append(out, *opp)
	}
	return out
}

// OpenCount returns the number of open opportunities.
func (e *Engine) OpenCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.open)
}

// CloseAll closes every open opportunity, flushing them to the audit
// log. Called on shutdown.
func (e *Engine) CloseAll(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.open {
		opp := e.open[key]
		e.closeLegLocked(ctx, opp.GameID, opp.LegID)
	}
}

func (e *Engine) ensureLocked(gameID string) *gameOdds {
	g, ok := e.odds[gameID]
	if !ok {
		g = &gameOdds{}
		e.odds[gameID] = g
	}
	return g
}

// checkArbitrageLocked evaluates both hedge combinations for one game.
// Detection needs all four quotes; with any side missing every open leg
// for the game is closed instead.
func (e *Engine) checkArbitrageLocked(ctx context.Context, gameID string) {
	g := e.odds[gameID]
	game, ok := e.matcher.Game(gameID)
	if !ok {
		return
	}

	if !g.bet105.Complete() || !g.kalshi.Complete() {
		e.closeLegLocked(ctx, gameID, domain.LegKalshiHome)
		e.closeLegLocked(ctx, gameID, domain.LegBet105Home)
		return
	}

	// Hedge 1: exchange on home, sportsbook on away. The exchange leg is
	// the liquidity-constrained one.
	e.evaluateLegLocked(ctx, game, domain.LegKalshiHome,
		domain.Leg{Venue: domain.VenueKalshi, Team: game.HomeTeam, Odds: g.kalshi.Home},
		domain.Leg{Venue: domain.VenueBet105, Team: game.AwayTeam, Odds: g.bet105.Away},
		0, g.kalshi.HomeLiquidity,
	)

	// Hedge 2: sportsbook on home, exchange on away.
	e.evaluateLegLocked(ctx, game, domain.LegBet105Home,
		domain.Leg{Venue: domain.VenueBet105, Team: game.HomeTeam, Odds: g.bet105.Home},
		domain.Leg{Venue: domain.VenueKalshi, Team: game.AwayTeam, Odds: g.kalshi.Away},
		1, g.kalshi.AwayLiquidity,
	)
}

// evaluateLegLocked runs the arbitrage math for one hedge combination
// and opens, extends, or closes the (gameID, legID) opportunity.
// constrainedIdx names which leg's stake is capped by exchange
// liquidity.
func (e *Engine) evaluateLegLocked(
	ctx context.Context,
	game domain.CanonicalGame,
	legID domain.LegID,
	leg1, leg2 domain.Leg,
	constrainedIdx int,
	liquidity float64,
) {
	prob1 := leg1.Odds.ImpliedProbability()
	prob2 := leg2.Odds.ImpliedProbability()
	combined := prob1 + prob2

	if combined >= 1 {
		e.closeLegLocked(ctx, game.ID, legID)
		return
	}

	// Splitting the bankroll proportionally to implied probability makes
	// both payouts identical: stake1*odds1 == stake2*odds2.
	leg1.Stake = e.cfg.Bankroll * prob1 / combined
	leg2.Stake = e.cfg.Bankroll * prob2 / combined
	payout := leg1.Stake * float64(leg1.Odds)
	profit := payout - e.cfg.Bankroll
	profitPct := profit / e.cfg.Bankroll * 100

	legs := [2]domain.Leg{leg1, leg2}

	// The exchange can only absorb what's resting at the quoted price.
	if legs[constrainedIdx].Stake > liquidity {
		e.logger.Debug("opportunity rejected on liquidity",
			slog.String("game_id", game.ID),
			slog.String("leg_id", string(legID)),
			slog.Float64("stake", legs[constrainedIdx].Stake),
			slog.Float64("liquidity", liquidity),
		)
		e.closeLegLocked(ctx, game.ID, legID)
		return
	}

	if profitPct < e.cfg.ProfitThresholdPct {
		e.closeLegLocked(ctx, game.ID, legID)
		return
	}

	key := game.ID + "-" + string(legID)
	if existing, ok := e.open[key]; ok {
		// Still qualifying: refresh the figures but keep identity and
		// OpenedAt so duration reflects the whole continuous window.
		existing.Legs = legs
		existing.CombinedImpliedProb = combined
		existing.Payout = payout
		existing.Profit = profit
		existing.ProfitPct = profitPct
		return
	}

	opp := &domain.Opportunity{
		ID:                  uuid.NewString(),
		GameID:              game.ID,
		LegID:               legID,
		HomeTeam:            game.HomeTeam,
		AwayTeam:            game.AwayTeam,
		Legs:                legs,
		CombinedImpliedProb: combined,
		Payout:              payout,
		Profit:              profit,
		ProfitPct:           profitPct,
		OpenedAt:            e.now(),
	}
	e.open[key] = opp

	e.logger.Info("arbitrage opportunity opened",
		slog.String("game_id", game.ID),
		slog.String("leg_id", string(legID)),
		slog.Float64("profit_pct", profitPct),
		slog.Float64("combined_implied_prob", combined),
	)
	e.publishLocked(ctx, "arb_opened", opp, nil)
}

// closeLegLocked closes the (gameID, legID) opportunity if one is open:
// the record gets its duration, goes to the audit log (and history store
// when configured), and leaves the open set. No-op when nothing is open.
func (e *Engine) closeLegLocked(ctx context.Context, gameID string, legID domain.LegID) {
	key := gameID + "-" + string(legID)
	opp, ok := e.open[key]
	if !ok {
		return
	}
	delete(e.open, key)

	now := e.now()
	closed := domain.ClosedOpportunity{
		Opportunity:     *opp,
		ClosedAt:        now,
		DurationSeconds: now.Sub(opp.OpenedAt).Seconds(),
	}

	if err := e.audit.Append(closed); err != nil {
		e.logger.Warn("audit append failed",
			slog.String("game_id", gameID),
			slog.String("error", err.Error()),
		)
	}
	if e.history != nil {
		if err := e.history.InsertClosed(ctx, closed); err != nil {
			e.logger.Warn("history insert failed",
				slog.String("opp_id", closed.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	e.logger.Info("arbitrage opportunity closed",
		slog.String("game_id", gameID),
		slog.String("leg_id", string(legID)),
		slog.Float64("duration_seconds", closed.DurationSeconds),
	)
	e.publishLocked(ctx, "arb_closed", nil, &closed)
}

// cacheLocked mirrors the latest venue quote into the odds cache,
// best-effort.
func (e *Engine) cacheLocked(ctx context.Context, gameID string, venue domain.Venue, state domain.VenueOddsState) {
	if e.cache == nil {
		return
	}
	if err := e.cache.SetVenueOdds(ctx, gameID, venue, state); err != nil {
		e.logger.Debug("odds cache update failed",
			slog.String("game_id", gameID),
			slog.String("venue", string(venue)),
			slog.String("error", err.Error()),
		)
	}
}

// publishLocked emits a lifecycle event on the signal bus and to the
// notifier. Both are best-effort sinks; a failure never blocks
// detection.
func (e *Engine) publishLocked(ctx context.Context, event string, opened *domain.Opportunity, closed *domain.ClosedOpportunity) {
	payload := map[string]any{"event": event}
	var title string
	switch {
	case opened != nil:
		payload["opportunity"] = opened
		title = "Arb opened: " + opened.AwayTeam + " @ " + opened.HomeTeam
	case closed != nil:
		payload["opportunity"] = closed
		title = "Arb closed: " + closed.AwayTeam + " @ " + closed.HomeTeam
	}

	if e.bus != nil {
		if data, err := json.Marshal(payload); err == nil {
			if err := e.bus.Publish(ctx, busChannel, data); err != nil {
				e.logger.Debug("bus publish failed",
					slog.String("event", event),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if e.notifier != nil {
		var msg string
		if opened != nil {
			msg = formatOpportunity(opened)
		} else if closed != nil {
			msg = formatClosed(closed)
		}
		if err := e.notifier.Notify(ctx, event, title, msg); err != nil {
			e.logger.Debug("notify failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
}
