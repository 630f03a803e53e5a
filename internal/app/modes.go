package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jcarden/arbscan/internal/diffstate"
	"github.com/jcarden/arbscan/internal/domain"
	"github.com/jcarden/arbscan/internal/engine"
	"github.com/jcarden/arbscan/internal/feed"
	"github.com/jcarden/arbscan/internal/orderbook"
	"github.com/jcarden/arbscan/internal/platform/bet105"
	"github.com/jcarden/arbscan/internal/platform/kalshi"
)

// signalChannel is the bus channel carrying opportunity lifecycle events.
const signalChannel = "arbs"

// instanceLockTTL bounds how long a crashed monitor blocks a restart.
const instanceLockTTL = time.Hour

// catalogWarmupTimeout bounds how long startup waits for the sportsbook
// catalog snapshot before building games from whatever has arrived.
const catalogWarmupTimeout = 30 * time.Second

// MonitorMode runs the full detection loop: both venue feeds, periodic
// catalog refresh, and the audit archiver. No orders are placed anywhere.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode",
		slog.Any("leagues", a.cfg.Leagues.Active),
	)

	// Only one monitor may write a given audit history.
	if deps.LockManager != nil {
		unlock, err := deps.LockManager.Acquire(ctx, "monitor", instanceLockTTL)
		if err != nil {
			return fmt.Errorf("monitor mode: acquire instance lock: %w", err)
		}
		defer unlock()
	}

	eng := engine.New(engine.Params{
		Config: engine.Config{
			Bankroll:           a.cfg.Engine.Bankroll,
			ProfitThresholdPct: a.cfg.Engine.ProfitThresholdPct,
		},
		Matcher:  deps.Matcher,
		Audit:    deps.Audit,
		History:  deps.History,
		Cache:    deps.OddsCache,
		Bus:      deps.SignalBus,
		Notifier: deps.Notifier,
		Logger:   a.logger,
	})

	rest, err := a.newKalshiRESTClient()
	if err != nil {
		return fmt.Errorf("monitor mode: %w", err)
	}

	bookClient := bet105.NewClient(a.cfg.Bet105.BaseURL, a.logger)
	exchClient := kalshi.NewWSClient(a.cfg.Kalshi.WsURL, a.logger)

	bookFeed := feed.NewBet105Feed(bookClient, diffstate.New(a.logger), deps.Matcher, eng, a.logger)
	exchFeed := feed.NewKalshiFeed(exchClient, orderbook.New(a.logger), deps.Matcher, eng, a.logger)

	if err := bookClient.Connect(ctx); err != nil {
		return fmt.Errorf("monitor mode: bet105 connect: %w", err)
	}
	defer bookClient.Close()

	if err := exchClient.Connect(ctx); err != nil {
		return fmt.Errorf("monitor mode: kalshi connect: %w", err)
	}
	defer exchClient.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return bookFeed.Run(ctx) })
	g.Go(func() error { return exchFeed.Run(ctx) })

	if deps.Archiver != nil {
		g.Go(func() error { return deps.Archiver.Run(ctx) })
	}

	// Catalog warm-up, then periodic refresh.
	g.Go(func() error {
		if err := bookFeed.SubscribeCatalog(ctx); err != nil {
			return fmt.Errorf("monitor mode: subscribe catalog: %w", err)
		}
		a.waitCatalog(ctx, bookFeed)

		subscribedEvents := make(map[string]bool)
		subscribedTickers := make(map[string]bool)

		a.refreshCatalog(ctx, deps, rest, bookFeed, exchFeed, subscribedEvents, subscribedTickers)

		ticker := time.NewTicker(a.cfg.Leagues.RefreshInterval.Duration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				a.refreshCatalog(ctx, deps, rest, bookFeed, exchFeed, subscribedEvents, subscribedTickers)
			}
		}
	})

	err = g.Wait()

	// Flush whatever is still open so the audit log records a close for
	// every open, even across restarts.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	eng.CloseAll(flushCtx)

	return err
}

// RecordMode tails the signal bus and persists closed opportunities. It
// lets a second instance keep durable history while a monitor elsewhere
// does the detection.
func (a *App) RecordMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting record mode")

	if deps.SignalBus == nil {
		return fmt.Errorf("record mode: signal bus not wired")
	}

	ch, err := deps.SignalBus.Subscribe(ctx, signalChannel)
	if err != nil {
		return fmt.Errorf("record mode: subscribe %s: %w", signalChannel, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			a.recordSignal(ctx, deps, payload)
		}
	}
}

// recordSignal decodes one lifecycle event. Only closes are durable; an
// open is transient state that the emitting monitor still owns.
func (a *App) recordSignal(ctx context.Context, deps *Dependencies, payload []byte) {
	var evt struct {
		Event       string          `json:"event"`
		Opportunity json.RawMessage `json:"opportunity"`
	}
	if err := json.Unmarshal(payload, &evt); err != nil {
		a.logger.Debug("record mode: dropping undecodable event", slog.String("error", err.Error()))
		return
	}

	a.logger.Info("lifecycle event",
		slog.String("event", evt.Event),
	)

	if evt.Event != "arb_closed" {
		return
	}

	var closed domain.ClosedOpportunity
	if err := json.Unmarshal(evt.Opportunity, &closed); err != nil {
		a.logger.Warn("record mode: dropping undecodable close", slog.String("error", err.Error()))
		return
	}

	if err := deps.Audit.Append(closed); err != nil {
		a.logger.Warn("record mode: audit append failed",
			slog.String("opp_id", closed.ID),
			slog.String("error", err.Error()),
		)
	}
	if deps.History != nil {
		if err := deps.History.InsertClosed(ctx, closed); err != nil {
			a.logger.Warn("record mode: history insert failed",
				slog.String("opp_id", closed.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// newKalshiRESTClient builds the signed REST client used for catalog
// pagination.
func (a *App) newKalshiRESTClient() (*kalshi.Client, error) {
	rest := kalshi.NewClient(a.cfg.Kalshi.BaseURL, a.cfg.Kalshi.ApiKey)

	keyBytes, err := os.ReadFile(a.cfg.Kalshi.RsaPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read kalshi RSA key %s: %w", a.cfg.Kalshi.RsaPrivateKeyPath, err)
	}
	if err := rest.SetRSAPrivateKey(keyBytes); err != nil {
		return nil, fmt.Errorf("parse kalshi RSA key: %w", err)
	}
	return rest, nil
}

// waitCatalog blocks until the first full catalog snapshot has been
// replicated, or the warm-up timeout passes. A timeout is not fatal:
// refresh passes pick up whatever arrives later.
func (a *App) waitCatalog(ctx context.Context, bookFeed *feed.Bet105Feed) {
	deadline := time.Now().Add(catalogWarmupTimeout)
	for time.Now().Before(deadline) {
		if bookFeed.CatalogReady() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(250 * time.Millisecond):
		}
	}
	a.logger.Warn("catalog snapshot not received within warm-up window; continuing")
}

// refreshCatalog rebuilds the cross-venue game registry for every active
// league and joins the quote streams of any newly matched games. Both
// subscription sets only ever grow; a game that leaves the catalog just
// stops producing updates.
func (a *App) refreshCatalog(
	ctx context.Context,
	deps *Dependencies,
	rest *kalshi.Client,
	bookFeed *feed.Bet105Feed,
	exchFeed *feed.KalshiFeed,
	subscribedEvents map[string]bool,
	subscribedTickers map[string]bool,
) {
	for _, league := range a.cfg.Leagues.Active {
		series := a.cfg.Leagues.SeriesTickers[league]

		if err := a.waitRESTBudget(ctx, deps); err != nil {
			return
		}
		markets, err := rest.ListSeriesMarkets(ctx, series)
		if err != nil {
			a.logger.Warn("catalog refresh: list markets failed",
				slog.String("league", league),
				slog.String("series", series),
				slog.String("error", err.Error()),
			)
			continue
		}

		tickers := make([]string, 0, len(markets))
		for _, m := range markets {
			tickers = append(tickers, m.Ticker)
		}

		events := bookFeed.Events(a.cfg.Leagues.SportsbookNames[league])
		deps.Matcher.BuildEvents(events, tickers, domain.League(league))
	}

	var newEvents, newTickers []string
	for _, game := range deps.Matcher.Games() {
		if !subscribedEvents[game.Bet105EventID] {
			subscribedEvents[game.Bet105EventID] = true
			newEvents = append(newEvents, game.Bet105EventID)
		}
		for _, t := range game.KalshiTickers {
			if !subscribedTickers[t] {
				subscribedTickers[t] = true
				newTickers = append(newTickers, t)
			}
		}
	}

	if len(newEvents) > 0 {
		if err := bookFeed.SubscribeEvents(ctx, newEvents); err != nil {
			a.logger.Warn("catalog refresh: bet105 subscribe failed", slog.String("error", err.Error()))
		}
	}
	if len(newTickers) > 0 {
		if err := exchFeed.Subscribe(ctx, newTickers); err != nil {
			a.logger.Warn("catalog refresh: kalshi subscribe failed", slog.String("error", err.Error()))
		}
	}

	a.logger.Info("catalog refreshed",
		slog.Int("games", len(deps.Matcher.Games())),
		slog.Int("new_events", len(newEvents)),
		slog.Int("new_tickers", len(newTickers)),
	)
}

// waitRESTBudget throttles catalog REST calls through the shared rate
// limiter when Redis is wired. Limiter errors are non-fatal; the call
// proceeds unthrottled.
func (a *App) waitRESTBudget(ctx context.Context, deps *Dependencies) error {
	if deps.RateLimiter == nil {
		return nil
	}
	for {
		allowed, err := deps.RateLimiter.Allow(ctx, "kalshi_rest", a.cfg.Kalshi.RestRateLimit, time.Second)
		if err != nil {
			a.logger.Debug("rate limiter unavailable", slog.String("error", err.Error()))
			return nil
		}
		if allowed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
