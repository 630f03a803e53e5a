package feed

import (
	"context"
	"log/slog"

	"github.com/jcarden/arbscan/internal/engine"
	"github.com/jcarden/arbscan/internal/match"
	"github.com/jcarden/arbscan/internal/orderbook"
	"github.com/jcarden/arbscan/internal/platform/kalshi"
)

// bookMsg is one decoded exchange message. Exactly one field is set.
type bookMsg struct {
	snapshot *kalshi.SnapshotMsg
	delta    *kalshi.DeltaMsg
	ticker   *kalshi.TickerMsg
}

// KalshiFeed rebuilds per-market orderbooks from the exchange's
// snapshot+delta stream and feeds derived top-of-book quotes to the
// engine.
type KalshiFeed struct {
	client  *kalshi.WSClient
	books   *orderbook.Store
	matcher *match.Matcher
	engine  *engine.Engine
	logger  *slog.Logger

	msgs chan bookMsg
}

// NewKalshiFeed wires a feed to its client. Reconnects reset the
// orderbook store; deltas against a book rebuilt over a lost connection
// are never accepted.
func NewKalshiFeed(
	client *kalshi.WSClient,
	books *orderbook.Store,
	matcher *match.Matcher,
	eng *engine.Engine,
	logger *slog.Logger,
) *KalshiFeed {
	f := &KalshiFeed{
		client:  client,
		books:   books,
		matcher: matcher,
		engine:  eng,
		logger:  logger.With(slog.String("component", "kalshi_feed")),
		msgs:    make(chan bookMsg, feedBuffer),
	}

	client.OnSnapshot(func(m kalshi.SnapshotMsg) { f.msgs <- bookMsg{snapshot: &m} })
	client.OnDelta(func(m kalshi.DeltaMsg) { f.msgs <- bookMsg{delta: &m} })
	client.OnTicker(func(m kalshi.TickerMsg) { f.msgs <- bookMsg{ticker: &m} })
	client.OnReconnect(books.ResetAll)

	return f
}

// Subscribe joins the market data streams for the given tickers.
func (f *KalshiFeed) Subscribe(ctx context.Context, tickers []string) error {
	return f.client.Subscribe(ctx, tickers)
}

// Run is the dispatcher loop. It owns all mutation of the exchange's
// reconstructed books and runs until the context is cancelled.
func (f *KalshiFeed) Run(ctx context.Context) error {
	f.logger.Info("kalshi dispatcher started")
	defer f.logger.Info("kalshi dispatcher stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-f.msgs:
			f.handle(ctx, msg)
		}
	}
}

func (f *KalshiFeed) handle(ctx context.Context, msg bookMsg) {
	switch {
	case msg.snapshot != nil:
		top := f.books.ApplySnapshot(msg.snapshot.Ticker,
			toLevels(msg.snapshot.Yes), toLevels(msg.snapshot.No))
		f.emit(ctx, msg.snapshot.Ticker, top)

	case msg.delta != nil:
		top, err := f.books.ApplyDelta(msg.delta.Ticker,
			orderbook.Side(msg.delta.Side), msg.delta.Price, msg.delta.Delta)
		if err != nil {
			// Already warned by the store; a fresh snapshot will follow.
			return
		}
		f.emit(ctx, msg.delta.Ticker, top)

	case msg.ticker != nil:
		// Top-of-book price moves arrive on the ticker channel too;
		// re-evaluate from the reconstructed book, which carries the
		// liquidity the ticker message lacks.
		top, ok := f.books.Top(msg.ticker.Ticker)
		if !ok {
			return
		}
		f.emit(ctx, msg.ticker.Ticker, top)
	}
}

// emit resolves the market to its canonical game and pushes the derived
// quote into the engine.
func (f *KalshiFeed) emit(ctx context.Context, marketTicker string, top orderbook.Top) {
	gameID, ok := f.matcher.GameIDByTicker(marketTicker)
	if !ok {
		return
	}
	parts, ok := match.ParseTicker(marketTicker)
	if !ok {
		return
	}
	game, ok := f.matcher.Game(gameID)
	if !ok {
		return
	}

	f.engine.OnKalshiUpdate(ctx, gameID, engine.KalshiUpdate{
		WinningTeam:    parts.Outcome,
		YesAsk:         top.BestAsk,
		LiquidityAtAsk: float64(top.LiquidityAtAsk),
	}, game.League)
}

func toLevels(levels []kalshi.PriceLevel) []orderbook.Level {
	out := make([]orderbook.Level, len(levels))
	for i, l := range levels {
		out[i] = orderbook.Level{Price: l.Price, Quantity: l.Quantity}
	}
	return out
}
