package feed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/jcarden/arbscan/internal/diffstate"
	"github.com/jcarden/arbscan/internal/domain"
	"github.com/jcarden/arbscan/internal/engine"
	"github.com/jcarden/arbscan/internal/match"
	"github.com/jcarden/arbscan/internal/orderbook"
	"github.com/jcarden/arbscan/internal/platform/bet105"
	"github.com/jcarden/arbscan/internal/platform/kalshi"
)

const (
	testGameID  = "Boston Celtics-Miami Heat-2026-02-11T00:10:00Z"
	testEventID = "177958511"
	testTicker  = "KXNBAGAME-26FEB10BOSMIA-BOS"
)

type nopAudit struct{}

func (nopAudit) Append(domain.ClosedOpportunity) error { return nil }

func testEngine(t *testing.T) (*engine.Engine, *match.Matcher) {
	t.Helper()

	tables, err := match.LoadTables()
	if err != nil {
		t.Fatalf("LoadTables: %v", err)
	}
	m := match.NewMatcher(tables)
	m.BuildEvents(
		[]match.Event{{
			EventID:   testEventID,
			HomeTeam:  "Boston Celtics",
			AwayTeam:  "Miami Heat",
			StartTime: "2026-02-11T00:10:00Z",
		}},
		[]string{testTicker, "KXNBAGAME-26FEB10BOSMIA-MIA"},
		domain.League("NBA"),
	)

	eng := engine.New(engine.Params{
		Config:  engine.Config{Bankroll: 1000, ProfitThresholdPct: 1},
		Matcher: m,
		Audit:   nopAudit{},
		Logger:  discardLogger(),
	})
	return eng, m
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func envelope(t *testing.T, isDiff bool, payload string) bet105.Envelope {
	t.Helper()
	var env bet105.Envelope
	env.IsDiff = isDiff
	env.Payload = json.RawMessage(payload)
	return env
}

func TestBet105FeedFullThenDiff(t *testing.T) {
	eng, m := testEngine(t)
	state := diffstate.New(discardLogger())
	client := bet105.NewClient("https://example.test", discardLogger())
	f := NewBet105Feed(client, state, m, eng, discardLogger())
	ctx := context.Background()

	channel := bet105.EventChannel(testEventID)

	f.handle(ctx, roomMsg{channel: channel, env: envelope(t, false,
		`{"c":{"m":{"3":{"o":{"1":1.50,"2":2.10}}}}}`)})

	quote, ok := eng.VenueOdds(testGameID, domain.VenueBet105)
	if !ok || float64(quote.Home) != 1.50 || float64(quote.Away) != 2.10 {
		t.Fatalf("quote after full state = %+v (ok=%v)", quote, ok)
	}

	f.handle(ctx, roomMsg{channel: channel, env: envelope(t, true,
		`[{"op":"replace","path":"c/m/3/o/2","value":2.25}]`)})

	quote, _ = eng.VenueOdds(testGameID, domain.VenueBet105)
	if float64(quote.Away) != 2.25 || float64(quote.Home) != 1.50 {
		t.Errorf("quote after diff = %+v, want away 2.25 home 1.50", quote)
	}
}

func TestBet105FeedDiffWithoutBaseDropped(t *testing.T) {
	eng, m := testEngine(t)
	state := diffstate.New(discardLogger())
	client := bet105.NewClient("https://example.test", discardLogger())
	f := NewBet105Feed(client, state, m, eng, discardLogger())

	f.handle(context.Background(), roomMsg{
		channel: bet105.EventChannel(testEventID),
		env:     envelope(t, true, `[{"op":"replace","path":"c/m/3/o/1","value":1.9}]`),
	})

	if _, ok := eng.VenueOdds(testGameID, domain.VenueBet105); ok {
		t.Error("diff without base state must not produce a quote")
	}
}

func TestBet105FeedMarketPulledSuspends(t *testing.T) {
	eng, m := testEngine(t)
	state := diffstate.New(discardLogger())
	client := bet105.NewClient("https://example.test", discardLogger())
	f := NewBet105Feed(client, state, m, eng, discardLogger())
	ctx := context.Background()

	channel := bet105.EventChannel(testEventID)
	f.handle(ctx, roomMsg{channel: channel, env: envelope(t, false,
		`{"c":{"m":{"3":{"o":{"1":1.50,"2":2.10}}}}}`)})

	// The book pulls the moneyline market.
	f.handle(ctx, roomMsg{channel: channel, env: envelope(t, true,
		`[{"op":"remove","path":"c/m/3"}]`)})

	quote, ok := eng.VenueOdds(testGameID, domain.VenueBet105)
	if !ok {
		t.Fatal("game state vanished entirely")
	}
	if quote.Complete() {
		t.Errorf("quote still complete after market pulled: %+v", quote)
	}
}

func TestBet105FeedCatalogEvents(t *testing.T) {
	eng, m := testEngine(t)
	state := diffstate.New(discardLogger())
	client := bet105.NewClient("https://example.test", discardLogger())
	f := NewBet105Feed(client, state, m, eng, discardLogger())
	ctx := context.Background()

	if f.CatalogReady() {
		t.Error("catalog ready before any snapshot")
	}

	f.handle(ctx, roomMsg{channel: bet105.SportsChannel, env: envelope(t, false,
		`{"3":{"l":{"101":{"n":"NBA","e":{"900":{"h":"Boston Celtics","a":"Miami Heat","tm":"s"}}}}}}`)})

	if !f.CatalogReady() {
		t.Fatal("catalog not ready after snapshot")
	}
	events := f.Events("NBA")
	if len(events) != 1 || events[0].EventID != "900" {
		t.Errorf("events = %+v, want one with ID 900", events)
	}
}

func TestKalshiFeedSnapshotAndDelta(t *testing.T) {
	eng, m := testEngine(t)
	books := orderbook.New(discardLogger())
	client := kalshi.NewWSClient("ws://unused", discardLogger())
	f := NewKalshiFeed(client, books, m, eng, discardLogger())
	ctx := context.Background()

	f.handle(ctx, bookMsg{snapshot: &kalshi.SnapshotMsg{
		Ticker: testTicker,
		Yes:    []kalshi.PriceLevel{{Price: 40, Quantity: 500}},
		No:     []kalshi.PriceLevel{{Price: 55, Quantity: 800}},
	}})

	// Best no bid 55 makes the effective yes ask 45.
	quote, ok := eng.VenueOdds(testGameID, domain.VenueKalshi)
	if !ok {
		t.Fatal("no exchange quote after snapshot")
	}
	if got := float64(quote.Home); got < 2.22 || got > 2.23 {
		t.Errorf("home decimal = %v, want ~2.222 (45 cents)", got)
	}
	if quote.HomeLiquidity != 800 {
		t.Errorf("home liquidity = %v, want 800", quote.HomeLiquidity)
	}

	// New best no bid at 60 tightens the ask to 40.
	f.handle(ctx, bookMsg{delta: &kalshi.DeltaMsg{
		Ticker: testTicker, Price: 60, Delta: 300, Side: "no",
	}})

	quote, _ = eng.VenueOdds(testGameID, domain.VenueKalshi)
	if got := float64(quote.Home); got != 2.5 {
		t.Errorf("home decimal = %v, want 2.5 (40 cents)", got)
	}
	if quote.HomeLiquidity != 300 {
		t.Errorf("home liquidity = %v, want 300", quote.HomeLiquidity)
	}
}

func TestKalshiFeedDeltaWithoutSnapshot(t *testing.T) {
	eng, m := testEngine(t)
	books := orderbook.New(discardLogger())
	client := kalshi.NewWSClient("ws://unused", discardLogger())
	f := NewKalshiFeed(client, books, m, eng, discardLogger())

	f.handle(context.Background(), bookMsg{delta: &kalshi.DeltaMsg{
		Ticker: testTicker, Price: 55, Delta: 100, Side: "no",
	}})

	if _, ok := eng.VenueOdds(testGameID, domain.VenueKalshi); ok {
		t.Error("delta without snapshot must not produce a quote")
	}
}

func TestKalshiFeedUnknownTickerIgnored(t *testing.T) {
	eng, m := testEngine(t)
	books := orderbook.New(discardLogger())
	client := kalshi.NewWSClient("ws://unused", discardLogger())
	f := NewKalshiFeed(client, books, m, eng, discardLogger())

	f.handle(context.Background(), bookMsg{snapshot: &kalshi.SnapshotMsg{
		Ticker: "KXNBAGAME-26FEB10LALDEN-LAL",
		No:     []kalshi.PriceLevel{{Price: 50, Quantity: 10}},
	}})

	if eng.OpenCount() != 0 {
		t.Error("unregistered ticker opened an opportunity")
	}
}
