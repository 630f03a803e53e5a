// Package feed bridges the venue clients and the arbitrage engine. Each
// venue gets one ordered message channel consumed by a single dispatcher
// goroutine, so no two updates for the same game are ever processed
// concurrently from the same venue.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/jcarden/arbscan/internal/diffstate"
	"github.com/jcarden/arbscan/internal/engine"
	"github.com/jcarden/arbscan/internal/match"
	"github.com/jcarden/arbscan/internal/platform/bet105"
)

// feedBuffer sizes each venue's dispatch channel. The read loop blocks
// when it fills, which backpressures the socket rather than dropping or
// reordering updates.
const feedBuffer = 1024

type roomMsg struct {
	channel string
	env     bet105.Envelope
}

// Bet105Feed replays the sportsbook's snapshot+patch stream into the
// diffstate store and feeds extracted moneyline quotes to the engine.
type Bet105Feed struct {
	client  *bet105.Client
	state   *diffstate.Store
	matcher *match.Matcher
	engine  *engine.Engine
	logger  *slog.Logger

	msgs chan roomMsg
}

// NewBet105Feed wires a feed to its client. The client's reconnects
// reset the diffstate store: diffs against state replicated over a lost
// connection are never accepted.
func NewBet105Feed(
	client *bet105.Client,
	state *diffstate.Store,
	matcher *match.Matcher,
	eng *engine.Engine,
	logger *slog.Logger,
) *Bet105Feed {
	f := &Bet105Feed{
		client:  client,
		state:   state,
		matcher: matcher,
		engine:  eng,
		logger:  logger.With(slog.String("component", "bet105_feed")),
		msgs:    make(chan roomMsg, feedBuffer),
	}

	client.OnMessage(func(channel string, env bet105.Envelope) {
		f.msgs <- roomMsg{channel: channel, env: env}
	})
	client.OnReconnect(state.ResetAll)

	return f
}

// SubscribeCatalog joins the sports catalog room.
func (f *Bet105Feed) SubscribeCatalog(ctx context.Context) error {
	return f.client.Subscribe(ctx, []string{bet105.SportsChannel})
}

// SubscribeEvents joins the odds room for each event.
func (f *Bet105Feed) SubscribeEvents(ctx context.Context, eventIDs []string) error {
	rooms := make([]string, len(eventIDs))
	for i, id := range eventIDs {
		rooms[i] = bet105.EventChannel(id)
	}
	return f.client.Subscribe(ctx, rooms)
}

// Events returns the sportsbook's current listings for one league,
// read from the replicated catalog tree.
func (f *Bet105Feed) Events(leagueName string) []match.Event {
	tree, ok := f.state.Get(bet105.SportsChannel)
	if !ok {
		return nil
	}

	catalog := bet105.ExtractLeagueEvents(tree, leagueName)
	events := make([]match.Event, 0, len(catalog))
	for _, ev := range catalog {
		events = append(events, match.Event{
			EventID:   ev.EventID,
			HomeTeam:  ev.HomeTeam,
			AwayTeam:  ev.AwayTeam,
			StartTime: ev.StartTime,
		})
	}
	return events
}

// CatalogReady reports whether the catalog snapshot has arrived.
func (f *Bet105Feed) CatalogReady() bool {
	_, ok := f.state.Get(bet105.SportsChannel)
	return ok
}

// Run is the dispatcher loop. It owns all mutation of the sportsbook's
// replicated state and runs until the context is cancelled.
func (f *Bet105Feed) Run(ctx context.Context) error {
	f.logger.Info("bet105 dispatcher started")
	defer f.logger.Info("bet105 dispatcher stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-f.msgs:
			f.handle(ctx, msg)
		}
	}
}

func (f *Bet105Feed) handle(ctx context.Context, msg roomMsg) {
	if !f.apply(msg) {
		return
	}

	eventID, ok := eventIDFromChannel(msg.channel)
	if !ok {
		// Catalog rooms carry no odds; the tree is read on demand by
		// Events.
		return
	}

	gameID, ok := f.matcher.GameIDByEvent(eventID)
	if !ok {
		return
	}

	tree, ok := f.state.Get(msg.channel)
	if !ok {
		return
	}

	ml, ok := bet105.ExtractOdds(tree)
	if !ok {
		// Market pulled: clear the quote and let the engine close
		// anything open on it.
		f.engine.OnBet105Update(ctx, gameID, engine.Bet105Update{})
		return
	}

	f.engine.OnBet105Update(ctx, gameID, engine.Bet105Update{
		Home: ml.Home,
		Away: ml.Away,
	})
}

// apply replays one envelope into the store. Malformed payloads and
// diffs without a base state are dropped; the next full state
// self-heals.
func (f *Bet105Feed) apply(msg roomMsg) bool {
	if msg.env.IsDiff {
		var patches []diffstate.Patch
		if err := json.Unmarshal(msg.env.Payload, &patches); err != nil {
			f.logger.Debug("bad patch list",
				slog.String("channel", msg.channel),
				slog.String("error", err.Error()),
			)
			return false
		}
		if err := f.state.ApplyDiff(msg.channel, patches); err != nil {
			f.logger.Warn("diff dropped",
				slog.String("channel", msg.channel),
				slog.String("error", err.Error()),
			)
			return false
		}
		return true
	}

	var tree map[string]any
	if err := json.Unmarshal(msg.env.Payload, &tree); err != nil {
		f.logger.Debug("bad full state",
			slog.String("channel", msg.channel),
			slog.String("error", err.Error()),
		)
		return false
	}
	f.state.ApplyFull(msg.channel, tree)
	return true
}

// eventIDFromChannel pulls the event ID out of an eventCoefficients
// room name.
func eventIDFromChannel(channel string) (string, bool) {
	i := strings.LastIndex(channel, ".")
	if i < 0 || !strings.Contains(channel, ".eventCoefficients.") {
		return "", false
	}
	return channel[i+1:], true
}
