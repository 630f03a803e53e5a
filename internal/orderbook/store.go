// Package orderbook reconstructs Kalshi market books from the exchange's
// snapshot + quantity-delta stream. Each market carries two ladders, one
// per outcome side of the binary contract. Because yes-price + no-price
// = 100 for these markets, the effective ask for the yes side is derived
// from the best resting bid on the no side.
package orderbook

import (
	"log/slog"
	"sync"

	"github.com/jcarden/arbscan/internal/domain"
	"github.com/jcarden/arbscan/internal/odds"
)

// Side selects one of the two ladders of a market.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Level is one price/quantity entry of a ladder. Prices are in cents.
type Level struct {
	Price    int64
	Quantity int64
}

// Top is the derived quote for the yes side of a market: the effective
// ask (100 minus the best no bid) and the quantity resting at that
// level, which caps how much could actually be bought there.
type Top struct {
	BestAsk        odds.Cents
	LiquidityAtAsk int64
}

// book holds the two ladders of one market, keyed by price.
type book struct {
	yes map[int64]int64
	no  map[int64]int64
}

// Store keeps one book per market ticker. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	books  map[string]*book
	logger *slog.Logger
}

// New creates an empty Store.
func New(logger *slog.Logger) *Store {
	return &Store{
		books:  make(map[string]*book),
		logger: logger.With(slog.String("component", "orderbook")),
	}
}

// ApplySnapshot replaces both ladders of the market wholesale and
// returns the derived top of book.
func (s *Store) ApplySnapshot(market string, yes, no []Level) Top {
	b := &book{
		yes: make(map[int64]int64, len(yes)),
		no:  make(map[int64]int64, len(no)),
	}
	for _, lvl := range yes {
		if lvl.Quantity > 0 {
			b.yes[lvl.Price] = lvl.Quantity
		}
	}
	for _, lvl := range no {
		if lvl.Quantity > 0 {
			b.no[lvl.Price] = lvl.Quantity
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[market] = b
	return b.top()
}

// ApplyDelta adds deltaQty to the quantity resting at price on the given
// side; a level whose quantity drops to zero or below is removed
// entirely. A delta for a market with no prior snapshot is refused with
// domain.ErrNoSnapshot so the caller can drop it: deltas must never
// create a bookless state. A side other than yes or no is refused with
// domain.ErrUnknownSide; a malformed delta must never touch a ladder.
func (s *Store) ApplyDelta(market string, side Side, price, deltaQty int64) (Top, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[market]
	if !ok {
		s.logger.Warn("delta for market without snapshot",
			slog.String("market", market),
			slog.String("side", string(side)),
		)
		return Top{}, domain.ErrNoSnapshot
	}

	var ladder map[int64]int64
	switch side {
	case SideYes:
		ladder = b.yes
	case SideNo:
		ladder = b.no
	default:
		s.logger.Warn("delta with unknown side",
			slog.String("market", market),
			slog.String("side", string(side)),
		)
		return Top{}, domain.ErrUnknownSide
	}

	newQty := ladder[price] + deltaQty
	if newQty <= 0 {
		delete(ladder, price)
	} else {
		ladder[price] = newQty
	}

	return b.top(), nil
}

// Top returns the current derived quote for the market's yes side.
func (s *Store) Top(market string) (Top, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[market]
	if !ok {
		return Top{}, false
	}
	t := b.top()
	return t, t.BestAsk.Valid()
}

// Quantity returns the resting quantity at a price level, zero if the
// level (or the market) is absent.
func (s *Store) Quantity(market string, side Side, price int64) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[market]
	if !ok {
		return 0
	}
	if side == SideNo {
		return b.no[price]
	}
	return b.yes[price]
}

// Reset discards the market's book. Called on reconnect so deltas are
// refused until a fresh snapshot arrives.
func (s *Store) Reset(market string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.books, market)
}

// ResetAll discards every book.
func (s *Store) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books = make(map[string]*book)
}

// top derives the yes-side quote from the best no bid. An empty no
// ladder yields a zero (invalid) Top.
func (b *book) top() Top {
	var bestNoBid int64 = -1
	for price := range b.no {
		if price > bestNoBid {
			bestNoBid = price
		}
	}
	if bestNoBid < 0 {
		return Top{}
	}
	return Top{
		BestAsk:        odds.Cents(100 - bestNoBid),
		LiquidityAtAsk: b.no[bestNoBid],
	}
}
