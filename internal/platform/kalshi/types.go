package kalshi

import (
	"encoding/json"
	"fmt"
)

// Market is a market as returned by the exchange REST API. Prices are
// integer cents (1-99).
type Market struct {
	Ticker       string `json:"ticker"`
	EventTicker  string `json:"event_ticker"`
	Title        string `json:"title"`
	Status       string `json:"status"` // "open", "closed", "settled"
	YesBid       int64  `json:"yes_bid"`
	YesAsk       int64  `json:"yes_ask"`
	NoBid        int64  `json:"no_bid"`
	NoAsk        int64  `json:"no_ask"`
	Volume       int64  `json:"volume"`
	OpenInterest int64  `json:"open_interest"`
	CloseTime    string `json:"close_time"`
}

// MarketsPage is one page of a market listing. An empty Cursor means the
// listing is exhausted.
type MarketsPage struct {
	Markets []Market
	Cursor  string
}

// MarketsParams filters a market listing request.
type MarketsParams struct {
	SeriesTicker string
	Status       string
	Limit        int
	Cursor       string
}

// PriceLevel is one orderbook ladder entry. The wire format is a
// two-element [price, quantity] array.
type PriceLevel struct {
	Price    int64
	Quantity int64
}

func (l *PriceLevel) UnmarshalJSON(data []byte) error {
	var pair [2]int64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("kalshi: price level: %w", err)
	}
	l.Price, l.Quantity = pair[0], pair[1]
	return nil
}

func (l PriceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int64{l.Price, l.Quantity})
}

// ErrorResponse is the exchange API error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSMessage is the envelope for exchange WebSocket messages.
type WSMessage struct {
	Type string          `json:"type"` // "orderbook_snapshot", "orderbook_delta", "ticker", ...
	SID  int64           `json:"sid"`
	Msg  json.RawMessage `json:"msg"`
}

// SnapshotMsg is a full orderbook image for one market. It replaces any
// previously reconstructed state for the ticker.
type SnapshotMsg struct {
	Ticker string       `json:"market_ticker"`
	Yes    []PriceLevel `json:"yes"`
	No     []PriceLevel `json:"no"`
}

// DeltaMsg is an incremental quantity change at one price level.
type DeltaMsg struct {
	Ticker string `json:"market_ticker"`
	Price  int64  `json:"price"`
	Delta  int64  `json:"delta"`
	Side   string `json:"side"` // "yes" or "no"
}

// TickerMsg is a top-of-book price update for one market.
type TickerMsg struct {
	Ticker string `json:"market_ticker"`
	Price  int64  `json:"price"`
	YesBid int64  `json:"yes_bid"`
	YesAsk int64  `json:"yes_ask"`
	Volume int64  `json:"volume"`
}

// wsSubscribeCmd is the command sent to subscribe to WebSocket channels.
type wsSubscribeCmd struct {
	ID     int64             `json:"id"`
	Cmd    string            `json:"cmd"`
	Params wsSubscribeParams `json:"params"`
}

type wsSubscribeParams struct {
	Channels []string `json:"channels"`
	Tickers  []string `json:"market_tickers"`
}
