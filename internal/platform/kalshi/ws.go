package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message.
	pongWait = 30 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff.
	maxReconnectDelay = 60 * time.Second
)

// subscription channels: quantity deltas rebuild the book, ticker
// updates trigger re-evaluation on top-of-book moves.
var wsChannels = []string{"orderbook_delta", "ticker"}

// WSClient is a WebSocket client for real-time exchange market data.
//
// Handlers run on the read loop goroutine, so a single market's
// snapshot and deltas are always delivered in wire order.
type WSClient struct {
	wsURL  string
	logger *slog.Logger
	conn   *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Tracked subscriptions for reconnection.
	subscribedTickers []string
	cmdID             int64

	handlerMu         sync.RWMutex
	snapshotHandlers  []func(SnapshotMsg)
	deltaHandlers     []func(DeltaMsg)
	tickerHandlers    []func(TickerMsg)
	reconnectHandlers []func()

	// done is closed when the client shuts down.
	done chan struct{}
}

// NewWSClient creates a WebSocket client.
//
// wsURL is the endpoint, e.g. "wss://api.elections.kalshi.com/trade-api/ws/v2".
func NewWSClient(wsURL string, logger *slog.Logger) *WSClient {
	return &WSClient{
		wsURL:  wsURL,
		logger: logger.With(slog.String("component", "kalshi_ws")),
		done:   make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and restores any tracked
// subscriptions.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("kalshi/ws: client is closed")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("kalshi/ws: connect: %w", err)
	}

	w.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop(conn)
	go w.pingLoop(conn)

	if len(w.subscribedTickers) > 0 {
		if err := w.sendSubscribe(w.subscribedTickers); err != nil {
			return fmt.Errorf("kalshi/ws: restore subscriptions: %w", err)
		}
	}

	return nil
}

// Subscribe subscribes to orderbook and ticker updates for the given
// market tickers.
func (w *WSClient) Subscribe(ctx context.Context, tickers []string) error {
	if len(tickers) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("kalshi/ws: not connected")
	}

	if err := w.sendSubscribe(tickers); err != nil {
		return fmt.Errorf("kalshi/ws: subscribe: %w", err)
	}

	existing := make(map[string]struct{}, len(w.subscribedTickers))
	for _, t := range w.subscribedTickers {
		existing[t] = struct{}{}
	}
	for _, t := range tickers {
		if _, ok := existing[t]; !ok {
			w.subscribedTickers = append(w.subscribedTickers, t)
		}
	}

	return nil
}

// OnSnapshot registers a handler for full orderbook images.
func (w *WSClient) OnSnapshot(handler func(SnapshotMsg)) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.snapshotHandlers = append(w.snapshotHandlers, handler)
}

// OnDelta registers a handler for incremental quantity changes.
func (w *WSClient) OnDelta(handler func(DeltaMsg)) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.deltaHandlers = append(w.deltaHandlers, handler)
}

// OnTicker registers a handler for top-of-book price updates.
func (w *WSClient) OnTicker(handler func(TickerMsg)) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.tickerHandlers = append(w.tickerHandlers, handler)
}

// OnReconnect registers a handler invoked before each reconnection
// attempt. Reconnection replays fresh snapshots, so consumers use this
// to drop state reconstructed over the lost connection.
func (w *WSClient) OnReconnect(handler func()) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.reconnectHandlers = append(w.reconnectHandlers, handler)
}

// Close shuts down the WebSocket connection.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// sendSubscribe sends a subscribe command. Caller must hold w.mu.
func (w *WSClient) sendSubscribe(tickers []string) error {
	w.cmdID++

	cmd := wsSubscribeCmd{
		ID:  w.cmdID,
		Cmd: "subscribe",
		Params: wsSubscribeParams{
			Channels: wsChannels,
			Tickers:  tickers,
		},
	}

	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}

	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads messages from conn and dispatches them to
// handlers. On disconnect it attempts reconnection.
//
// Each loop owns exactly the connection it was started with and closes
// only that one: by the time the deferred close runs, reconnection has
// already installed a replacement on the struct field.
func (w *WSClient) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}

			w.logger.Warn("connection lost", slog.String("error", err.Error()))
			w.reconnect()
			return
		}

		w.handleMessage(message)
	}
}

// pingLoop sends periodic pings on conn to keep it alive. It exits on
// the first write failure; the replacement connection gets its own loop.
func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw WebSocket message and routes it by type.
// Unknown types are ignored.
func (w *WSClient) handleMessage(raw []byte) {
	var envelope WSMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		w.logger.Debug("unparseable message", slog.String("error", err.Error()))
		return
	}

	w.handlerMu.RLock()
	defer w.handlerMu.RUnlock()

	switch envelope.Type {
	case "orderbook_snapshot":
		var msg SnapshotMsg
		if err := json.Unmarshal(envelope.Msg, &msg); err != nil {
			return
		}
		for _, h := range w.snapshotHandlers {
			h(msg)
		}
	case "orderbook_delta":
		var msg DeltaMsg
		if err := json.Unmarshal(envelope.Msg, &msg); err != nil {
			return
		}
		for _, h := range w.deltaHandlers {
			h(msg)
		}
	case "ticker":
		var msg TickerMsg
		if err := json.Unmarshal(envelope.Msg, &msg); err != nil {
			return
		}
		for _, h := range w.tickerHandlers {
			h(msg)
		}
	}
}

// reconnect re-establishes the connection with exponential backoff.
// Reconnect handlers fire before each attempt so stale reconstructed
// state is gone by the time the new snapshots stream in.
func (w *WSClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.handlerMu.RLock()
		handlers := w.reconnectHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h()
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			w.logger.Info("reconnected")
			return
		}

		w.logger.Warn("reconnect failed",
			slog.String("error", err.Error()),
			slog.Duration("next_delay", delay),
		)

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
