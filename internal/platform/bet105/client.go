// Package bet105 is the sportsbook feed client. The venue pushes
// gzip-compressed JSON over socket.io rooms: a full state first, then
// ordered patch streams that the diffstate store replays.
package bet105

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// handshakeTimeout bounds the engine.io open/connect exchange.
	handshakeTimeout = 15 * time.Second

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff.
	maxReconnectDelay = 60 * time.Second
)

// MessageHandler receives every decoded room message.
type MessageHandler func(channel string, env Envelope)

// Client maintains the socket.io connection to the sportsbook feed.
//
// Handlers run on the read loop goroutine, so messages for one room are
// always delivered in wire order.
type Client struct {
	wsURL  string
	logger *slog.Logger
	conn   *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Subscribed rooms, restored after reconnect.
	rooms []string

	// Server-announced keepalive window.
	readWindow time.Duration

	handlerMu         sync.RWMutex
	msgHandlers       []MessageHandler
	reconnectHandlers []func()

	done chan struct{}
}

// NewClient creates a feed client for the given base URL, e.g.
// "https://pandora.ganchrow.com".
func NewClient(baseURL string, logger *slog.Logger) *Client {
	ws := strings.Replace(baseURL, "https://", "wss://", 1)
	ws = strings.Replace(ws, "http://", "ws://", 1)
	return &Client{
		wsURL:  ws + "/socket.io/?EIO=4&transport=websocket",
		logger: logger.With(slog.String("component", "bet105_ws")),
		done:   make(chan struct{}),
	}
}

// OnMessage registers a handler for every decoded room message.
func (c *Client) OnMessage(handler MessageHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.msgHandlers = append(c.msgHandlers, handler)
}

// OnReconnect registers a handler invoked before each reconnection
// attempt. The feed resends full states after reconnect, so consumers
// use this to drop state replicated over the lost connection.
func (c *Client) OnReconnect(handler func()) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.reconnectHandlers = append(c.reconnectHandlers, handler)
}

// Connect dials the feed, completes the socket.io handshake, and
// restores any tracked room subscriptions.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("bet105: client is closed")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("bet105: connect: %w", err)
	}

	if err := c.handshake(conn); err != nil {
		conn.Close()
		return fmt.Errorf("bet105: handshake: %w", err)
	}

	c.conn = conn
	go c.readLoop(conn)

	if len(c.rooms) > 0 {
		if err := c.sendSubscribe(c.rooms); err != nil {
			return fmt.Errorf("bet105: restore subscriptions: %w", err)
		}
	}

	return nil
}

// Subscribe joins the given rooms.
func (c *Client) Subscribe(ctx context.Context, rooms []string) error {
	if len(rooms) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("bet105: not connected")
	}

	if err := c.sendSubscribe(rooms); err != nil {
		return fmt.Errorf("bet105: subscribe: %w", err)
	}

	existing := make(map[string]struct{}, len(c.rooms))
	for _, r := range c.rooms {
		existing[r] = struct{}{}
	}
	for _, r := range rooms {
		if _, ok := existing[r]; !ok {
			c.rooms = append(c.rooms, r)
		}
	}

	return nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.done)

	if c.conn != nil {
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return c.conn.Close()
	}

	return nil
}

// handshake runs the engine.io open / socket.io connect exchange.
// Caller must hold c.mu.
func (c *Client) handshake(conn *websocket.Conn) error {
	deadline := time.Now().Add(handshakeTimeout)
	conn.SetReadDeadline(deadline)

	// Engine.io open packet announces the keepalive cadence.
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read open: %w", err)
	}
	f, err := parseFrame(raw)
	if err != nil {
		return err
	}
	if f.engineType != engineOpen {
		return fmt.Errorf("expected open packet, got %q", f.engineType)
	}

	var open openParams
	if err := json.Unmarshal(f.data, &open); err != nil {
		return fmt.Errorf("decode open: %w", err)
	}
	c.readWindow = time.Duration(open.PingInterval+open.PingTimeout) * time.Millisecond
	if c.readWindow <= 0 {
		c.readWindow = 60 * time.Second
	}

	// Join the default namespace and wait for the ack.
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, []byte("40")); err != nil {
		return fmt.Errorf("send connect: %w", err)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read connect ack: %w", err)
		}
		f, err := parseFrame(raw)
		if err != nil {
			return err
		}
		if f.engineType == enginePing {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("3")); err != nil {
				return fmt.Errorf("send pong: %w", err)
			}
			continue
		}
		if f.engineType == engineMessage && f.socketType == socketConnect {
			conn.SetReadDeadline(time.Now().Add(c.readWindow))
			return nil
		}
	}
}

// sendSubscribe emits a subscribe event. Caller must hold c.mu.
func (c *Client) sendSubscribe(rooms []string) error {
	msg, err := encodeSubscribe(rooms)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// readLoop reads frames from conn and dispatches decoded room messages.
// On disconnect it attempts reconnection.
//
// Each loop owns exactly the connection it was started with and closes
// only that one: by the time the deferred close runs, reconnection has
// already installed a replacement on the struct field.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	// A binary event's JSON arrives first; the compressed payload
	// follows as the next binary frame.
	var pending *eventBody

	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.mu.RLock()
		window := c.readWindow
		c.mu.RUnlock()

		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}

			c.logger.Warn("connection lost", slog.String("error", err.Error()))
			c.reconnect()
			return
		}

		if msgType == websocket.BinaryMessage {
			// Engine.io prefixes websocket binary attachments with a
			// 0x04 marker byte.
			if len(raw) > 0 && raw[0] == engineMessage-'0' {
				raw = raw[1:]
			}
			if pending != nil {
				c.dispatchCompressed(pending.Name, raw)
				pending = nil
			}
			continue
		}

		f, err := parseFrame(raw)
		if err != nil {
			c.logger.Debug("unparseable frame", slog.String("error", err.Error()))
			continue
		}

		switch f.engineType {
		case enginePing:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("3")); err != nil {
				c.logger.Warn("pong failed", slog.String("error", err.Error()))
			}
			conn.SetReadDeadline(time.Now().Add(window))
		case engineMessage:
			if f.socketType != socketEvent && f.socketType != socketBinaryEvent {
				continue
			}
			ev, err := parseEvent(f.data)
			if err != nil {
				c.logger.Debug("unparseable event", slog.String("error", err.Error()))
				continue
			}
			if f.attachments > 0 && isPlaceholder(ev.Arg) {
				pending = &ev
				continue
			}
			c.dispatchArg(ev.Name, ev.Arg)
		}
	}
}

// dispatchArg handles an inline event argument: either a base64 string
// wrapping the compressed payload, or plain JSON.
func (c *Client) dispatchArg(channel string, arg json.RawMessage) {
	if len(arg) == 0 {
		return
	}

	if arg[0] == '"' {
		var b64 string
		if err := json.Unmarshal(arg, &b64); err != nil {
			return
		}
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			c.logger.Debug("bad base64 payload", slog.String("channel", channel))
			return
		}
		c.dispatchCompressed(channel, data)
		return
	}

	var env Envelope
	if err := json.Unmarshal(arg, &env); err != nil {
		c.logger.Debug("bad envelope", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	c.dispatch(channel, env)
}

// dispatchCompressed gunzips a payload and dispatches the envelope.
// Decode failures are dropped; the next full state self-heals.
func (c *Client) dispatchCompressed(channel string, data []byte) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		c.logger.Debug("bad gzip payload", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		c.logger.Debug("gzip read failed", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Debug("bad envelope", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	c.dispatch(channel, env)
}

func (c *Client) dispatch(channel string, env Envelope) {
	c.handlerMu.RLock()
	handlers := c.msgHandlers
	c.handlerMu.RUnlock()

	for _, h := range handlers {
		h(channel, env)
	}
}

// reconnect re-establishes the connection with exponential backoff.
// Reconnect handlers fire before each attempt so stale replicated state
// is gone by the time full states stream in again.
func (c *Client) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.handlerMu.RLock()
		handlers := c.reconnectHandlers
		c.handlerMu.RUnlock()
		for _, h := range handlers {
			h()
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
		err := c.Connect(ctx)
		cancel()

		if err == nil {
			c.logger.Info("reconnected")
			return
		}

		c.logger.Warn("reconnect failed",
			slog.String("error", err.Error()),
			slog.Duration("next_delay", delay),
		)

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
