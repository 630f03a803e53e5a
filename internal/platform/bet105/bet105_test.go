package bet105

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		engineType  byte
		socketType  byte
		attachments int
		data        string
		wantErr     bool
	}{
		{"open", `0{"sid":"x","pingInterval":25000}`, engineOpen, 0, 0, `{"sid":"x","pingInterval":25000}`, false},
		{"ping", "2", enginePing, 0, 0, "", false},
		{"connect ack", `40{"sid":"y"}`, engineMessage, socketConnect, 0, `{"sid":"y"}`, false},
		{"event", `42["live.sportsDiff",{}]`, engineMessage, socketEvent, 0, `["live.sportsDiff",{}]`, false},
		{"binary event", `451-["room",{"_placeholder":true,"num":0}]`, engineMessage, socketBinaryEvent, 1, `["room",{"_placeholder":true,"num":0}]`, false},
		{"empty", "", 0, 0, 0, "", true},
		{"unknown type", "9", 0, 0, 0, "", true},
		{"binary without count", "45[]", 0, 0, 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := parseFrame([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFrame(%q) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if f.engineType != tt.engineType || f.socketType != tt.socketType {
				t.Errorf("types = %q/%q, want %q/%q", f.engineType, f.socketType, tt.engineType, tt.socketType)
			}
			if f.attachments != tt.attachments {
				t.Errorf("attachments = %d, want %d", f.attachments, tt.attachments)
			}
			if string(f.data) != tt.data {
				t.Errorf("data = %q, want %q", f.data, tt.data)
			}
		})
	}
}

func TestParseEvent(t *testing.T) {
	ev, err := parseEvent([]byte(`["live.sportsDiff",{"_placeholder":true,"num":0}]`))
	if err != nil {
		t.Fatalf("parseEvent: %v", err)
	}
	if ev.Name != "live.sportsDiff" {
		t.Errorf("name = %q", ev.Name)
	}
	if !isPlaceholder(ev.Arg) {
		t.Error("placeholder arg not detected")
	}

	ev, err = parseEvent([]byte(`["room","aGVsbG8="]`))
	if err != nil {
		t.Fatalf("parseEvent: %v", err)
	}
	if isPlaceholder(ev.Arg) {
		t.Error("base64 arg misdetected as placeholder")
	}
}

func TestEncodeSubscribe(t *testing.T) {
	msg, err := encodeSubscribe([]string{"a", "b"})
	if err != nil {
		t.Fatalf("encodeSubscribe: %v", err)
	}
	want := `42["subscribe",[{"roomName":"a"},{"roomName":"b"}]]`
	if string(msg) != want {
		t.Errorf("encodeSubscribe = %s, want %s", msg, want)
	}
}

func TestDispatchCompressed(t *testing.T) {
	c := NewClient("https://example.test", slog.New(slog.NewTextHandler(io.Discard, nil)))

	var got []Envelope
	var channels []string
	c.OnMessage(func(channel string, env Envelope) {
		channels = append(channels, channel)
		got = append(got, env)
	})

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	io.WriteString(zw, `{"isDiff":true,"payload":[{"op":"replace","path":"c/m/3/o/1","value":1.95}],"ti":{"t":1700000000}}`)
	zw.Close()

	c.dispatchCompressed(EventChannel("177958511"), buf.Bytes())

	if len(got) != 1 {
		t.Fatalf("dispatched %d envelopes, want 1", len(got))
	}
	if channels[0] != "live.main."+channelToken+".eventCoefficients.177958511" {
		t.Errorf("channel = %q", channels[0])
	}
	if !got[0].IsDiff || got[0].TI.T != 1700000000 {
		t.Errorf("envelope = %+v", got[0])
	}

	// Garbage is dropped, not dispatched.
	c.dispatchCompressed("room", []byte("not gzip"))
	if len(got) != 1 {
		t.Errorf("corrupt payload was dispatched")
	}
}

// serveHandshake plays the server half of the engine.io open /
// socket.io connect exchange.
func serveHandshake(conn *websocket.Conn) error {
	open := `0{"sid":"s1","pingInterval":25000,"pingTimeout":20000}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(open)); err != nil {
		return err
	}
	if _, _, err := conn.ReadMessage(); err != nil { // "40" connect
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(`40{"sid":"s2"}`))
}

func TestReconnectKeepsReplacementConnection(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the real reconnect backoff")
	}

	var dials atomic.Int32
	replacementClosed := make(chan struct{}, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		if err := serveHandshake(conn); err != nil {
			conn.Close()
			return
		}
		// Drop the first connection immediately to force a reconnect;
		// hold every later one open and report if the client closes it.
		if dials.Add(1) == 1 {
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				replacementClosed <- struct{}{}
				return
			}
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	// The replacement must outlive the dropped connection's teardown:
	// each read loop closes only the connection it was started with.
	select {
	case <-replacementClosed:
		t.Fatal("replacement connection closed during reconnect")
	case <-time.After(reconnectDelay + 3*time.Second):
	}
	if n := dials.Load(); n != 2 {
		t.Fatalf("server saw %d connections, want 2", n)
	}
}

func treeFromJSON(t *testing.T, raw string) map[string]any {
	t.Helper()
	var tree map[string]any
	if err := json.Unmarshal([]byte(raw), &tree); err != nil {
		t.Fatalf("parse tree: %v", err)
	}
	return tree
}

func TestExtractOdds(t *testing.T) {
	state := treeFromJSON(t, `{"c":{"m":{"3":{"o":{"1":1.95,"2":"2.10"}},"7":{"o":{"1":1.5}}}}}`)

	ml, ok := ExtractOdds(state)
	if !ok {
		t.Fatal("moneyline not extracted")
	}
	if float64(ml.Home) != 1.95 || float64(ml.Away) != 2.10 {
		t.Errorf("odds = %+v, want 1.95/2.10", ml)
	}
}

func TestExtractOddsSuspended(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no markets", `{"c":{}}`},
		{"moneyline pulled", `{"c":{"m":{"7":{"o":{"1":1.5}}}}}`},
		{"one side missing", `{"c":{"m":{"3":{"o":{"1":1.95}}}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := ExtractOdds(treeFromJSON(t, tt.raw)); ok {
				t.Error("expected suspended market")
			}
		})
	}
}

func TestExtractLeagueEvents(t *testing.T) {
	state := treeFromJSON(t, `{
		"3": {"l": {
			"101": {"n": "NBA", "e": {
				"177958511": {"h": "Boston Celtics", "a": "Miami Heat", "tm": "2026-02-11T00:10:00Z"},
				"177958512": {"h": "Los Angeles Lakers", "a": "Denver Nuggets", "tm": "2026-02-11T02:40:00Z"}
			}},
			"102": {"n": "College Basketball", "e": {
				"177958600": {"h": "Duke", "a": "Kansas", "tm": "2026-02-11T01:00:00Z"}
			}}
		}}
	}`)

	events := ExtractLeagueEvents(state, "NBA")
	if len(events) != 2 {
		t.Fatalf("extracted %d events, want 2", len(events))
	}
	byID := map[string]CatalogEvent{}
	for _, ev := range events {
		byID[ev.EventID] = ev
	}
	got, ok := byID["177958511"]
	if !ok || got.HomeTeam != "Boston Celtics" || got.AwayTeam != "Miami Heat" {
		t.Errorf("event 177958511 = %+v", got)
	}

	if evs := ExtractLeagueEvents(state, "NHL"); len(evs) != 0 {
		t.Errorf("unlisted league returned %d events", len(evs))
	}
}
