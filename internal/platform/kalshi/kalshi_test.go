package kalshi

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestPriceLevelUnmarshal(t *testing.T) {
	var msg SnapshotMsg
	raw := `{"market_ticker":"KXNBAGAME-26FEB10BOSMIA-BOS","yes":[[30,100],[29,50]],"no":[[55,200]]}`
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}

	if msg.Ticker != "KXNBAGAME-26FEB10BOSMIA-BOS" {
		t.Errorf("ticker = %q", msg.Ticker)
	}
	if len(msg.Yes) != 2 || msg.Yes[0] != (PriceLevel{Price: 30, Quantity: 100}) {
		t.Errorf("yes levels = %+v", msg.Yes)
	}
	if len(msg.No) != 1 || msg.No[0] != (PriceLevel{Price: 55, Quantity: 200}) {
		t.Errorf("no levels = %+v", msg.No)
	}
}

func TestHandleMessageRouting(t *testing.T) {
	w := NewWSClient("ws://unused", slog.New(slog.NewTextHandler(io.Discard, nil)))

	var snapshots []SnapshotMsg
	var deltas []DeltaMsg
	var tickers []TickerMsg
	w.OnSnapshot(func(m SnapshotMsg) { snapshots = append(snapshots, m) })
	w.OnDelta(func(m DeltaMsg) { deltas = append(deltas, m) })
	w.OnTicker(func(m TickerMsg) { tickers = append(tickers, m) })

	w.handleMessage([]byte(`{"type":"orderbook_snapshot","sid":1,"msg":{"market_ticker":"T","yes":[[30,10]],"no":[]}}`))
	w.handleMessage([]byte(`{"type":"orderbook_delta","sid":1,"msg":{"market_ticker":"T","price":55,"delta":-10,"side":"no"}}`))
	w.handleMessage([]byte(`{"type":"ticker","sid":1,"msg":{"market_ticker":"T","price":45,"yes_ask":46}}`))
	w.handleMessage([]byte(`{"type":"fill","sid":1,"msg":{}}`))
	w.handleMessage([]byte(`not json`))

	if len(snapshots) != 1 || snapshots[0].Ticker != "T" {
		t.Errorf("snapshots = %+v, want 1 for T", snapshots)
	}
	if len(deltas) != 1 || deltas[0].Delta != -10 || deltas[0].Side != "no" {
		t.Errorf("deltas = %+v", deltas)
	}
	if len(tickers) != 1 || tickers[0].YesAsk != 46 {
		t.Errorf("tickers = %+v", tickers)
	}
}

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	c := NewClient(baseURL, "test-key-id")
	if err := c.SetRSAPrivateKey(pemBytes); err != nil {
		t.Fatalf("SetRSAPrivateKey: %v", err)
	}
	return c
}

func TestListSeriesMarketsFollowsCursor(t *testing.T) {
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RawQuery)

		if r.Header.Get("KALSHI-ACCESS-KEY") != "test-key-id" ||
			r.Header.Get("KALSHI-ACCESS-SIGNATURE") == "" ||
			r.Header.Get("KALSHI-ACCESS-TIMESTAMP") == "" {
			t.Errorf("request missing auth headers: %v", r.Header)
		}

		if r.URL.Query().Get("cursor") == "" {
			io.WriteString(rw, `{"markets":[{"ticker":"A-1"},{"ticker":"A-2"}],"cursor":"page2"}`)
			return
		}
		io.WriteString(rw, `{"markets":[{"ticker":"A-3"}],"cursor":""}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)

	markets, err := c.ListSeriesMarkets(context.Background(), "KXNBAGAME")
	if err != nil {
		t.Fatalf("ListSeriesMarkets: %v", err)
	}

	if len(markets) != 3 {
		t.Fatalf("got %d markets, want 3 across pages", len(markets))
	}
	if markets[2].Ticker != "A-3" {
		t.Errorf("last market = %q, want A-3", markets[2].Ticker)
	}
	if len(requests) != 2 {
		t.Errorf("made %d requests, want 2", len(requests))
	}
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

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	w := NewWSClient(wsURL, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := w.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer w.Close()

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

func TestGetMarketsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusUnauthorized)
		io.WriteString(rw, `{"code":"unauthorized","message":"bad signature"}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)

	if _, err := c.GetMarkets(context.Background(), MarketsParams{}); err == nil {
		t.Fatal("expected error on 401 response")
	}
}
