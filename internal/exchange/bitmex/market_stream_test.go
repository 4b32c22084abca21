package bitmex

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bitmex-trader/internal/core"
)

var testUpgrader = websocket.Upgrader{}

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestStream(t *testing.T, wsURL string) (*marketStream, *PriceCache) {
	t.Helper()
	cache := NewPriceCache()
	stream := newMarketStream(streamOptions{
		URL:            wsURL,
		Topic:          "instrument",
		ReconnectDelay: 50 * time.Millisecond,
		Cache:          cache,
		Logger:         discardLogger(),
	})
	return stream, cache
}

func wsAddr(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitForQuote(t *testing.T, cache *PriceCache, symbol string) core.Quote {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if q, ok := cache.Quote(symbol); ok {
			return q
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no quote for %s before deadline", symbol)
	return core.Quote{}
}

func readSubscribe(t *testing.T, conn *websocket.Conn) subscribeRequest {
	t.Helper()
	var sub subscribeRequest
	if err := conn.ReadJSON(&sub); err != nil {
		t.Errorf("reading subscribe frame: %v", err)
	}
	return sub
}

func TestStreamSubscribesAndCachesQuotes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		sub := readSubscribe(t, conn)
		if sub.Op != "subscribe" {
			t.Errorf("op = %q, want subscribe", sub.Op)
		}
		if len(sub.Args) != 1 || sub.Args[0] != "instrument" {
			t.Errorf("args = %v, want [instrument]", sub.Args)
		}

		// Welcome and ack frames precede data on the real endpoint.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"info":"Welcome to the BitMEX Realtime API."}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"success":true,"subscribe":"instrument"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"table":"instrument","data":[{"symbol":"XBTUSD","bidPrice":10}]}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"table":"instrument","data":[{"symbol":"XBTUSD","askPrice":12}]}`))

		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	stream, cache := newTestStream(t, wsAddr(server))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go stream.run(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for {
		q, ok := cache.Quote("XBTUSD")
		if ok && q.HasBid && q.HasAsk {
			if !q.Bid.Equal(decimal.NewFromInt(10)) {
				t.Fatalf("Bid = %s, want 10", q.Bid)
			}
			if !q.Ask.Equal(decimal.NewFromInt(12)) {
				t.Fatalf("Ask = %s, want 12", q.Ask)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("quote incomplete before deadline: %+v (found %v)", q, ok)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStreamReconnectsAndResubscribes(t *testing.T) {
	var conns int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		sub := readSubscribe(t, conn)
		if sub.Op != "subscribe" {
			t.Errorf("op = %q, want subscribe", sub.Op)
		}

		// Drop the first connection right after the subscribe; serve
		// data on the ones after it.
		if atomic.AddInt64(&conns, 1) == 1 {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"table":"instrument","data":[{"symbol":"XBTUSD","bidPrice":11,"askPrice":13}]}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	stream, cache := newTestStream(t, wsAddr(server))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go stream.run(ctx)

	q := waitForQuote(t, cache, "XBTUSD")
	if !q.Bid.Equal(decimal.NewFromInt(11)) {
		t.Fatalf("Bid = %s, want 11", q.Bid)
	}
	if got := atomic.LoadInt64(&conns); got < 2 {
		t.Fatalf("connections = %d, want at least 2", got)
	}
}

func TestStreamIgnoresOtherTables(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		readSubscribe(t, conn)

		conn.WriteMessage(websocket.TextMessage, []byte(`{"table":"trade","data":[{"symbol":"TRADEONLY","bidPrice":1}]}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`not json at all`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"table":"instrument","data":[{"symbol":"XBTUSD","bidPrice":10,"askPrice":12}]}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	stream, cache := newTestStream(t, wsAddr(server))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go stream.run(ctx)

	waitForQuote(t, cache, "XBTUSD")
	if _, ok := cache.Quote("TRADEONLY"); ok {
		t.Fatal("update from a foreign table reached the cache")
	}
}

func TestStreamStopsOnContextCancel(t *testing.T) {
	hold := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		readSubscribe(t, conn)
		<-hold
	}))
	defer server.Close()
	defer close(hold)

	stream, _ := newTestStream(t, wsAddr(server))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		stream.run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("run() did not return after context cancellation")
	}
}

func TestStreamHandleMessage(t *testing.T) {
	stream, cache := newTestStream(t, "ws://127.0.0.1:1/realtime")

	stream.handleMessage([]byte(`{"table":"instrument","data":[{"symbol":"XBTUSD","bidPrice":10.5}]}`))
	q, ok := cache.Quote("XBTUSD")
	if !ok || !q.HasBid {
		t.Fatalf("quote = %+v (found %v), want bid set", q, ok)
	}
	if !q.Bid.Equal(decimal.RequireFromString("10.5")) {
		t.Fatalf("Bid = %s, want 10.5", q.Bid)
	}

	stream.handleMessage([]byte(`{"table":"orderBookL2","data":[{"symbol":"XBTUSD","bidPrice":1}]}`))
	q, _ = cache.Quote("XBTUSD")
	if !q.Bid.Equal(decimal.RequireFromString("10.5")) {
		t.Fatalf("foreign table overwrote bid: %s", q.Bid)
	}
}
