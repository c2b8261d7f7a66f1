package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spreadwatch/spreadwatch/internal/models"
	"github.com/spreadwatch/spreadwatch/internal/quotestore"
	"github.com/spreadwatch/spreadwatch/internal/refdata"
)

func testRegistry(t *testing.T) *refdata.Registry {
	t.Helper()
	ref, err := refdata.New(refdata.Seed())
	if err != nil {
		t.Fatalf("building seed registry: %v", err)
	}
	return ref
}

type failingArchive struct {
	calls atomic.Int32
}

func (f *failingArchive) SaveQuote(ctx context.Context, q models.Quote) error {
	f.calls.Add(1)
	return errors.New("disk on fire")
}

func (f *failingArchive) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *failingArchive) LoadExchanges(ctx context.Context) ([]models.Exchange, error) {
	return nil, nil
}

func (f *failingArchive) LoadTradingPairs(ctx context.Context) ([]models.TradingPair, error) {
	return nil, nil
}

func (f *failingArchive) Close() error { return nil }

func TestSinkArchiveFailureDoesNotAffectStore(t *testing.T) {
	store := quotestore.New()
	archive := &failingArchive{}
	sink := NewSink(store, archive)

	sink.Publish(models.Quote{
		Exchange: "binance", Pair: "BTC_USD",
		Bid: 67000, Ask: 67001, ObservedAt: time.Now(),
	})
	sink.Close()

	if store.Len() != 1 {
		t.Fatal("in-memory upsert lost when the archive write failed")
	}
	if archive.calls.Load() != 1 {
		t.Fatalf("archive called %d times, want 1", archive.calls.Load())
	}
}

func TestSinkWithoutArchive(t *testing.T) {
	store := quotestore.New()
	sink := NewSink(store, nil)

	sink.Publish(models.Quote{Exchange: "binance", Pair: "BTC_USD", Bid: 1, Ask: 2, ObservedAt: time.Now()})
	sink.Close() // must not block or panic

	if store.Len() != 1 {
		t.Fatal("upsert lost without an archive")
	}
}

// tickerServer accepts websocket connections, waits for the subscribe frame,
// sends the given frames, and then either closes (forcing a client reconnect)
// or holds the connection open.
func tickerServer(t *testing.T, frames []string, closeAfterSend bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conns.Add(1)

		if _, _, err := conn.ReadMessage(); err != nil { // subscribe frame
			return
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		if closeAfterSend {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return srv, &conns
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestBinanceConnectorDeliversQuotes(t *testing.T) {
	frame := `{"e":"24hrTicker","s":"BTCUSD","c":"67050.10","b":"67049.90","a":"67051.20","v":"1234.5"}`
	srv, _ := tickerServer(t, []string{frame}, false)
	defer srv.Close()

	store := quotestore.New()
	c := NewBinanceConnector(testRegistry(t), NewSink(store, nil), 10*time.Millisecond)
	c.url = wsURL(srv)

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	c.Connect(context.Background())
	defer c.Disconnect()

	if !waitFor(t, 2*time.Second, func() bool { return store.Len() == 1 }) {
		t.Fatal("quote never reached the store")
	}
	snap := store.Snapshot(time.Minute)
	if snap[0].Pair != "BTC_USD" || snap[0].Ask != 67051.20 {
		t.Fatalf("stored quote wrong: %+v", snap[0])
	}
}

func TestBinanceConnectorReconnectsAfterServerClose(t *testing.T) {
	frame := `{"e":"24hrTicker","s":"BTCUSD","c":"67050.10","b":"67049.90","a":"67051.20","v":"1234.5"}`
	srv, conns := tickerServer(t, []string{frame}, true)
	defer srv.Close()

	store := quotestore.New()
	c := NewBinanceConnector(testRegistry(t), NewSink(store, nil), 10*time.Millisecond)
	c.url = wsURL(srv)

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	c.Connect(context.Background())
	defer c.Disconnect()

	if !waitFor(t, 3*time.Second, func() bool { return conns.Load() >= 2 && store.Len() == 1 }) {
		t.Fatalf("no reconnect observed: %d connections, %d quotes", conns.Load(), store.Len())
	}
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	srv, _ := tickerServer(t, nil, true)
	srv.Close() // every dial now fails, connector sits in its reconnect wait

	store := quotestore.New()
	c := NewBinanceConnector(testRegistry(t), NewSink(store, nil), time.Hour)
	c.url = wsURL(srv)

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	c.Connect(context.Background())
	time.Sleep(50 * time.Millisecond) // let the first dial fail

	start := time.Now()
	c.Disconnect()
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Disconnect took %v, the pending reconnect timer was not canceled", elapsed)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	frame := `{"e":"24hrTicker","s":"BTCUSD","c":"1","b":"1","a":"2","v":"3"}`
	srv, _ := tickerServer(t, []string{frame}, false)
	defer srv.Close()

	c := NewBinanceConnector(testRegistry(t), NewSink(quotestore.New(), nil), 10*time.Millisecond)
	c.url = wsURL(srv)
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	c.Connect(context.Background())

	c.Disconnect()
	c.Disconnect()
}

func TestInitializeFailsFastWithoutExchangeRow(t *testing.T) {
	ref, err := refdata.New(
		[]models.Exchange{{Name: "coinbase", Fee: 0.005, Active: true}},
		[]models.TradingPair{{Symbol: "BTC_USD", Base: "BTC", Quote: "USD", Active: true}},
	)
	if err != nil {
		t.Fatalf("refdata.New: %v", err)
	}

	c := NewBinanceConnector(ref, NewSink(quotestore.New(), nil), 0)
	if err := c.Initialize(context.Background()); err == nil {
		t.Fatal("Initialize succeeded without a binance exchange row")
	}
}
