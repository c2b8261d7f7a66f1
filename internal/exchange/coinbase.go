package exchange

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/spreadwatch/spreadwatch/internal/models"
	"github.com/spreadwatch/spreadwatch/internal/refdata"
)

const coinbaseWSURL = "wss://ws-feed.exchange.coinbase.com"

// CoinbaseConnector streams the ticker channel for the configured products.
// Coinbase sends periodic ticker heartbeats on its own, so no client-side
// ping is required.
type CoinbaseConnector struct {
	ref      *refdata.Registry
	sink     *Sink
	url      string
	delay    time.Duration
	products []string // hyphenated product ids, e.g. BTC-USD
	lifecycle
}

func NewCoinbaseConnector(ref *refdata.Registry, sink *Sink, delay time.Duration) *CoinbaseConnector {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &CoinbaseConnector{ref: ref, sink: sink, url: coinbaseWSURL, delay: delay}
}

func (c *CoinbaseConnector) Name() string {
	return "coinbase"
}

func (c *CoinbaseConnector) Initialize(ctx context.Context) error {
	if _, ok := c.ref.Exchange(c.Name()); !ok {
		return errExchangeMissing(c.Name())
	}
	for _, symbol := range c.ref.Symbols() {
		pair, _ := c.ref.Pair(symbol)
		c.products = append(c.products, pair.Base+"-"+pair.Quote)
	}
	if len(c.products) == 0 {
		return errNoPairs(c.Name())
	}
	return nil
}

func (c *CoinbaseConnector) Connect(ctx context.Context) {
	c.start(ctx, c.run)
}

func (c *CoinbaseConnector) Disconnect() {
	c.stop()
	log.Info().Str("exchange", c.Name()).Msg("connector stopped")
}

func (c *CoinbaseConnector) run(ctx context.Context) {
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("exchange", c.Name()).Msg("connect failed")
			if !wait(ctx, c.delay) {
				return
			}
			continue
		}

		session := uuid.NewString()
		log.Info().
			Str("exchange", c.Name()).
			Str("session", session).
			Int("products", len(c.products)).
			Msg("connected, subscribing")

		if err := conn.WriteJSON(map[string]any{
			"type":        "subscribe",
			"product_ids": c.products,
			"channels":    []string{"ticker"},
		}); err != nil {
			log.Error().Err(err).Str("exchange", c.Name()).Msg("subscribe failed")
			conn.Close()
			if !wait(ctx, c.delay) {
				return
			}
			continue
		}

		c.readLoop(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		log.Warn().
			Str("exchange", c.Name()).
			Str("session", session).
			Dur("retry_in", c.delay).
			Msg("disconnected, reconnect scheduled")
		if !wait(ctx, c.delay) {
			return
		}
	}
}

func (c *CoinbaseConnector) readLoop(ctx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("exchange", c.Name()).Msg("read error")
			}
			return
		}
		if q, ok := c.normalize(msg); ok {
			c.sink.Publish(q)
		}
	}
}

// normalize converts one ticker frame into a canonical quote. Subscription
// confirmations and heartbeats report false without logging.
func (c *CoinbaseConnector) normalize(data []byte) (models.Quote, bool) {
	var raw struct {
		Type      string `json:"type"`
		ProductID string `json:"product_id"`
		Price     string `json:"price"`
		BestBid   string `json:"best_bid"`
		BestAsk   string `json:"best_ask"`
		Volume24h string `json:"volume_24h"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Warn().Err(err).Str("exchange", c.Name()).Msg("unparseable frame dropped")
		return models.Quote{}, false
	}
	if raw.Type != "ticker" {
		if raw.Type == "error" {
			log.Warn().Str("exchange", c.Name()).RawJSON("frame", data).Msg("error frame from feed")
		}
		return models.Quote{}, false
	}

	symbol := coinbasePairSymbol(raw.ProductID)
	pair, ok := c.ref.Pair(symbol)
	if !ok {
		log.Warn().
			Str("exchange", c.Name()).
			Str("native_symbol", raw.ProductID).
			Str("resolved", symbol).
			Msg("unknown trading pair, message dropped")
		return models.Quote{}, false
	}

	last, err1 := strconv.ParseFloat(raw.Price, 64)
	bid, err2 := strconv.ParseFloat(raw.BestBid, 64)
	ask, err3 := strconv.ParseFloat(raw.BestAsk, 64)
	volume, err4 := strconv.ParseFloat(raw.Volume24h, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		log.Warn().Str("exchange", c.Name()).Str("pair", pair.Symbol).Msg("malformed price fields, message dropped")
		return models.Quote{}, false
	}

	return models.Quote{
		Exchange:   c.Name(),
		Pair:       pair.Symbol,
		LastPrice:  last,
		Bid:        bid,
		Ask:        ask,
		Volume24h:  volume,
		ObservedAt: time.Now(),
	}, true
}

// coinbasePairSymbol rewrites a hyphenated product id (BTC-USD) to the
// canonical separator (BTC_USD).
func coinbasePairSymbol(native string) string {
	return strings.ReplaceAll(native, "-", "_")
}
