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

const binanceWSURL = "wss://stream.binance.com:9443/ws"

// Quote currencies Binance appends to its concatenated symbols, longest
// first so BTCUSDT resolves to USDT rather than USD.
var binanceQuoteSuffixes = []string{"USDT", "USDC", "BUSD", "USD", "EUR", "GBP", "BTC", "ETH"}

// BinanceConnector streams the @ticker channel for the configured pairs.
type BinanceConnector struct {
	ref     *refdata.Registry
	sink    *Sink
	url     string
	delay   time.Duration
	streams []string // lowercased <symbol>@ticker subscribe params
	lifecycle
}

func NewBinanceConnector(ref *refdata.Registry, sink *Sink, delay time.Duration) *BinanceConnector {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &BinanceConnector{ref: ref, sink: sink, url: binanceWSURL, delay: delay}
}

func (c *BinanceConnector) Name() string {
	return "binance"
}

// Initialize resolves reference data into the subscribe list. An absent
// exchange row or an empty pair set is fatal: the connector could never
// persist normalized output.
func (c *BinanceConnector) Initialize(ctx context.Context) error {
	if _, ok := c.ref.Exchange(c.Name()); !ok {
		return errExchangeMissing(c.Name())
	}
	for _, symbol := range c.ref.Symbols() {
		pair, _ := c.ref.Pair(symbol)
		native := strings.ToLower(pair.Base + pair.Quote)
		c.streams = append(c.streams, native+"@ticker")
	}
	if len(c.streams) == 0 {
		return errNoPairs(c.Name())
	}
	return nil
}

func (c *BinanceConnector) Connect(ctx context.Context) {
	c.start(ctx, c.run)
}

func (c *BinanceConnector) Disconnect() {
	c.stop()
	log.Info().Str("exchange", c.Name()).Msg("connector stopped")
}

func (c *BinanceConnector) run(ctx context.Context) {
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
			Int("streams", len(c.streams)).
			Msg("connected, subscribing")

		if err := conn.WriteJSON(map[string]any{
			"method": "SUBSCRIBE",
			"params": c.streams,
			"id":     1,
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

func (c *BinanceConnector) readLoop(ctx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		// Unblocks ReadMessage when the connector is stopped.
		<-connCtx.Done()
		conn.Close()
	}()
	go keepAlive(connCtx, conn, c.Name())

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

// normalize converts one 24hrTicker frame into a canonical quote. Subscribe
// acks and other events report false without logging; malformed prices and
// unknown pairs are dropped with a warning.
func (c *BinanceConnector) normalize(data []byte) (models.Quote, bool) {
	var raw struct {
		EventType string `json:"e"`
		Symbol    string `json:"s"`
		Last      string `json:"c"`
		Bid       string `json:"b"`
		Ask       string `json:"a"`
		Volume    string `json:"v"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Warn().Err(err).Str("exchange", c.Name()).Msg("unparseable frame dropped")
		return models.Quote{}, false
	}
	if raw.EventType != "24hrTicker" {
		return models.Quote{}, false
	}

	symbol := binancePairSymbol(raw.Symbol)
	pair, ok := c.ref.Pair(symbol)
	if !ok {
		log.Warn().
			Str("exchange", c.Name()).
			Str("native_symbol", raw.Symbol).
			Str("resolved", symbol).
			Msg("unknown trading pair, message dropped")
		return models.Quote{}, false
	}

	last, err1 := strconv.ParseFloat(raw.Last, 64)
	bid, err2 := strconv.ParseFloat(raw.Bid, 64)
	ask, err3 := strconv.ParseFloat(raw.Ask, 64)
	volume, err4 := strconv.ParseFloat(raw.Volume, 64)
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

// binancePairSymbol rewrites a concatenated Binance symbol (BTCUSDT) to the
// canonical separated form (BTC_USDT) by stripping a known quote-currency
// suffix.
func binancePairSymbol(native string) string {
	for _, quote := range binanceQuoteSuffixes {
		if len(native) > len(quote) && strings.HasSuffix(native, quote) {
			return native[:len(native)-len(quote)] + "_" + quote
		}
	}
	return native
}

// keepAlive pings the connection on an interval so idle subscriptions are not
// closed server-side. Exits when the connection's context ends or a ping
// write fails.
func keepAlive(ctx context.Context, conn *websocket.Conn, name string) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("exchange", name).Msg("ping failed")
				return
			}
		}
	}
}
