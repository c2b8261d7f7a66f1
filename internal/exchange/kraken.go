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

const krakenWSURL = "wss://ws.kraken.com"

// Kraken still reports a few assets under their legacy tickers.
var krakenAssetAliases = map[string]string{
	"XBT": "BTC",
	"XDG": "DOGE",
}

// KrakenConnector streams the v1 ticker subscription. Kraken's ticker frames
// are JSON arrays, not objects, and pair spellings use legacy asset aliases
// with a slash separator.
type KrakenConnector struct {
	ref   *refdata.Registry
	sink  *Sink
	url   string
	delay time.Duration
	pairs []string // slash-separated native pairs, e.g. XBT/USD
	lifecycle
}

func NewKrakenConnector(ref *refdata.Registry, sink *Sink, delay time.Duration) *KrakenConnector {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &KrakenConnector{ref: ref, sink: sink, url: krakenWSURL, delay: delay}
}

func (c *KrakenConnector) Name() string {
	return "kraken"
}

func (c *KrakenConnector) Initialize(ctx context.Context) error {
	if _, ok := c.ref.Exchange(c.Name()); !ok {
		return errExchangeMissing(c.Name())
	}
	for _, symbol := range c.ref.Symbols() {
		pair, _ := c.ref.Pair(symbol)
		c.pairs = append(c.pairs, krakenNativeAsset(pair.Base)+"/"+krakenNativeAsset(pair.Quote))
	}
	if len(c.pairs) == 0 {
		return errNoPairs(c.Name())
	}
	return nil
}

func (c *KrakenConnector) Connect(ctx context.Context) {
	c.start(ctx, c.run)
}

func (c *KrakenConnector) Disconnect() {
	c.stop()
	log.Info().Str("exchange", c.Name()).Msg("connector stopped")
}

func (c *KrakenConnector) run(ctx context.Context) {
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
			Int("pairs", len(c.pairs)).
			Msg("connected, subscribing")

		if err := conn.WriteJSON(map[string]any{
			"event":        "subscribe",
			"pair":         c.pairs,
			"subscription": map[string]string{"name": "ticker"},
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

func (c *KrakenConnector) readLoop(ctx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
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

// krakenTicker is the payload element of a ticker frame. Each field is an
// array of strings with the price first.
type krakenTicker struct {
	Ask    []string `json:"a"`
	Bid    []string `json:"b"`
	Last   []string `json:"c"`
	Volume []string `json:"v"` // [today, last 24h]
}

// normalize converts one ticker array frame into a canonical quote. Event
// objects (systemStatus, subscriptionStatus, heartbeat) report false without
// logging.
func (c *KrakenConnector) normalize(data []byte) (models.Quote, bool) {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "[") {
		var event struct {
			Event        string `json:"event"`
			Status       string `json:"status"`
			ErrorMessage string `json:"errorMessage"`
		}
		if err := json.Unmarshal(data, &event); err == nil && event.Status == "error" {
			log.Warn().
				Str("exchange", c.Name()).
				Str("event", event.Event).
				Str("error", event.ErrorMessage).
				Msg("error event from feed")
		}
		return models.Quote{}, false
	}

	// Ticker frames look like [channelID, {...}, "ticker", "XBT/USD"].
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 4 {
		log.Warn().Str("exchange", c.Name()).Msg("unparseable frame dropped")
		return models.Quote{}, false
	}

	var channel, native string
	if err := json.Unmarshal(frame[len(frame)-2], &channel); err != nil || channel != "ticker" {
		return models.Quote{}, false
	}
	if err := json.Unmarshal(frame[len(frame)-1], &native); err != nil {
		log.Warn().Str("exchange", c.Name()).Msg("unparseable frame dropped")
		return models.Quote{}, false
	}

	symbol := krakenPairSymbol(native)
	pair, ok := c.ref.Pair(symbol)
	if !ok {
		log.Warn().
			Str("exchange", c.Name()).
			Str("native_symbol", native).
			Str("resolved", symbol).
			Msg("unknown trading pair, message dropped")
		return models.Quote{}, false
	}

	var tick krakenTicker
	if err := json.Unmarshal(frame[1], &tick); err != nil {
		log.Warn().Err(err).Str("exchange", c.Name()).Str("pair", pair.Symbol).Msg("unparseable ticker payload dropped")
		return models.Quote{}, false
	}
	if len(tick.Ask) == 0 || len(tick.Bid) == 0 || len(tick.Last) == 0 || len(tick.Volume) < 2 {
		log.Warn().Str("exchange", c.Name()).Str("pair", pair.Symbol).Msg("incomplete ticker payload dropped")
		return models.Quote{}, false
	}

	ask, err1 := strconv.ParseFloat(tick.Ask[0], 64)
	bid, err2 := strconv.ParseFloat(tick.Bid[0], 64)
	last, err3 := strconv.ParseFloat(tick.Last[0], 64)
	volume, err4 := strconv.ParseFloat(tick.Volume[1], 64)
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

// krakenPairSymbol rewrites a native Kraken pair (XBT/USD) to the canonical
// form (BTC_USD), substituting legacy asset aliases.
func krakenPairSymbol(native string) string {
	base, quote, found := strings.Cut(native, "/")
	if !found {
		return native
	}
	if canonical, ok := krakenAssetAliases[base]; ok {
		base = canonical
	}
	if canonical, ok := krakenAssetAliases[quote]; ok {
		quote = canonical
	}
	return base + "_" + quote
}

// krakenNativeAsset is the inverse alias mapping used when subscribing.
func krakenNativeAsset(canonical string) string {
	for native, c := range krakenAssetAliases {
		if c == canonical {
			return native
		}
	}
	return canonical
}
