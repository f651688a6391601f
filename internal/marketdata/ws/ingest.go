// Package ws provides the Binance WebSocket ingest for raw trade ticks.
// It subscribes to the combined trade stream for the configured symbols and
// pushes normalized model.Tick values into the pipeline.
//
// Combined stream messages arrive as:
//
//	{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","p":"64123.50","q":"0.012","T":1709290800123,...}}
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"statarb-systemv1/internal/model"
)

const defaultBaseURL = "wss://stream.binance.com:9443/stream"

// Config holds configuration for the Binance trade-stream ingest.
type Config struct {
	// BaseURL of the combined stream endpoint. Defaults to the Binance
	// production endpoint if empty.
	BaseURL string

	// Symbols to subscribe, e.g. ["BTCUSDT", "ETHUSDT"].
	Symbols []string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// streamURL builds the combined-stream URL:
// {base}?streams=btcusdt@trade/ethusdt@trade
func (c *Config) streamURL() string {
	streams := make([]string, len(c.Symbols))
	for i, s := range c.Symbols {
		streams[i] = strings.ToLower(s) + "@trade"
	}
	return c.BaseURL + "?streams=" + strings.Join(streams, "/")
}

// combinedMsg is the combined-stream envelope.
type combinedMsg struct {
	Stream string    `json:"stream"`
	Data   tradeData `json:"data"`
}

// tradeData is the trade event payload. Binance sends price and quantity as
// decimal strings.
type tradeData struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Qty       string `json:"q"`
	TradeTS   int64  `json:"T"` // epoch milliseconds
}

// Ingest connects to the Binance combined trade stream and pushes model.Tick
// values into tickCh.
type Ingest struct {
	cfg Config

	// Optional hooks for metrics.
	OnReconnect func()
	OnMalformed func()
}

// New creates a new Ingest. Returns an error if the URL is unparseable or no
// symbols were given.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("ws ingest: no symbols to subscribe")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, err
	}
	return &Ingest{cfg: cfg}, nil
}

// Start connects to the stream and pushes ticks into tickCh.
// Blocks until ctx is cancelled. Reconnects automatically on disconnect.
func (ing *Ingest) Start(ctx context.Context, tickCh chan<- model.Tick) error {
	delay := ing.cfg.ReconnectDelay

	for {
		// Check context before each attempt
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := ing.runOnce(ctx, tickCh)
		if err == nil {
			// Context cancelled cleanly
			return nil
		}

		log.Printf("[ws] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		// Exponential backoff
		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or ctx cancel.
func (ing *Ingest) runOnce(ctx context.Context, tickCh chan<- model.Tick) error {
	wsURL := ing.cfg.streamURL()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[ws] connected to %s (%d streams)", ing.cfg.BaseURL, len(ing.cfg.Symbols))

	// Async context watcher — closes the connection when ctx is cancelled.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			// Check if it's a context cancellation
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		tick, ok := parseTick(raw)
		if !ok {
			if ing.OnMalformed != nil {
				ing.OnMalformed()
			}
			continue
		}

		select {
		case tickCh <- tick:
		default:
			log.Println("[ws] tickCh full, dropping tick")
		}
	}
}

// parseTick converts a raw combined-stream message into a model.Tick.
func parseTick(raw []byte) (model.Tick, bool) {
	var msg combinedMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("[ws] parse error: %v (raw: %s)", err, truncate(raw, 200))
		return model.Tick{}, false
	}
	d := msg.Data
	if d.EventType != "trade" || d.Symbol == "" {
		return model.Tick{}, false
	}

	price, err := strconv.ParseFloat(d.Price, 64)
	if err != nil || price <= 0 {
		log.Printf("[ws] bad price %q for %s", d.Price, d.Symbol)
		return model.Tick{}, false
	}
	qty, err := strconv.ParseFloat(d.Qty, 64)
	if err != nil {
		qty = 0
	}

	ts := time.Now().UTC()
	if d.TradeTS > 0 {
		ts = time.Unix(0, d.TradeTS*int64(time.Millisecond)).UTC()
	}

	return model.Tick{
		Symbol: d.Symbol,
		TS:     ts,
		Price:  price,
		Qty:    qty,
	}, true
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
