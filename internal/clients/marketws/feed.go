// Package marketws maintains a real-time price cache from the CLOB market
// WebSocket channel. Prices arrive per token; consumers fall back to REST
// when an entry is missing or stale.
package marketws

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second

	baseReconnectDelay   = 5 * time.Second
	maxReconnectDelay    = 5 * time.Minute
	maxReconnectAttempts = 10
)

// PriceFeed holds a per-token price cache fed by the market channel.
type PriceFeed struct {
	url        string
	httpClient *http.Client
	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	mu         sync.RWMutex

	log        zerolog.Logger
	staleAfter time.Duration

	connected    bool
	reconnecting bool
	stopChan     chan struct{}
	stopped      bool

	// Tokens to resubscribe after a reconnect
	subsMu sync.Mutex
	subs   map[string]bool

	cacheMu sync.RWMutex
	prices  map[string]pricePoint
}

type pricePoint struct {
	price float64
	at    time.Time
}

// createHTTP1Client creates an HTTP client that forces HTTP/1.1.
// The endpoint sits behind a CDN that negotiates HTTP/2 via TLS ALPN, but
// the WebSocket upgrade handshake requires HTTP/1.1.
func createHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig: &tls.Config{
				NextProtos: []string{"http/1.1"},
			},
			ForceAttemptHTTP2: false,
		},
	}
}

// NewPriceFeed creates a price feed client for the given WebSocket URL.
// Prices older than staleAfter are not served.
func NewPriceFeed(url string, staleAfter time.Duration, log zerolog.Logger) *PriceFeed {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Second
	}
	return &PriceFeed{
		url:        url,
		httpClient: createHTTP1Client(),
		log:        log.With().Str("component", "market_price_feed").Logger(),
		staleAfter: staleAfter,
		stopChan:   make(chan struct{}),
		subs:       make(map[string]bool),
		prices:     make(map[string]pricePoint),
	}
}

// Start connects and begins the read loop. A failed initial connection is
// not fatal: the reconnect loop keeps trying in the background and callers
// fall back to REST prices meanwhile.
func (f *PriceFeed) Start() error {
	f.log.Info().Msg("Starting market price feed")

	if err := f.Connect(); err != nil {
		f.log.Warn().Err(err).Msg("Initial WebSocket connection failed, will retry in background")
		go f.reconnectLoop()
		return err
	}

	f.mu.RLock()
	ctx := f.connCtx
	f.mu.RUnlock()
	go f.readMessages(ctx)

	f.log.Info().Msg("Market price feed started")
	return nil
}

// Stop gracefully shuts down the feed.
func (f *PriceFeed) Stop() error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return nil
	}
	f.stopped = true
	f.mu.Unlock()

	f.log.Info().Msg("Stopping market price feed")
	close(f.stopChan)
	return f.Disconnect()
}

// Connect dials the WebSocket endpoint.
func (f *PriceFeed) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.log.Info().Str("url", f.url).Msg("Connecting to market WebSocket")

	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, f.url, &websocket.DialOptions{
		HTTPClient: f.httpClient,
	})
	if err != nil {
		return fmt.Errorf("failed to dial WebSocket: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	f.conn = conn
	f.connCtx = connCtx
	f.cancelFunc = connCancel
	f.connected = true

	f.log.Info().Msg("Connected to market WebSocket")
	return nil
}

// Disconnect closes the WebSocket connection.
func (f *PriceFeed) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		return nil
	}

	if f.cancelFunc != nil {
		f.cancelFunc()
		f.cancelFunc = nil
	}

	err := f.conn.Close(websocket.StatusNormalClosure, "")
	f.conn = nil
	f.connCtx = nil
	f.connected = false

	if err != nil {
		return fmt.Errorf("error closing WebSocket: %w", err)
	}
	return nil
}

// Subscribe registers tokens for price updates. Tokens survive reconnects;
// subscribing while disconnected only records them for the next session.
func (f *PriceFeed) Subscribe(tokenIDs ...string) error {
	fresh := make([]string, 0, len(tokenIDs))
	f.subsMu.Lock()
	for _, id := range tokenIDs {
		if id == "" || f.subs[id] {
			continue
		}
		f.subs[id] = true
		fresh = append(fresh, id)
	}
	f.subsMu.Unlock()

	if len(fresh) == 0 {
		return nil
	}

	f.mu.RLock()
	conn := f.conn
	ctx := f.connCtx
	connected := f.connected
	f.mu.RUnlock()

	if !connected || conn == nil {
		return nil
	}
	return f.sendSubscribe(ctx, conn, fresh)
}

func (f *PriceFeed) sendSubscribe(ctx context.Context, conn *websocket.Conn, tokenIDs []string) error {
	msg := map[string]interface{}{
		"type":       "subscribe",
		"channel":    "market",
		"assets_ids": tokenIDs,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription message: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send subscription message: %w", err)
	}

	f.log.Debug().Int("tokens", len(tokenIDs)).Msg("Subscribed to market channel")
	return nil
}

// resubscribe replays all recorded subscriptions on a fresh connection.
func (f *PriceFeed) resubscribe() {
	f.subsMu.Lock()
	tokens := make([]string, 0, len(f.subs))
	for id := range f.subs {
		tokens = append(tokens, id)
	}
	f.subsMu.Unlock()

	if len(tokens) == 0 {
		return
	}

	f.mu.RLock()
	conn := f.conn
	ctx := f.connCtx
	f.mu.RUnlock()
	if conn == nil {
		return
	}

	if err := f.sendSubscribe(ctx, conn, tokens); err != nil {
		f.log.Error().Err(err).Msg("Failed to resubscribe after reconnect")
	}
}

func (f *PriceFeed) readMessages(ctx context.Context) {
	defer func() {
		f.log.Info().Msg("Read loop stopped")
		f.mu.RLock()
		stopped := f.stopped
		f.mu.RUnlock()
		if !stopped {
			go f.reconnectLoop()
		}
	}()

	for {
		select {
		case <-f.stopChan:
			return
		case <-ctx.Done():
			f.log.Debug().Msg("Read loop context cancelled")
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()

		if conn == nil {
			f.log.Warn().Msg("Connection is nil, stopping read loop")
			return
		}

		msgType, message, err := conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				f.log.Info().Int("status", int(closeStatus)).Msg("WebSocket closed normally")
			} else if ctx.Err() != nil {
				f.log.Debug().Msg("Read cancelled by context")
			} else {
				f.log.Error().Err(err).Msg("Unexpected WebSocket read error")
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		if err := f.handleMessage(message); err != nil {
			f.log.Error().Err(err).Str("message", string(message)).Msg("Failed to handle WebSocket message")
			// Keep reading despite parse errors
		}
	}
}

// wsEvent is a market channel event. The server tags events with either
// event_type or type depending on the message class, and sends prices as
// decimal strings.
type wsEvent struct {
	EventType string `json:"event_type"`
	Type      string `json:"type"`
	AssetID   string `json:"asset_id"`
	Price     string `json:"price"`
}

func (e *wsEvent) kind() string {
	if e.EventType != "" {
		return e.EventType
	}
	return e.Type
}

func (f *PriceFeed) handleMessage(message []byte) error {
	// Events arrive standalone or batched in an array
	if len(message) > 0 && message[0] == '[' {
		var events []wsEvent
		if err := json.Unmarshal(message, &events); err != nil {
			return fmt.Errorf("failed to parse event batch: %w", err)
		}
		for i := range events {
			f.applyEvent(&events[i])
		}
		return nil
	}

	var event wsEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return fmt.Errorf("failed to parse event: %w", err)
	}
	f.applyEvent(&event)
	return nil
}

func (f *PriceFeed) applyEvent(event *wsEvent) {
	if event.kind() != "price_change" || event.AssetID == "" || event.Price == "" {
		return
	}

	price, err := strconv.ParseFloat(event.Price, 64)
	if err != nil {
		f.log.Warn().Str("asset_id", event.AssetID).Str("price", event.Price).Msg("Unparseable price update")
		return
	}

	f.cacheMu.Lock()
	f.prices[event.AssetID] = pricePoint{price: price, at: time.Now()}
	f.cacheMu.Unlock()
}

func (f *PriceFeed) reconnectLoop() {
	f.mu.Lock()
	if f.reconnecting || f.stopped {
		f.mu.Unlock()
		return
	}
	f.reconnecting = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.reconnecting = false
		f.mu.Unlock()
	}()

	attempt := 0
	for {
		select {
		case <-f.stopChan:
			f.log.Info().Msg("Reconnection loop stopped")
			return
		default:
		}

		f.mu.RLock()
		stopped := f.stopped
		f.mu.RUnlock()
		if stopped {
			return
		}

		attempt++
		delay := f.calculateBackoff(attempt)

		if attempt <= maxReconnectAttempts {
			f.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Attempting to reconnect to WebSocket")
		} else {
			f.log.Warn().Int("attempt", attempt).Dur("delay", delay).Msg("Reconnection attempt (exceeded max attempts, will keep retrying)")
		}

		select {
		case <-time.After(delay):
		case <-f.stopChan:
			return
		}

		if err := f.Connect(); err != nil {
			f.log.Error().Err(err).Int("attempt", attempt).Msg("Reconnection failed")
			continue
		}

		f.log.Info().Int("attempt", attempt).Msg("Successfully reconnected to WebSocket")
		attempt = 0

		f.resubscribe()

		f.mu.RLock()
		ctx := f.connCtx
		f.mu.RUnlock()
		go f.readMessages(ctx)
		return
	}
}

func (f *PriceFeed) calculateBackoff(attempt int) time.Duration {
	delay := float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxReconnectDelay) {
		delay = float64(maxReconnectDelay)
	}
	return time.Duration(delay)
}

// Price returns the cached price for a token when fresh. The second return
// is false for unknown tokens and entries older than the staleness window.
func (f *PriceFeed) Price(tokenID string) (float64, bool) {
	if tokenID == "" {
		return 0, false
	}

	f.cacheMu.RLock()
	defer f.cacheMu.RUnlock()

	entry, exists := f.prices[tokenID]
	if !exists {
		return 0, false
	}
	if time.Since(entry.at) > f.staleAfter {
		return 0, false
	}
	return entry.price, true
}

// IsConnected returns current connection status.
func (f *PriceFeed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}
