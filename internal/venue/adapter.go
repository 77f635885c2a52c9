package venue

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradesim/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// defaultHandshakeTimeout bounds the WebSocket dial.
	defaultHandshakeTimeout = 10 * time.Second

	// defaultReconnectBackoff is the fixed delay between reconnect attempts.
	defaultReconnectBackoff = 5 * time.Second
)

// PublishFunc receives every normalized market-data update an adapter emits.
type PublishFunc func(domain.MarketData)

// Options tunes an Adapter. The zero value uses the codec's endpoint, the
// default timeouts, and a time-seeded randomness source.
type Options struct {
	// URL overrides the codec's WebSocket endpoint.
	URL string
	// HandshakeTimeout bounds the connection attempt (default 10s).
	HandshakeTimeout time.Duration
	// ReconnectBackoff is the fixed delay before each reconnect attempt
	// (default 5s). Reconnection retries indefinitely until Close.
	ReconnectBackoff time.Duration
	// Rand seeds ticker synthesis; pass a fixed-seed source in tests.
	Rand *rand.Rand
	// OnState, when set, is called on every connection state transition.
	OnState func(domain.ConnState)
}

// Adapter owns a single streaming connection for one (venue, symbol) pair.
// It translates wire frames through its Codec, publishes normalized
// MarketData, and reconnects on its own until closed:
//
//	Disconnected → Connecting → Subscribed ⇄ Reconnecting → Disconnected
//
// Adapters share no mutable state with each other; a malformed payload from
// one venue can never affect another venue's adapter.
type Adapter struct {
	codec   Codec
	symbol  string
	url     string
	dialTO  time.Duration
	backoff time.Duration
	publish PublishFunc
	onState func(domain.ConnState)
	logger  *slog.Logger
	rng     *rand.Rand

	mu         sync.Mutex
	conn       *websocket.Conn
	state      domain.ConnState
	lastTicker *domain.Ticker
	closed     bool

	// done is closed when the adapter is shut down; it cancels any pending
	// reconnect delay.
	done chan struct{}
}

// New creates an Adapter for the given codec and symbol. Updates are
// delivered synchronously to publish from the adapter's read goroutine, in
// the order frames were parsed.
func New(codec Codec, symbol string, publish PublishFunc, logger *slog.Logger, opts Options) *Adapter {
	url := opts.URL
	if url == "" {
		url = codec.WSURL()
	}
	dialTO := opts.HandshakeTimeout
	if dialTO <= 0 {
		dialTO = defaultHandshakeTimeout
	}
	backoff := opts.ReconnectBackoff
	if backoff <= 0 {
		backoff = defaultReconnectBackoff
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Adapter{
		codec:   codec,
		symbol:  symbol,
		url:     url,
		dialTO:  dialTO,
		backoff: backoff,
		publish: publish,
		onState: opts.OnState,
		logger: logger.With(
			slog.String("component", "adapter"),
			slog.String("venue", string(codec.Venue())),
			slog.String("symbol", symbol),
		),
		rng:   rng,
		state: domain.StateDisconnected,
		done:  make(chan struct{}),
	}
}

// Start launches the adapter's connection loop in its own goroutine.
func (a *Adapter) Start() {
	go a.run()
}

// Close tears down the connection and stops all reconnection attempts. It is
// safe to call at any time, including mid-backoff, and is idempotent.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.done)
	conn := a.conn
	a.conn = nil
	a.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		_ = conn.Close()
	}

	a.setState(domain.StateDisconnected)
	return nil
}

// State returns the current connection state.
func (a *Adapter) State() domain.ConnState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// run is the adapter's connect/read/reconnect loop. Reconnection is
// unconditional with a fixed, cancellable back-off; only Close stops it.
func (a *Adapter) run() {
	for {
		if a.isClosed() {
			return
		}

		a.setState(domain.StateConnecting)
		conn, err := a.connect()
		if err != nil {
			a.logger.Warn("connect failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", a.backoff),
			)
			a.setState(domain.StateReconnecting)
			if !a.sleep(a.backoff) {
				return
			}
			continue
		}

		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			conn.Close()
			return
		}
		a.conn = conn
		a.mu.Unlock()

		a.setState(domain.StateSubscribed)
		a.logger.Info("subscribed")

		go a.pingLoop(conn)
		a.readLoop(conn)

		a.mu.Lock()
		a.conn = nil
		a.mu.Unlock()
		conn.Close()

		if a.isClosed() {
			return
		}
		a.logger.Warn("connection lost", slog.Duration("retry_in", a.backoff))
		a.setState(domain.StateReconnecting)
		if !a.sleep(a.backoff) {
			return
		}
	}
}

// connect dials the venue endpoint and sends the codec's subscribe frames.
func (a *Adapter) connect() (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: a.dialTO}

	ctx, cancel := context.WithTimeout(context.Background(), a.dialTO)
	defer cancel()

	conn, _, err := dialer.DialContext(ctx, a.url, nil)
	if err != nil {
		return nil, fmt.Errorf("venue: dial %s: %w", a.url, err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for _, payload := range a.codec.SubscribePayloads(a.symbol) {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			return nil, fmt.Errorf("venue: subscribe %s: %w", a.codec.Venue(), err)
		}
	}

	return conn, nil
}

// readLoop reads frames until the connection fails. Parse failures are
// logged and dropped; they never terminate the loop.
func (a *Adapter) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-a.done:
			default:
				a.logger.Debug("read failed", slog.String("error", err.Error()))
			}
			return
		}
		a.handleFrame(message)
	}
}

// pingLoop sends periodic pings to keep the connection alive. It exits when
// the adapter shuts down or the connection is no longer writable.
func (a *Adapter) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame parses one raw frame and publishes a fresh MarketData when the
// frame carried a book update. Ticker frames only refresh the cached ticker;
// the next book update carries it out.
func (a *Adapter) handleFrame(raw []byte) {
	upd, err := a.codec.Parse(raw)
	if err != nil {
		a.logger.Debug("dropping malformed frame",
			slog.String("error", err.Error()),
			slog.Int("frame_len", len(raw)),
		)
		return
	}
	if upd.Empty() {
		return
	}

	if upd.Ticker != nil {
		t := *upd.Ticker
		t.Symbol = a.symbol
		a.mu.Lock()
		a.lastTicker = &t
		a.mu.Unlock()
	}

	if upd.Book == nil {
		return
	}

	now := time.Now().UnixMilli()
	book := *upd.Book
	if book.Timestamp == 0 {
		book.Timestamp = now
	}

	a.mu.Lock()
	cached := a.lastTicker
	a.mu.Unlock()

	var ticker domain.Ticker
	if cached != nil {
		ticker = *cached
	} else {
		ticker = a.synthTicker(book.BestAsk())
	}

	a.publish(domain.MarketData{
		Symbol:     a.symbol,
		Venue:      a.codec.Venue(),
		OrderBook:  book,
		Ticker:     ticker,
		LastUpdate: now,
	})
}

// synthTicker fabricates a placeholder ticker from the latest trade-side
// price using bounded random deviations. It stands in until a real ticker
// frame arrives and must not be treated as an exchange statistic.
func (a *Adapter) synthTicker(lastPrice float64) domain.Ticker {
	var change, changePct float64
	if lastPrice > 0 {
		change = (a.rng.Float64() - 0.5) * lastPrice * 0.05
		changePct = change / lastPrice * 100
	}
	return domain.Ticker{
		Symbol:           a.symbol,
		LastPrice:        lastPrice,
		Change24h:        change,
		ChangePercent24h: changePct,
		Volume24h:        a.rng.Float64() * 1_000_000,
		High24h:          lastPrice * (1 + a.rng.Float64()*0.05),
		Low24h:           lastPrice * (1 - a.rng.Float64()*0.05),
	}
}

// sleep waits for d or until the adapter is closed. It returns false when
// the adapter was closed during the wait.
func (a *Adapter) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-a.done:
		return false
	case <-timer.C:
		return true
	}
}

func (a *Adapter) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// setState records a state transition and fires the OnState hook when the
// state actually changed.
func (a *Adapter) setState(s domain.ConnState) {
	a.mu.Lock()
	if a.closed && s != domain.StateDisconnected {
		a.mu.Unlock()
		return
	}
	changed := a.state != s
	a.state = s
	hook := a.onState
	a.mu.Unlock()

	if changed && hook != nil {
		hook(s)
	}
}
