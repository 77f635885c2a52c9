// Package hub de-duplicates venue adapters and fans normalized market-data
// updates out to subscribers. One adapter exists per (venue, symbol) key no
// matter how many callbacks are registered for it; the adapter is created on
// the first subscription and torn down when the last one is released.
package hub

import (
	"fmt"
	"log/slog"
	"sync"

	"tradesim/internal/domain"
)

// Adapter is the slice of the venue adapter the hub manages.
type Adapter interface {
	Start()
	Close() error
	State() domain.ConnState
}

// Callback receives every update for a subscribed key, exactly once per
// adapter update, synchronously with respect to that update.
type Callback func(domain.MarketData)

// Factory builds the adapter for a key. publish must be invoked by the
// adapter for every normalized update; the hub routes it to subscribers.
type Factory func(venue domain.Venue, symbol string, publish func(domain.MarketData)) (Adapter, error)

// entry tracks one live adapter and its registered callbacks.
type entry struct {
	adapter Adapter
	subs    map[int]Callback
	nextID  int
}

// Hub is the subscription registry. It is the only structure shared across
// adapters; all registry mutation is serialized, while fan-out runs on a
// copy of the callback set outside the lock.
type Hub struct {
	newAdapter Factory
	logger     *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// New creates a Hub that builds adapters through factory.
func New(factory Factory, logger *slog.Logger) *Hub {
	return &Hub{
		newAdapter: factory,
		logger:     logger.With(slog.String("component", "hub")),
		entries:    make(map[string]*entry),
	}
}

// Subscribe registers cb for the (venue, symbol) key and returns an
// unsubscribe handle. The underlying adapter is created and started lazily
// on the first subscription for the key. The handle is idempotent and safe
// to call at any time, including while the adapter is mid-reconnect.
func (h *Hub) Subscribe(venue domain.Venue, symbol string, cb Callback) (func(), error) {
	if !venue.Valid() {
		return nil, fmt.Errorf("hub: unknown venue %q: %w", venue, domain.ErrInvalidOrder)
	}
	key := domain.Key(venue, symbol)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, fmt.Errorf("hub: %w", domain.ErrClosed)
	}

	e, ok := h.entries[key]
	if !ok {
		adapter, err := h.newAdapter(venue, symbol, func(md domain.MarketData) {
			h.dispatch(key, md)
		})
		if err != nil {
			h.mu.Unlock()
			return nil, fmt.Errorf("hub: create adapter for %s: %w", key, err)
		}
		e = &entry{adapter: adapter, subs: make(map[int]Callback)}
		h.entries[key] = e
		adapter.Start()
		h.logger.Info("adapter created",
			slog.String("venue", string(venue)),
			slog.String("symbol", symbol),
		)
	}

	id := e.nextID
	e.nextID++
	e.subs[id] = cb
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(key, id) })
	}, nil
}

// Status returns the connection state of the adapter for a key, or
// StateDisconnected when no adapter exists.
func (h *Hub) Status(venue domain.Venue, symbol string) domain.ConnState {
	h.mu.Lock()
	e, ok := h.entries[domain.Key(venue, symbol)]
	h.mu.Unlock()

	if !ok {
		return domain.StateDisconnected
	}
	return e.adapter.State()
}

// Close tears down every adapter and rejects further subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	adapters := make([]Adapter, 0, len(h.entries))
	for _, e := range h.entries {
		adapters = append(adapters, e.adapter)
	}
	h.entries = make(map[string]*entry)
	h.mu.Unlock()

	for _, a := range adapters {
		_ = a.Close()
	}
}

// dispatch fans one update out to the key's subscribers. The callback set is
// copied under the lock; invocation happens outside it, in registration
// order per the adapter's delivery goroutine.
func (h *Hub) dispatch(key string, md domain.MarketData) {
	h.mu.Lock()
	e, ok := h.entries[key]
	if !ok {
		h.mu.Unlock()
		return
	}
	cbs := make([]Callback, 0, len(e.subs))
	for _, cb := range e.subs {
		cbs = append(cbs, cb)
	}
	h.mu.Unlock()

	for _, cb := range cbs {
		cb(md)
	}
}

// unsubscribe removes one callback; the last removal closes the adapter so
// it stops reconnecting and releases its connection.
func (h *Hub) unsubscribe(key string, id int) {
	h.mu.Lock()
	e, ok := h.entries[key]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(e.subs, id)
	last := len(e.subs) == 0
	if last {
		delete(h.entries, key)
	}
	h.mu.Unlock()

	if last {
		_ = e.adapter.Close()
		h.logger.Info("adapter released", slog.String("key", key))
	}
}
