// Package aggregator tracks one active (venue, symbol) selection at a time,
// keeps its most recent market-data snapshot, and runs order simulations
// against it.
package aggregator

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tradesim/internal/domain"
	"tradesim/internal/hub"
	"tradesim/internal/sim"
)

// defaultConnectTimeout is how long after Select the aggregator waits for a
// first update before reporting the connection as failed. The underlying
// adapter keeps retrying regardless.
const defaultConnectTimeout = 10 * time.Second

// Status describes the active selection for callers.
type Status struct {
	Venue     domain.Venue     `json:"venue"`
	Symbol    string           `json:"symbol"`
	State     domain.ConnState `json:"state"`
	Connected bool             `json:"connected"`
	Failed    bool             `json:"failed"`
}

// Aggregator binds the subscription hub and the simulator behind a single
// active market selection. Safe for concurrent use.
type Aggregator struct {
	hub       *hub.Hub
	sim       *sim.Simulator
	logger    *slog.Logger
	connectTO time.Duration
	now       func() time.Time

	mu          sync.Mutex
	venue       domain.Venue
	symbol      string
	unsubscribe func()
	generation  uint64
	selectedAt  time.Time
	snapshot    domain.MarketData
	hasSnapshot bool
}

// Options tunes an Aggregator; zero values take defaults.
type Options struct {
	ConnectTimeout time.Duration
	Now            func() time.Time
}

// New creates an Aggregator with no active selection.
func New(h *hub.Hub, s *sim.Simulator, logger *slog.Logger, opts Options) *Aggregator {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		hub:       h,
		sim:       s,
		logger:    logger.With(slog.String("component", "aggregator")),
		connectTO: opts.ConnectTimeout,
		now:       opts.Now,
	}
}

// Select switches the active market. The previous subscription is released
// and its snapshot discarded immediately, so updates from the old key can
// never surface after Select returns.
func (a *Aggregator) Select(venue domain.Venue, symbol string) error {
	if !venue.Valid() {
		return fmt.Errorf("aggregator: unknown venue %q: %w", venue, domain.ErrInvalidOrder)
	}
	if symbol == "" {
		return fmt.Errorf("aggregator: empty symbol: %w", domain.ErrInvalidOrder)
	}

	a.mu.Lock()
	prev := a.unsubscribe
	a.unsubscribe = nil
	a.generation++
	gen := a.generation
	a.venue = venue
	a.symbol = symbol
	a.snapshot = domain.MarketData{}
	a.hasSnapshot = false
	a.selectedAt = a.now()
	a.mu.Unlock()

	if prev != nil {
		prev()
	}

	unsub, err := a.hub.Subscribe(venue, symbol, func(md domain.MarketData) {
		a.onUpdate(gen, md)
	})
	if err != nil {
		return fmt.Errorf("aggregator: select %s %s: %w", venue, symbol, err)
	}

	a.mu.Lock()
	if a.generation != gen {
		// A newer Select raced in while we were subscribing.
		a.mu.Unlock()
		unsub()
		return nil
	}
	a.unsubscribe = unsub
	a.mu.Unlock()

	a.logger.Info("market selected",
		slog.String("venue", string(venue)),
		slog.String("symbol", symbol))
	return nil
}

// onUpdate stores a snapshot if it still belongs to the active generation.
func (a *Aggregator) onUpdate(gen uint64, md domain.MarketData) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generation != gen {
		return
	}
	a.snapshot = md
	a.hasSnapshot = true
}

// Snapshot returns the latest market data for the active selection and
// whether one has arrived yet.
func (a *Aggregator) Snapshot() (domain.MarketData, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot, a.hasSnapshot
}

// Simulate runs req against the latest active snapshot. The request must
// target the active venue and symbol; domain.ErrNoSnapshot is returned when
// no update has arrived yet. A failed simulation leaves the snapshot
// untouched.
func (a *Aggregator) Simulate(req domain.OrderRequest) (domain.SimulationResult, error) {
	a.mu.Lock()
	venue, symbol := a.venue, a.symbol
	md, ok := a.snapshot, a.hasSnapshot
	a.mu.Unlock()

	if req.Venue != venue || req.Symbol != symbol {
		return domain.SimulationResult{}, fmt.Errorf("aggregator: order targets %s %s but %s %s is active: %w",
			req.Venue, req.Symbol, venue, symbol, domain.ErrInvalidOrder)
	}
	if !ok {
		return domain.SimulationResult{}, fmt.Errorf("aggregator: %s %s: %w", venue, symbol, domain.ErrNoSnapshot)
	}
	return a.sim.Simulate(md, req)
}

// Status reports the active selection's connection state. Failed is set
// when no update arrived within the connect-timeout window after Select.
func (a *Aggregator) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := Status{Venue: a.venue, Symbol: a.symbol}
	if a.venue == "" {
		st.State = domain.StateDisconnected
		return st
	}
	st.State = a.hub.Status(a.venue, a.symbol)
	st.Connected = a.hasSnapshot && st.State == domain.StateSubscribed
	st.Failed = !a.hasSnapshot && a.now().Sub(a.selectedAt) > a.connectTO
	return st
}

// Close releases the active subscription, if any.
func (a *Aggregator) Close() error {
	a.mu.Lock()
	unsub := a.unsubscribe
	a.unsubscribe = nil
	a.generation++
	a.hasSnapshot = false
	a.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	return nil
}
