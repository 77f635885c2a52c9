// Package service coordinates the subscription hub with the optional cache
// and signal-bus layers: every update for the configured markets lands in an
// in-memory latest-value map, is mirrored to the snapshot cache, and is
// published on the bus for dashboard consumers.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"tradesim/internal/domain"
	"tradesim/internal/hub"
)

// MarketService keeps the latest MarketData per configured market. It is the
// read path behind the HTTP API's market endpoints.
type MarketService struct {
	hub    *hub.Hub
	cache  domain.SnapshotCache // optional
	bus    domain.SignalBus     // optional
	logger *slog.Logger

	mu     sync.RWMutex
	latest map[string]domain.MarketData
	unsubs []func()
}

// NewMarketService creates a MarketService. cache and bus may be nil; the
// in-memory map always works.
func NewMarketService(h *hub.Hub, cache domain.SnapshotCache, bus domain.SignalBus, logger *slog.Logger) *MarketService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MarketService{
		hub:    h,
		cache:  cache,
		bus:    bus,
		logger: logger.With(slog.String("component", "market_service")),
		latest: make(map[string]domain.MarketData),
	}
}

// Watch subscribes the service to a market. Updates flow until Close.
func (s *MarketService) Watch(ctx context.Context, venue domain.Venue, symbol string) error {
	unsub, err := s.hub.Subscribe(venue, symbol, func(md domain.MarketData) {
		s.handleUpdate(ctx, md)
	})
	if err != nil {
		return fmt.Errorf("market_service: watch %s %s: %w", venue, symbol, err)
	}

	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsub)
	s.mu.Unlock()

	s.logger.Info("watching market",
		slog.String("venue", string(venue)),
		slog.String("symbol", symbol))
	return nil
}

// handleUpdate stores the snapshot in memory, mirrors it to the cache, and
// publishes it on the bus. Cache and bus failures are logged, never fatal.
func (s *MarketService) handleUpdate(ctx context.Context, md domain.MarketData) {
	key := domain.Key(md.Venue, md.Symbol)

	s.mu.Lock()
	s.latest[key] = md
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Set(ctx, md); err != nil {
			s.logger.Warn("snapshot cache write failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
	}

	if s.bus != nil {
		payload, err := json.Marshal(md)
		if err != nil {
			s.logger.Warn("marshal update failed", slog.String("key", key))
			return
		}
		if err := s.bus.Publish(ctx, "md:"+string(md.Venue)+":"+md.Symbol, payload); err != nil {
			s.logger.Warn("bus publish failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
	}
}

// Latest returns the most recent snapshot for a market. It consults the
// in-memory map first and falls back to the snapshot cache, so a restarted
// process can serve the last known state before its feeds resubscribe.
func (s *MarketService) Latest(ctx context.Context, venue domain.Venue, symbol string) (domain.MarketData, error) {
	s.mu.RLock()
	md, ok := s.latest[domain.Key(venue, symbol)]
	s.mu.RUnlock()
	if ok {
		return md, nil
	}

	if s.cache != nil {
		md, err := s.cache.Get(ctx, venue, symbol)
		if err == nil {
			return md, nil
		}
	}
	return domain.MarketData{}, fmt.Errorf("market_service: %s %s: %w", venue, symbol, domain.ErrNoSnapshot)
}

// Status reports the connection state for a market.
func (s *MarketService) Status(venue domain.Venue, symbol string) domain.ConnState {
	return s.hub.Status(venue, symbol)
}

// Close releases every watch subscription.
func (s *MarketService) Close() error {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	return nil
}
