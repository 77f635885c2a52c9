package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"tradesim/internal/domain"
	"tradesim/internal/hub"
)

type memAdapter struct {
	publish func(domain.MarketData)
	state   domain.ConnState
}

func (m *memAdapter) Start()                  { m.state = domain.StateSubscribed }
func (m *memAdapter) Close() error            { m.state = domain.StateDisconnected; return nil }
func (m *memAdapter) State() domain.ConnState { return m.state }

type memFactory struct {
	mu       sync.Mutex
	adapters map[string]*memAdapter
}

func newMemFactory() *memFactory {
	return &memFactory{adapters: make(map[string]*memAdapter)}
}

func (f *memFactory) make(venue domain.Venue, symbol string, publish func(domain.MarketData)) (hub.Adapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := &memAdapter{publish: publish}
	f.adapters[domain.Key(venue, symbol)] = a
	return a, nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string]domain.MarketData
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string]domain.MarketData)}
}

func (c *memCache) Set(_ context.Context, md domain.MarketData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.data[domain.Key(md.Venue, md.Symbol)] = md
	return nil
}

func (c *memCache) Get(_ context.Context, venue domain.Venue, symbol string) (domain.MarketData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	md, ok := c.data[domain.Key(venue, symbol)]
	if !ok {
		return domain.MarketData{}, domain.ErrNotFound
	}
	return md, nil
}

type memBus struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{messages: make(map[string][][]byte)}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[channel] = append(b.messages[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func update(venue domain.Venue, symbol string, price float64) domain.MarketData {
	return domain.MarketData{
		Symbol: symbol,
		Venue:  venue,
		OrderBook: domain.OrderBook{
			Bids: []domain.PriceLevel{{Price: price - 1, Size: 1}},
			Asks: []domain.PriceLevel{{Price: price, Size: 1}},
		},
		Ticker: domain.Ticker{Symbol: symbol, LastPrice: price},
	}
}

func TestWatchStoresLatest(t *testing.T) {
	factory := newMemFactory()
	h := hub.New(factory.make, slog.Default())
	defer h.Close()
	cache := newMemCache()
	bus := newMemBus()

	svc := NewMarketService(h, cache, bus, slog.Default())
	defer svc.Close()

	ctx := context.Background()
	if err := svc.Watch(ctx, domain.VenueOKX, "BTC-USDT"); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	ad := factory.adapters[domain.Key(domain.VenueOKX, "BTC-USDT")]
	ad.publish(update(domain.VenueOKX, "BTC-USDT", 101))
	ad.publish(update(domain.VenueOKX, "BTC-USDT", 102))

	md, err := svc.Latest(ctx, domain.VenueOKX, "BTC-USDT")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if md.Ticker.LastPrice != 102 {
		t.Errorf("LastPrice = %v, want latest update 102", md.Ticker.LastPrice)
	}

	cached, err := cache.Get(ctx, domain.VenueOKX, "BTC-USDT")
	if err != nil {
		t.Fatalf("cache.Get() error = %v", err)
	}
	if cached.Ticker.LastPrice != 102 {
		t.Errorf("cached LastPrice = %v, want 102", cached.Ticker.LastPrice)
	}

	bus.mu.Lock()
	published := len(bus.messages["md:OKX:BTC-USDT"])
	bus.mu.Unlock()
	if published != 2 {
		t.Errorf("bus messages = %d, want 2", published)
	}
}

func TestLatestFallsBackToCache(t *testing.T) {
	factory := newMemFactory()
	h := hub.New(factory.make, slog.Default())
	defer h.Close()
	cache := newMemCache()
	ctx := context.Background()

	seeded := update(domain.VenueBybit, "BTCUSDT", 99)
	if err := cache.Set(ctx, seeded); err != nil {
		t.Fatal(err)
	}

	svc := NewMarketService(h, cache, nil, slog.Default())
	defer svc.Close()

	md, err := svc.Latest(ctx, domain.VenueBybit, "BTCUSDT")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if md.Ticker.LastPrice != 99 {
		t.Errorf("LastPrice = %v, want cached 99", md.Ticker.LastPrice)
	}
}

func TestLatestNoSnapshot(t *testing.T) {
	h := hub.New(newMemFactory().make, slog.Default())
	defer h.Close()

	svc := NewMarketService(h, nil, nil, slog.Default())
	defer svc.Close()

	_, err := svc.Latest(context.Background(), domain.VenueDeribit, "BTC-PERPETUAL")
	if !errors.Is(err, domain.ErrNoSnapshot) {
		t.Errorf("Latest() error = %v, want ErrNoSnapshot", err)
	}
}

func TestCacheFailureDoesNotBreakUpdates(t *testing.T) {
	factory := newMemFactory()
	h := hub.New(factory.make, slog.Default())
	defer h.Close()
	cache := newMemCache()
	cache.err = errors.New("redis down")

	svc := NewMarketService(h, cache, nil, slog.Default())
	defer svc.Close()

	ctx := context.Background()
	if err := svc.Watch(ctx, domain.VenueOKX, "BTC-USDT"); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	factory.adapters[domain.Key(domain.VenueOKX, "BTC-USDT")].publish(update(domain.VenueOKX, "BTC-USDT", 101))

	md, err := svc.Latest(ctx, domain.VenueOKX, "BTC-USDT")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if md.Ticker.LastPrice != 101 {
		t.Errorf("LastPrice = %v, want 101 despite cache failure", md.Ticker.LastPrice)
	}
}
