package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"tradesim/internal/aggregator"
	"tradesim/internal/cache/redis"
	"tradesim/internal/config"
	"tradesim/internal/domain"
	"tradesim/internal/hub"
	"tradesim/internal/notify"
	"tradesim/internal/server/ws"
	"tradesim/internal/service"
	"tradesim/internal/sim"
	"tradesim/internal/venue"
	"tradesim/internal/venue/bybit"
	"tradesim/internal/venue/deribit"
	"tradesim/internal/venue/okx"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Hub        *hub.Hub
	Markets    *service.MarketService
	Aggregator *aggregator.Aggregator
	Simulator  *sim.Simulator
	Notifier   *notify.Notifier

	// Optional; nil when redis is disabled.
	SnapshotCache domain.SnapshotCache
	SignalBus     domain.SignalBus
	WSHub         *ws.Hub
}

// Wire constructs concrete dependency implementations from the configuration
// and returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.New(senders, cfg.Notify.Events, logger)

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })

		deps.SnapshotCache = redis.NewSnapshotCache(client)
		deps.SignalBus = redis.NewSignalBus(client)
		deps.WSHub = ws.NewHub(deps.SignalBus, logger)
	}

	// --- Hub over the venue adapters ---
	deps.Hub = hub.New(adapterFactory(cfg, deps.Notifier, logger), logger)
	closers = append(closers, deps.Hub.Close)

	// --- Services ---
	deps.Markets = service.NewMarketService(deps.Hub, deps.SnapshotCache, deps.SignalBus, logger)
	closers = append(closers, func() { _ = deps.Markets.Close() })

	deps.Simulator = sim.New(nil)
	deps.Aggregator = aggregator.New(deps.Hub, deps.Simulator, logger, aggregator.Options{
		ConnectTimeout: cfg.Feed.ConnectTimeout.Duration,
	})
	closers = append(closers, func() { _ = deps.Aggregator.Close() })

	return deps, cleanup, nil
}

// adapterFactory builds the hub factory over the venue codecs, applying the
// configured endpoints and feed tuning, and reporting connection losses and
// recoveries to the notifier.
func adapterFactory(cfg *config.Config, notifier *notify.Notifier, logger *slog.Logger) hub.Factory {
	codecs := map[domain.Venue]venue.Codec{
		domain.VenueOKX:     okx.Codec{},
		domain.VenueBybit:   bybit.Codec{},
		domain.VenueDeribit: deribit.Codec{},
	}

	return func(v domain.Venue, symbol string, publish func(domain.MarketData)) (hub.Adapter, error) {
		codec, ok := codecs[v]
		if !ok {
			return nil, fmt.Errorf("no codec for venue %q", v)
		}
		vc := cfg.Venues.Venue(v)
		if !vc.Enabled {
			return nil, fmt.Errorf("venue %q is disabled", v)
		}

		// The hook fires from both the adapter's run loop and Close, so the
		// previous state needs its own lock.
		var mu sync.Mutex
		var prev domain.ConnState
		onState := func(st domain.ConnState) {
			mu.Lock()
			last := prev
			prev = st
			mu.Unlock()

			if st == domain.StateReconnecting {
				notifier.VenueDisconnected(v, symbol)
			}
			if st == domain.StateSubscribed && last == domain.StateReconnecting {
				notifier.VenueReconnected(v, symbol)
			}
		}

		return venue.New(codec, symbol, publish, logger, venue.Options{
			URL:              vc.URL,
			HandshakeTimeout: cfg.Feed.HandshakeTimeout.Duration,
			ReconnectBackoff: cfg.Feed.ReconnectBackoff.Duration,
			OnState:          onState,
		}), nil
	}
}
