package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"tradesim/internal/domain"
	"tradesim/internal/server"
	"tradesim/internal/server/handler"
)

// shutdownGrace bounds how long in-flight HTTP requests may run after the
// context is cancelled.
const shutdownGrace = 10 * time.Second

// ServeMode watches every enabled market and serves the HTTP + WebSocket
// API until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	if err := a.watchConfiguredMarkets(ctx, deps); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if deps.WSHub != nil {
		g.Go(func() error {
			if err := deps.WSHub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if a.cfg.Server.Enabled {
		symbols := make(map[domain.Venue]string)
		for _, v := range a.cfg.Venues.EnabledVenues() {
			symbols[v] = a.cfg.Venues.Venue(v).Symbol
		}

		handlers := server.Handlers{
			Health:   handler.NewHealthHandler(a.logger),
			Markets:  handler.NewMarketHandler(deps.Markets, symbols, a.logger),
			Simulate: handler.NewSimulateHandler(deps.Markets, deps.Simulator, a.logger),
		}
		srv := server.New(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		}, handlers, deps.WSHub, a.logger)

		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// MonitorMode watches every enabled market and logs connection states
// periodically without serving an API. The first enabled venue is selected
// as the primary market and tracked through the aggregator, which flags a
// selection that never produced data within the connect timeout.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	if err := a.watchConfiguredMarkets(ctx, deps); err != nil {
		return err
	}

	enabled := a.cfg.Venues.EnabledVenues()
	primary := enabled[0]
	if err := deps.Aggregator.Select(primary, a.cfg.Venues.Venue(primary).Symbol); err != nil {
		return err
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, v := range enabled {
				symbol := a.cfg.Venues.Venue(v).Symbol
				a.logger.Info("feed status",
					slog.String("venue", string(v)),
					slog.String("symbol", symbol),
					slog.String("state", string(deps.Markets.Status(v, symbol))),
				)
			}

			st := deps.Aggregator.Status()
			if snap, ok := deps.Aggregator.Snapshot(); ok {
				a.logger.Info("primary market",
					slog.String("venue", string(st.Venue)),
					slog.String("symbol", st.Symbol),
					slog.Float64("mid", snap.OrderBook.MidPrice()),
					slog.Float64("last", snap.Ticker.LastPrice),
				)
			} else if st.Failed {
				a.logger.Warn("primary market has produced no data",
					slog.String("venue", string(st.Venue)),
					slog.String("symbol", st.Symbol),
				)
			}
		}
	}
}

func (a *App) watchConfiguredMarkets(ctx context.Context, deps *Dependencies) error {
	for _, v := range a.cfg.Venues.EnabledVenues() {
		if err := deps.Markets.Watch(ctx, v, a.cfg.Venues.Venue(v).Symbol); err != nil {
			return err
		}
	}
	return nil
}
