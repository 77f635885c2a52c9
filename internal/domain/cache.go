package domain

import "context"

// SnapshotCache stores the latest MarketData per (venue, symbol) key. Only
// the most recent value is kept; history is never retained.
type SnapshotCache interface {
	Set(ctx context.Context, md MarketData) error
	Get(ctx context.Context, venue Venue, symbol string) (MarketData, error)
}

// SignalBus provides pub/sub fan-out of market events to out-of-process
// consumers such as the dashboard WebSocket bridge.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Key is the registry key form shared by the hub, cache, and signal bus:
// "<venue>_<symbol>".
func Key(venue Venue, symbol string) string {
	return string(venue) + "_" + symbol
}
