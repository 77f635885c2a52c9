// Package venue owns the per-venue streaming connections. An Adapter manages
// one WebSocket per (venue, symbol) pair and a Codec translates that venue's
// wire protocol into the canonical market-data model. Venue-specific codecs
// live in the okx, bybit, and deribit subpackages.
package venue

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"tradesim/internal/domain"
)

// Update is the result of parsing one venue frame. Frames that carry neither
// book nor ticker content (subscribe acks, heartbeats) parse to a zero Update.
type Update struct {
	Book   *domain.OrderBook
	Ticker *domain.Ticker
}

// Empty reports whether the update carries no content.
func (u Update) Empty() bool {
	return u.Book == nil && u.Ticker == nil
}

// Codec translates a single venue's wire protocol. Implementations are pure:
// they hold no connection state and may be shared across adapters.
type Codec interface {
	// Venue returns the venue this codec speaks for.
	Venue() domain.Venue
	// WSURL returns the venue's public streaming endpoint.
	WSURL() string
	// SubscribePayloads returns the frames to send after connecting in order
	// to subscribe to the orderbook and ticker channels for symbol.
	SubscribePayloads(symbol string) [][]byte
	// Parse translates one raw frame. Malformed frames return an error
	// wrapping domain.ErrParse; recognizable but content-free frames return
	// a zero Update and nil error.
	Parse(raw []byte) (Update, error)
}

// FlexFloat unmarshals from a JSON number or a numeric string. Venue feeds
// disagree on which encoding they use, sometimes within a single message.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = FlexFloat(n)
	return nil
}

// Levels converts raw [price, size, ...] rows into price levels. Trailing
// row elements (order counts and the like) are ignored, and entries with a
// non-positive price or size are dropped (venues use size 0 to signal
// removal, which is meaningless in a whole-snapshot feed).
func Levels(rows [][]FlexFloat) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		price, size := float64(row[0]), float64(row[1])
		if price <= 0 || size <= 0 {
			continue
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out
}

// NormalizeBook sorts bids descending and asks ascending, merges duplicate
// price levels per side, and rejects crossed books. ts is epoch milliseconds;
// pass 0 to let the adapter stamp local receive time.
func NormalizeBook(bids, asks []domain.PriceLevel, ts int64) (domain.OrderBook, error) {
	bids = dedupe(bids, func(a, b float64) bool { return a > b })
	asks = dedupe(asks, func(a, b float64) bool { return a < b })

	if len(bids) > 0 && len(asks) > 0 && bids[0].Price >= asks[0].Price {
		return domain.OrderBook{}, fmt.Errorf("crossed book (bid %g >= ask %g): %w",
			bids[0].Price, asks[0].Price, domain.ErrParse)
	}

	return domain.OrderBook{Bids: bids, Asks: asks, Timestamp: ts}, nil
}

// dedupe sorts levels by the given price ordering and merges the sizes of
// adjacent levels that share a price.
func dedupe(levels []domain.PriceLevel, less func(a, b float64) bool) []domain.PriceLevel {
	sort.SliceStable(levels, func(i, j int) bool {
		return less(levels[i].Price, levels[j].Price)
	})
	out := levels[:0]
	for _, lvl := range levels {
		if n := len(out); n > 0 && out[n-1].Price == lvl.Price {
			out[n-1].Size += lvl.Size
			continue
		}
		out = append(out, lvl)
	}
	return out
}
