// Package sim estimates how a hypothetical order would execute against a
// market-data snapshot: fill percentage, slippage, market impact, and
// time-to-fill. The simulator is pure — it performs no I/O, never mutates
// the snapshot, and is deterministic apart from explicit jitter terms drawn
// from an injectable randomness source.
package sim

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradesim/internal/domain"
)

const (
	// impactDepth is how many opposing levels count toward visible book
	// value in the market-impact estimate.
	impactDepth = 10

	// basePerLevelSeconds is the assumed queue wait per book level ahead of
	// a resting limit order.
	basePerLevelSeconds = 2.0

	// minFillSeconds / maxFillSeconds clamp the limit-order estimate.
	minFillSeconds = 1.0
	maxFillSeconds = 300.0

	// refVolume is the 24h volume at which the volume multiplier is 1.
	refVolume = 1_000_000.0
)

// Simulator runs order-execution estimates. Safe for concurrent use.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Simulator. rng seeds the jitter terms; pass a fixed-seed
// source in tests, or nil for a time-seeded one.
func New(rng *rand.Rand) *Simulator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Simulator{rng: rng}
}

// Simulate estimates the execution of req against md. It returns
// domain.ErrInvalidOrder for a non-positive quantity or a limit order
// without a price, and domain.ErrNoLiquidity when the opposing side of the
// book is empty.
//
// Limit-order price eligibility follows conventional matching: a Buy is
// eligible against asks priced at or below the limit, a Sell against bids
// priced at or above it.
func (s *Simulator) Simulate(md domain.MarketData, req domain.OrderRequest) (domain.SimulationResult, error) {
	if req.Quantity <= 0 {
		return domain.SimulationResult{}, fmt.Errorf("sim: quantity must be positive: %w", domain.ErrInvalidOrder)
	}
	if req.Type == domain.OrderTypeLimit && req.Price == nil {
		return domain.SimulationResult{}, fmt.Errorf("sim: limit order requires a price: %w", domain.ErrInvalidOrder)
	}

	book := md.OrderBook
	levels := opposing(book, req.Side)
	if len(levels) == 0 {
		return domain.SimulationResult{}, fmt.Errorf("sim: %s side of book is empty: %w",
			opposingName(req.Side), domain.ErrNoLiquidity)
	}

	// Reference prices. When one book side is missing there is no mid, so
	// the execution price doubles as the reference and slippage reads 0.
	var execPrice float64
	if req.Type == domain.OrderTypeMarket {
		execPrice = levels[0].Price
	} else {
		execPrice = *req.Price
	}
	midPrice := book.MidPrice()
	if midPrice <= 0 {
		midPrice = execPrice
	}

	var (
		fillPct  float64
		slippage float64
		position int
	)

	if req.Type == domain.OrderTypeLimit {
		fillPct, position = walkLimit(levels, req.Side, *req.Price, req.Quantity)
		slippage = math.Abs(execPrice-midPrice) / midPrice * 100
	} else {
		var vwap float64
		fillPct, vwap, position = walkMarket(levels, req.Quantity)
		slippage = math.Abs(vwap-midPrice) / midPrice * 100
	}

	impact := marketImpact(levels, req.Quantity, execPrice)
	ttf := s.timeToFill(req, position, slippage, md.Ticker.Volume24h)

	return domain.SimulationResult{
		OrderID:             "sim-" + uuid.NewString(),
		FillPercent:         math.Min(fillPct, 100),
		MarketImpactPercent: impact,
		SlippagePercent:     slippage,
		TimeToFillSeconds:   &ttf,
		Position:            &position,
	}, nil
}

// walkLimit scans the opposing side best-first, accumulating size at every
// price-eligible level. It returns the fill percentage and the index of the
// last level considered.
func walkLimit(levels []domain.PriceLevel, side domain.OrderSide, limit, quantity float64) (fillPct float64, position int) {
	var available float64
	for i, lvl := range levels {
		if !eligible(side, lvl.Price, limit) {
			// Levels are best-first, so the first ineligible price ends
			// the eligible prefix.
			break
		}
		position = i
		available += lvl.Size
		if available >= quantity {
			return 100, position
		}
	}
	return available / quantity * 100, position
}

// eligible reports whether a resting level at price can trade against a
// limit order: asks at or below a Buy limit, bids at or above a Sell limit.
func eligible(side domain.OrderSide, price, limit float64) bool {
	if side == domain.SideBuy {
		return price <= limit
	}
	return price >= limit
}

// walkMarket consumes opposing levels greedily until the requested quantity
// is exhausted or the book runs out. It returns the fill percentage, the
// size-weighted average execution price, and the count of levels touched.
func walkMarket(levels []domain.PriceLevel, quantity float64) (fillPct, vwap float64, position int) {
	remaining := quantity
	var totalCost float64
	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		take := math.Min(lvl.Size, remaining)
		totalCost += take * lvl.Price
		remaining -= take
		position++
	}
	filled := quantity - remaining
	if filled <= 0 {
		return 0, 0, position
	}
	return filled / quantity * 100, totalCost / filled, position
}

// marketImpact relates order value to the visible book value over the top
// impactDepth opposing levels. An empty or worthless book reads as 0.
func marketImpact(levels []domain.PriceLevel, quantity, execPrice float64) float64 {
	depth := len(levels)
	if depth > impactDepth {
		depth = impactDepth
	}
	var bookValue float64
	for _, lvl := range levels[:depth] {
		bookValue += lvl.Price * lvl.Size
	}
	if bookValue <= 0 {
		return 0
	}
	return quantity * execPrice / bookValue * 100
}

// timeToFill estimates seconds until the order fills. Market orders match
// near-instantly; limit orders scale with queue position, 24h volume, and
// assumed volatility, plus the user-selected submission delay.
func (s *Simulator) timeToFill(req domain.OrderRequest, position int, slippage, volume24h float64) float64 {
	if req.Type == domain.OrderTypeMarket {
		return 0.05 + s.float64()*0.15
	}

	if volume24h <= 0 {
		volume24h = refVolume
	}
	volumeMult := math.Max(0.1, refVolume/volume24h)
	volatilityMult := math.Max(0.5, slippage/10)

	estimate := float64(position) * basePerLevelSeconds
	estimate *= volumeMult
	estimate /= volatilityMult
	estimate *= 0.8 + s.float64()*0.4 // ±20% jitter
	estimate += req.Timing.DelaySeconds()

	return math.Max(minFillSeconds, math.Min(maxFillSeconds, estimate))
}

// float64 draws from the shared randomness source under a lock so Simulate
// stays safe for concurrent callers.
func (s *Simulator) float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// opposing selects the side of the book a taker order trades against.
func opposing(book domain.OrderBook, side domain.OrderSide) []domain.PriceLevel {
	if side == domain.SideBuy {
		return book.Asks
	}
	return book.Bids
}

func opposingName(side domain.OrderSide) string {
	if side == domain.SideBuy {
		return "ask"
	}
	return "bid"
}
