package domain

// OrderType distinguishes market and limit orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"
)

// OrderSide is the direction of a hypothetical order.
type OrderSide string

const (
	SideBuy  OrderSide = "Buy"
	SideSell OrderSide = "Sell"
)

// OrderTiming is the user-selected submission delay added to the
// time-to-fill estimate.
type OrderTiming string

const (
	TimingImmediate OrderTiming = "immediate"
	TimingDelay5s   OrderTiming = "5s"
	TimingDelay10s  OrderTiming = "10s"
	TimingDelay30s  OrderTiming = "30s"
)

// DelaySeconds returns the delay in seconds this timing adds. Unknown
// values behave as immediate.
func (t OrderTiming) DelaySeconds() float64 {
	switch t {
	case TimingDelay5s:
		return 5
	case TimingDelay10s:
		return 10
	case TimingDelay30s:
		return 30
	}
	return 0
}

// OrderRequest describes a hypothetical order to simulate against the
// current book. Price is required iff Type is Limit.
type OrderRequest struct {
	Venue    Venue       `json:"venue"`
	Symbol   string      `json:"symbol"`
	Type     OrderType   `json:"orderType"`
	Side     OrderSide   `json:"side"`
	Price    *float64    `json:"price,omitempty"`
	Quantity float64     `json:"quantity"`
	Timing   OrderTiming `json:"timing"`
}

// SimulationResult is the estimated execution outcome for one OrderRequest.
// Produced fresh per call, never persisted.
type SimulationResult struct {
	OrderID             string   `json:"orderId"`
	FillPercent         float64  `json:"estimatedFillPercentage"` // [0,100]
	MarketImpactPercent float64  `json:"marketImpact"`
	SlippagePercent     float64  `json:"slippage"`
	TimeToFillSeconds   *float64 `json:"timeToFill,omitempty"`
	Position            *int     `json:"position,omitempty"`
}
