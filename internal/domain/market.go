package domain

// Venue identifies a supported trading venue.
type Venue string

const (
	VenueOKX     Venue = "OKX"
	VenueBybit   Venue = "Bybit"
	VenueDeribit Venue = "Deribit"
)

// Venues lists every supported venue.
var Venues = []Venue{VenueOKX, VenueBybit, VenueDeribit}

// Valid reports whether v is a known venue.
func (v Venue) Valid() bool {
	switch v {
	case VenueOKX, VenueBybit, VenueDeribit:
		return true
	}
	return false
}

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook is a full snapshot of bids and asks for a symbol. Bids are
// ordered best-first (descending price), asks best-first (ascending price).
// Timestamp is epoch milliseconds, taken from the venue when provided.
type OrderBook struct {
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"`
}

// BestBid returns the highest bid price, or 0 when the bid side is empty.
func (b OrderBook) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk returns the lowest ask price, or 0 when the ask side is empty.
func (b OrderBook) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// MidPrice returns the mid between best bid and best ask, or 0 when either
// side is empty.
func (b OrderBook) MidPrice() float64 {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0
	}
	return (b.Bids[0].Price + b.Asks[0].Price) / 2
}

// Ticker is a 24h price summary for a symbol. When a venue ticker frame has
// not arrived yet the adapter synthesizes one from the latest book, so the
// statistics fields must not be treated as authoritative.
type Ticker struct {
	Symbol           string  `json:"symbol"`
	LastPrice        float64 `json:"lastPrice"`
	Change24h        float64 `json:"change24h"`
	ChangePercent24h float64 `json:"changePercent24h"`
	Volume24h        float64 `json:"volume24h"`
	High24h          float64 `json:"high24h"`
	Low24h           float64 `json:"low24h"`
}

// MarketData is the canonical per-venue market state for one symbol. It is
// owned by the adapter that produced it and replaced wholesale on every
// update; consumers always see a consistent immutable view.
type MarketData struct {
	Symbol     string    `json:"symbol"`
	Venue      Venue     `json:"venue"`
	OrderBook  OrderBook `json:"orderbook"`
	Ticker     Ticker    `json:"ticker"`
	LastUpdate int64     `json:"lastUpdate"` // epoch ms
}

// ConnState describes the lifecycle state of a venue connection.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateSubscribed   ConnState = "subscribed"
	StateReconnecting ConnState = "reconnecting"
)
