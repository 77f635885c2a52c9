// Package bybit implements the venue codec for the Bybit v5 public linear
// WebSocket.
package bybit

import (
	"encoding/json"
	"fmt"
	"strings"

	"tradesim/internal/domain"
	"tradesim/internal/venue"
)

// wsURL is the Bybit v5 public linear streaming endpoint.
const wsURL = "wss://stream.bybit.com/v5/public/linear"

// bookDepth is the subscribed orderbook depth. The simulator walks up to the
// top ten opposing levels, so a single-level topic is not enough.
const bookDepth = 50

// Codec translates Bybit topic envelopes into the canonical model.
type Codec struct{}

// subscribeCmd is the Bybit subscribe request envelope. Args are topic
// strings such as "orderbook.50.BTCUSDT".
type subscribeCmd struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// envelope is the common shape of Bybit data and ack frames.
type envelope struct {
	Topic   string          `json:"topic"`
	Op      string          `json:"op"`      // set on acks
	Success *bool           `json:"success"` // set on acks
	TS      int64           `json:"ts"`
	Data    json.RawMessage `json:"data"`
}

// bookData is the data object of an orderbook topic frame. Both snapshot and
// delta frames carry the same shape; each is treated as a whole replacement.
type bookData struct {
	Symbol string              `json:"s"`
	Bids   [][]venue.FlexFloat `json:"b"`
	Asks   [][]venue.FlexFloat `json:"a"`
}

// tickerData is the data object of a tickers topic frame.
type tickerData struct {
	LastPrice    venue.FlexFloat `json:"lastPrice"`
	High24h      venue.FlexFloat `json:"highPrice24h"`
	Low24h       venue.FlexFloat `json:"lowPrice24h"`
	PrevPrice24h venue.FlexFloat `json:"prevPrice24h"`
	Volume24h    venue.FlexFloat `json:"volume24h"`
}

func (Codec) Venue() domain.Venue { return domain.VenueBybit }

func (Codec) WSURL() string { return wsURL }

// SubscribePayloads subscribes to the orderbook and ticker topics for symbol
// (a Bybit linear symbol such as "BTCUSDT").
func (Codec) SubscribePayloads(symbol string) [][]byte {
	cmd, _ := json.Marshal(subscribeCmd{
		Op: "subscribe",
		Args: []string{
			fmt.Sprintf("orderbook.%d.%s", bookDepth, symbol),
			"tickers." + symbol,
		},
	})
	return [][]byte{cmd}
}

// Parse translates one Bybit frame. Operation acks parse to a zero update.
func (Codec) Parse(raw []byte) (venue.Update, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return venue.Update{}, fmt.Errorf("bybit: envelope: %v: %w", err, domain.ErrParse)
	}

	if env.Topic == "" || len(env.Data) == 0 {
		return venue.Update{}, nil
	}

	switch {
	case strings.HasPrefix(env.Topic, "orderbook."):
		var d bookData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return venue.Update{}, fmt.Errorf("bybit: orderbook data: %v: %w", err, domain.ErrParse)
		}
		book, err := venue.NormalizeBook(venue.Levels(d.Bids), venue.Levels(d.Asks), env.TS)
		if err != nil {
			return venue.Update{}, fmt.Errorf("bybit: %w", err)
		}
		return venue.Update{Book: &book}, nil

	case strings.HasPrefix(env.Topic, "tickers."):
		var d tickerData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return venue.Update{}, fmt.Errorf("bybit: tickers data: %v: %w", err, domain.ErrParse)
		}
		last, prev := float64(d.LastPrice), float64(d.PrevPrice24h)
		t := domain.Ticker{
			LastPrice: last,
			High24h:   float64(d.High24h),
			Low24h:    float64(d.Low24h),
			Volume24h: float64(d.Volume24h),
		}
		if prev > 0 {
			t.Change24h = last - prev
			t.ChangePercent24h = (last - prev) / prev * 100
		}
		return venue.Update{Ticker: &t}, nil
	}

	return venue.Update{}, nil
}

// Compile-time interface check.
var _ venue.Codec = Codec{}
