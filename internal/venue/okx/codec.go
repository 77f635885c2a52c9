// Package okx implements the venue codec for the OKX v5 public WebSocket.
package okx

import (
	"encoding/json"
	"fmt"

	"tradesim/internal/domain"
	"tradesim/internal/venue"
)

// wsURL is the OKX v5 public streaming endpoint.
const wsURL = "wss://ws.okx.com:8443/ws/v5/public"

// Codec translates OKX op/args envelopes into the canonical model.
type Codec struct{}

// subscribeCmd is the OKX subscribe request envelope.
type subscribeCmd struct {
	Op   string `json:"op"`
	Args []arg  `json:"args"`
}

type arg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// envelope is the common shape of OKX data and event frames.
type envelope struct {
	Event string          `json:"event"` // "subscribe", "error" on acks
	Arg   arg             `json:"arg"`
	Data  json.RawMessage `json:"data"`
}

// bookData is one entry of a books-channel data array. Rows are
// [price, size, liquidated, orderCount] with every field string-encoded.
type bookData struct {
	Bids [][]venue.FlexFloat `json:"bids"`
	Asks [][]venue.FlexFloat `json:"asks"`
	TS   venue.FlexFloat     `json:"ts"`
}

// tickerData is one entry of a tickers-channel data array.
type tickerData struct {
	Last   venue.FlexFloat `json:"last"`
	Open24 venue.FlexFloat `json:"open24h"`
	High24 venue.FlexFloat `json:"high24h"`
	Low24  venue.FlexFloat `json:"low24h"`
	Vol24  venue.FlexFloat `json:"vol24h"`
}

func (Codec) Venue() domain.Venue { return domain.VenueOKX }

func (Codec) WSURL() string { return wsURL }

// SubscribePayloads subscribes to the books and tickers channels for symbol
// (an OKX instrument ID such as "BTC-USDT").
func (Codec) SubscribePayloads(symbol string) [][]byte {
	book, _ := json.Marshal(subscribeCmd{
		Op:   "subscribe",
		Args: []arg{{Channel: "books", InstID: symbol}},
	})
	ticker, _ := json.Marshal(subscribeCmd{
		Op:   "subscribe",
		Args: []arg{{Channel: "tickers", InstID: symbol}},
	})
	return [][]byte{book, ticker}
}

// Parse translates one OKX frame. Subscribe acks and empty data frames parse
// to a zero update.
func (Codec) Parse(raw []byte) (venue.Update, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return venue.Update{}, fmt.Errorf("okx: envelope: %v: %w", err, domain.ErrParse)
	}

	// Subscribe confirmations carry an event field and no data.
	if env.Event != "" || len(env.Data) == 0 {
		return venue.Update{}, nil
	}

	switch env.Arg.Channel {
	case "books":
		var entries []bookData
		if err := json.Unmarshal(env.Data, &entries); err != nil {
			return venue.Update{}, fmt.Errorf("okx: books data: %v: %w", err, domain.ErrParse)
		}
		if len(entries) == 0 {
			return venue.Update{}, nil
		}
		d := entries[0]
		book, err := venue.NormalizeBook(venue.Levels(d.Bids), venue.Levels(d.Asks), int64(d.TS))
		if err != nil {
			return venue.Update{}, fmt.Errorf("okx: %w", err)
		}
		return venue.Update{Book: &book}, nil

	case "tickers":
		var entries []tickerData
		if err := json.Unmarshal(env.Data, &entries); err != nil {
			return venue.Update{}, fmt.Errorf("okx: tickers data: %v: %w", err, domain.ErrParse)
		}
		if len(entries) == 0 {
			return venue.Update{}, nil
		}
		d := entries[0]
		last, open := float64(d.Last), float64(d.Open24)
		t := domain.Ticker{
			LastPrice: last,
			High24h:   float64(d.High24),
			Low24h:    float64(d.Low24),
			Volume24h: float64(d.Vol24),
		}
		if open > 0 {
			t.Change24h = last - open
			t.ChangePercent24h = (last - open) / open * 100
		}
		return venue.Update{Ticker: &t}, nil
	}

	// Unknown channel: not an error, just nothing we model.
	return venue.Update{}, nil
}

// Compile-time interface check.
var _ venue.Codec = Codec{}
