// Package deribit implements the venue codec for the Deribit JSON-RPC v2
// WebSocket.
package deribit

import (
	"encoding/json"
	"fmt"
	"strings"

	"tradesim/internal/domain"
	"tradesim/internal/venue"
)

// wsURL is the Deribit v2 streaming endpoint.
const wsURL = "wss://www.deribit.com/ws/api/v2"

// Codec translates Deribit JSON-RPC subscription notifications into the
// canonical model.
type Codec struct{}

// rpcRequest is a Deribit JSON-RPC request envelope.
type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int       `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcParams struct {
	Channels []string `json:"channels"`
}

// notification is the common shape of Deribit frames: RPC responses carry a
// result, subscription notifications carry params.
type notification struct {
	Method string `json:"method"`
	Params struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
	} `json:"params"`
}

// bookData is the data object of a book channel notification. Snapshot rows
// are [price, amount]; change rows are [action, price, amount].
type bookData struct {
	Bids      []bookRow `json:"bids"`
	Asks      []bookRow `json:"asks"`
	Timestamp int64     `json:"timestamp"`
}

// tickerData is the data object of a ticker channel notification.
type tickerData struct {
	LastPrice float64 `json:"last_price"`
	Timestamp int64   `json:"timestamp"`
	Stats     struct {
		Volume      float64 `json:"volume"`
		High        float64 `json:"high"`
		Low         float64 `json:"low"`
		PriceChange float64 `json:"price_change"` // 24h change in percent
	} `json:"stats"`
}

// bookRow tolerates both the two-element snapshot form and the three-element
// change form, keeping only price and size.
type bookRow struct {
	Price float64
	Size  float64
}

func (r *bookRow) UnmarshalJSON(data []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	// ["new"|"change"|"delete", price, amount] — drop the action tag.
	if len(fields) == 3 {
		fields = fields[1:]
	}
	if len(fields) != 2 {
		return fmt.Errorf("book row has %d fields", len(fields))
	}
	if err := json.Unmarshal(fields[0], &r.Price); err != nil {
		return err
	}
	return json.Unmarshal(fields[1], &r.Size)
}

func (Codec) Venue() domain.Venue { return domain.VenueDeribit }

func (Codec) WSURL() string { return wsURL }

// SubscribePayloads subscribes to the book and ticker channels for symbol
// (a Deribit instrument such as "BTC-PERPETUAL").
func (Codec) SubscribePayloads(symbol string) [][]byte {
	book, _ := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "public/subscribe",
		Params:  rpcParams{Channels: []string{fmt.Sprintf("book.%s.100ms", symbol)}},
	})
	ticker, _ := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "public/subscribe",
		Params:  rpcParams{Channels: []string{fmt.Sprintf("ticker.%s.100ms", symbol)}},
	})
	return [][]byte{book, ticker}
}

// Parse translates one Deribit frame. RPC responses (subscribe acks,
// heartbeats) parse to a zero update.
func (Codec) Parse(raw []byte) (venue.Update, error) {
	var n notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return venue.Update{}, fmt.Errorf("deribit: envelope: %v: %w", err, domain.ErrParse)
	}

	if n.Method != "subscription" || len(n.Params.Data) == 0 {
		return venue.Update{}, nil
	}

	switch {
	case strings.HasPrefix(n.Params.Channel, "book."):
		var d bookData
		if err := json.Unmarshal(n.Params.Data, &d); err != nil {
			return venue.Update{}, fmt.Errorf("deribit: book data: %v: %w", err, domain.ErrParse)
		}
		book, err := venue.NormalizeBook(rowsToLevels(d.Bids), rowsToLevels(d.Asks), d.Timestamp)
		if err != nil {
			return venue.Update{}, fmt.Errorf("deribit: %w", err)
		}
		return venue.Update{Book: &book}, nil

	case strings.HasPrefix(n.Params.Channel, "ticker."):
		var d tickerData
		if err := json.Unmarshal(n.Params.Data, &d); err != nil {
			return venue.Update{}, fmt.Errorf("deribit: ticker data: %v: %w", err, domain.ErrParse)
		}
		t := domain.Ticker{
			LastPrice:        d.LastPrice,
			High24h:          d.Stats.High,
			Low24h:           d.Stats.Low,
			Volume24h:        d.Stats.Volume,
			ChangePercent24h: d.Stats.PriceChange,
			Change24h:        d.LastPrice * d.Stats.PriceChange / 100,
		}
		return venue.Update{Ticker: &t}, nil
	}

	return venue.Update{}, nil
}

func rowsToLevels(rows []bookRow) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(rows))
	for _, r := range rows {
		if r.Price <= 0 || r.Size <= 0 {
			continue
		}
		out = append(out, domain.PriceLevel{Price: r.Price, Size: r.Size})
	}
	return out
}

// Compile-time interface check.
var _ venue.Codec = Codec{}
