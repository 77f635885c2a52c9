package bybit

import (
	"encoding/json"
	"errors"
	"testing"

	"tradesim/internal/domain"
)

func TestSubscribePayloads(t *testing.T) {
	payloads := Codec{}.SubscribePayloads("BTCUSDT")
	if len(payloads) != 1 {
		t.Fatalf("payloads = %d, want a single combined frame", len(payloads))
	}

	var cmd struct {
		Op   string   `json:"op"`
		Args []string `json:"args"`
	}
	if err := json.Unmarshal(payloads[0], &cmd); err != nil {
		t.Fatal(err)
	}
	if cmd.Op != "subscribe" {
		t.Errorf("op = %q, want subscribe", cmd.Op)
	}
	want := []string{"orderbook.50.BTCUSDT", "tickers.BTCUSDT"}
	if len(cmd.Args) != len(want) {
		t.Fatalf("args = %v, want %v", cmd.Args, want)
	}
	for i := range want {
		if cmd.Args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, cmd.Args[i], want[i])
		}
	}
}

func TestParseOrderbookFrame(t *testing.T) {
	frame := `{
		"topic": "orderbook.50.BTCUSDT",
		"type": "snapshot",
		"ts": 1690000000000,
		"data": {
			"s": "BTCUSDT",
			"b": [["100.5", "2"], ["100.0", "1"]],
			"a": [["101.0", "3"]]
		}
	}`
	up, err := Codec{}.Parse([]byte(frame))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if up.Book == nil {
		t.Fatal("Book = nil")
	}
	if up.Book.BestBid() != 100.5 || up.Book.BestAsk() != 101.0 {
		t.Errorf("best bid/ask = %v/%v", up.Book.BestBid(), up.Book.BestAsk())
	}
	if up.Book.Timestamp != 1690000000000 {
		t.Errorf("Timestamp = %d", up.Book.Timestamp)
	}
}

func TestDeltaFrameReplacesWholesale(t *testing.T) {
	// Delta frames share the snapshot shape; each parses to a complete book.
	frame := `{
		"topic": "orderbook.50.BTCUSDT",
		"type": "delta",
		"ts": 1690000000001,
		"data": {"s": "BTCUSDT", "b": [["99", "5"]], "a": [["100", "1"]]}
	}`
	up, err := Codec{}.Parse([]byte(frame))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if up.Book == nil || len(up.Book.Bids) != 1 || len(up.Book.Asks) != 1 {
		t.Fatalf("Book = %+v, want one level per side", up.Book)
	}
}

func TestParseTickerFrame(t *testing.T) {
	frame := `{
		"topic": "tickers.BTCUSDT",
		"ts": 1690000000000,
		"data": {
			"lastPrice": "110",
			"highPrice24h": "112",
			"lowPrice24h": "99",
			"prevPrice24h": "100",
			"volume24h": "55555"
		}
	}`
	up, err := Codec{}.Parse([]byte(frame))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if up.Ticker == nil {
		t.Fatal("Ticker = nil")
	}
	if up.Ticker.Change24h != 10 {
		t.Errorf("Change24h = %v, want 10", up.Ticker.Change24h)
	}
	if up.Ticker.ChangePercent24h != 10 {
		t.Errorf("ChangePercent24h = %v, want 10", up.Ticker.ChangePercent24h)
	}
}

func TestParseAckFrame(t *testing.T) {
	up, err := Codec{}.Parse([]byte(`{"success": true, "op": "subscribe", "conn_id": "x"}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !up.Empty() {
		t.Errorf("ack parsed to %+v, want empty update", up)
	}
}

func TestParseMalformedFrame(t *testing.T) {
	_, err := Codec{}.Parse([]byte(`garbage`))
	if !errors.Is(err, domain.ErrParse) {
		t.Errorf("error = %v, want ErrParse", err)
	}
}
