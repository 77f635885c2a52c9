package okx

import (
	"encoding/json"
	"errors"
	"testing"

	"tradesim/internal/domain"
)

func TestSubscribePayloads(t *testing.T) {
	payloads := Codec{}.SubscribePayloads("BTC-USDT")
	if len(payloads) != 2 {
		t.Fatalf("payloads = %d, want 2", len(payloads))
	}

	for i, wantChannel := range []string{"books", "tickers"} {
		var cmd struct {
			Op   string `json:"op"`
			Args []struct {
				Channel string `json:"channel"`
				InstID  string `json:"instId"`
			} `json:"args"`
		}
		if err := json.Unmarshal(payloads[i], &cmd); err != nil {
			t.Fatalf("payload %d: %v", i, err)
		}
		if cmd.Op != "subscribe" {
			t.Errorf("payload %d op = %q, want subscribe", i, cmd.Op)
		}
		if len(cmd.Args) != 1 || cmd.Args[0].Channel != wantChannel || cmd.Args[0].InstID != "BTC-USDT" {
			t.Errorf("payload %d args = %+v, want %s BTC-USDT", i, cmd.Args, wantChannel)
		}
	}
}

func TestParseBookFrame(t *testing.T) {
	frame := `{
		"arg": {"channel": "books", "instId": "BTC-USDT"},
		"data": [{
			"bids": [["100.5", "2", "0", "4"], ["100.0", "1", "0", "2"]],
			"asks": [["101.0", "3", "0", "1"], ["101.5", "0.5", "0", "1"]],
			"ts": "1690000000000"
		}]
	}`
	up, err := Codec{}.Parse([]byte(frame))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if up.Book == nil {
		t.Fatal("Book = nil")
	}
	if up.Book.BestBid() != 100.5 || up.Book.BestAsk() != 101.0 {
		t.Errorf("best bid/ask = %v/%v, want 100.5/101", up.Book.BestBid(), up.Book.BestAsk())
	}
	if up.Book.Timestamp != 1690000000000 {
		t.Errorf("Timestamp = %d, want 1690000000000", up.Book.Timestamp)
	}
}

func TestParseTickerFrame(t *testing.T) {
	frame := `{
		"arg": {"channel": "tickers", "instId": "BTC-USDT"},
		"data": [{
			"last": "105",
			"open24h": "100",
			"high24h": "110",
			"low24h": "95",
			"vol24h": "12345"
		}]
	}`
	up, err := Codec{}.Parse([]byte(frame))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if up.Ticker == nil {
		t.Fatal("Ticker = nil")
	}
	if up.Ticker.LastPrice != 105 {
		t.Errorf("LastPrice = %v, want 105", up.Ticker.LastPrice)
	}
	if up.Ticker.Change24h != 5 {
		t.Errorf("Change24h = %v, want 5", up.Ticker.Change24h)
	}
	if up.Ticker.ChangePercent24h != 5 {
		t.Errorf("ChangePercent24h = %v, want 5", up.Ticker.ChangePercent24h)
	}
	if up.Ticker.Volume24h != 12345 {
		t.Errorf("Volume24h = %v, want 12345", up.Ticker.Volume24h)
	}
}

func TestParseAckAndUnknownChannel(t *testing.T) {
	for _, frame := range []string{
		`{"event": "subscribe", "arg": {"channel": "books", "instId": "BTC-USDT"}}`,
		`{"arg": {"channel": "trades", "instId": "BTC-USDT"}, "data": [{}]}`,
	} {
		up, err := Codec{}.Parse([]byte(frame))
		if err != nil {
			t.Errorf("Parse(%s) error = %v", frame, err)
		}
		if !up.Empty() {
			t.Errorf("Parse(%s) = %+v, want empty update", frame, up)
		}
	}
}

func TestParseMalformedFrame(t *testing.T) {
	_, err := Codec{}.Parse([]byte(`{not json`))
	if !errors.Is(err, domain.ErrParse) {
		t.Errorf("error = %v, want ErrParse", err)
	}

	_, err = Codec{}.Parse([]byte(`{"arg":{"channel":"books"},"data":{"bids":[]}}`))
	if !errors.Is(err, domain.ErrParse) {
		t.Errorf("object-instead-of-array error = %v, want ErrParse", err)
	}
}

func TestParseCrossedBook(t *testing.T) {
	frame := `{
		"arg": {"channel": "books", "instId": "BTC-USDT"},
		"data": [{"bids": [["102", "1"]], "asks": [["101", "1"]], "ts": "0"}]
	}`
	_, err := Codec{}.Parse([]byte(frame))
	if !errors.Is(err, domain.ErrParse) {
		t.Errorf("error = %v, want ErrParse", err)
	}
}
