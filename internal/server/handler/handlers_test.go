package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tradesim/internal/domain"
	"tradesim/internal/sim"
)

type fakeMarkets struct {
	data   map[string]domain.MarketData
	states map[string]domain.ConnState
}

func newFakeMarkets() *fakeMarkets {
	return &fakeMarkets{
		data:   make(map[string]domain.MarketData),
		states: make(map[string]domain.ConnState),
	}
}

func (f *fakeMarkets) Latest(_ context.Context, venue domain.Venue, symbol string) (domain.MarketData, error) {
	md, ok := f.data[domain.Key(venue, symbol)]
	if !ok {
		return domain.MarketData{}, domain.ErrNoSnapshot
	}
	return md, nil
}

func (f *fakeMarkets) Status(venue domain.Venue, symbol string) domain.ConnState {
	if st, ok := f.states[domain.Key(venue, symbol)]; ok {
		return st
	}
	return domain.StateDisconnected
}

func (f *fakeMarkets) seed(md domain.MarketData) {
	f.data[domain.Key(md.Venue, md.Symbol)] = md
	f.states[domain.Key(md.Venue, md.Symbol)] = domain.StateSubscribed
}

func liquidSnapshot(venue domain.Venue, symbol string) domain.MarketData {
	return domain.MarketData{
		Symbol: symbol,
		Venue:  venue,
		OrderBook: domain.OrderBook{
			Bids: []domain.PriceLevel{{Price: 100, Size: 2}},
			Asks: []domain.PriceLevel{{Price: 101, Size: 2}},
		},
		Ticker: domain.Ticker{Symbol: symbol, LastPrice: 101, Volume24h: 1_000_000},
	}
}

func defaultSymbols() map[domain.Venue]string {
	return map[domain.Venue]string{
		domain.VenueOKX:     "BTC-USDT",
		domain.VenueBybit:   "BTCUSDT",
		domain.VenueDeribit: "BTC-PERPETUAL",
	}
}

func newMux(markets MarketReader) *http.ServeMux {
	logger := slog.Default()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", NewHealthHandler(logger).HealthCheck)
	mh := NewMarketHandler(markets, defaultSymbols(), logger)
	mux.HandleFunc("GET /api/venues", mh.ListVenues)
	mux.HandleFunc("GET /api/market/{venue}/{symbol}", mh.GetMarket)
	sh := NewSimulateHandler(markets, sim.New(rand.New(rand.NewSource(1))), logger)
	mux.HandleFunc("POST /api/simulate", sh.Simulate)
	return mux
}

func TestHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux(newFakeMarkets()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
}

func TestListVenues(t *testing.T) {
	markets := newFakeMarkets()
	markets.seed(liquidSnapshot(domain.VenueOKX, "BTC-USDT"))

	rec := httptest.NewRecorder()
	newMux(markets).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/venues", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var venues []VenueInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &venues); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if len(venues) != 3 {
		t.Fatalf("venues = %d, want 3", len(venues))
	}
	for _, v := range venues {
		switch v.Venue {
		case domain.VenueOKX:
			if v.State != domain.StateSubscribed {
				t.Errorf("OKX state = %s, want subscribed", v.State)
			}
		default:
			if v.State != domain.StateDisconnected {
				t.Errorf("%s state = %s, want disconnected", v.Venue, v.State)
			}
		}
	}
}

func TestGetMarket(t *testing.T) {
	markets := newFakeMarkets()
	markets.seed(liquidSnapshot(domain.VenueBybit, "BTCUSDT"))
	mux := newMux(markets)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/market/Bybit/BTCUSDT", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var md domain.MarketData
	if err := json.Unmarshal(rec.Body.Bytes(), &md); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if md.Venue != domain.VenueBybit || md.OrderBook.BestBid() != 100 {
		t.Errorf("unexpected market data: %+v", md)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/market/Bybit/ETHUSDT", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing snapshot status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/market/NYSE/AAPL", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown venue status = %d, want 400", rec.Code)
	}
}

func TestSimulateEndpoint(t *testing.T) {
	markets := newFakeMarkets()
	markets.seed(liquidSnapshot(domain.VenueOKX, "BTC-USDT"))
	mux := newMux(markets)

	body := `{"venue":"OKX","symbol":"BTC-USDT","orderType":"Market","side":"Buy","quantity":1,"timing":"immediate"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/simulate", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var res domain.SimulationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if res.FillPercent != 100 {
		t.Errorf("FillPercent = %v, want 100", res.FillPercent)
	}
	if res.OrderID == "" {
		t.Error("OrderID is empty")
	}
}

func TestSimulateValidation(t *testing.T) {
	markets := newFakeMarkets()
	markets.seed(liquidSnapshot(domain.VenueOKX, "BTC-USDT"))
	mux := newMux(markets)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{not json`, http.StatusBadRequest},
		{"unknown venue", `{"venue":"NYSE","symbol":"X","orderType":"Market","side":"Buy","quantity":1}`, http.StatusBadRequest},
		{"zero quantity", `{"venue":"OKX","symbol":"BTC-USDT","orderType":"Market","side":"Buy","quantity":0}`, http.StatusBadRequest},
		{"limit without price", `{"venue":"OKX","symbol":"BTC-USDT","orderType":"Limit","side":"Buy","quantity":1}`, http.StatusBadRequest},
		{"bad side", `{"venue":"OKX","symbol":"BTC-USDT","orderType":"Market","side":"Hold","quantity":1}`, http.StatusBadRequest},
		{"bad timing", `{"venue":"OKX","symbol":"BTC-USDT","orderType":"Market","side":"Buy","quantity":1,"timing":"1h"}`, http.StatusBadRequest},
		{"no snapshot", `{"venue":"Deribit","symbol":"BTC-PERPETUAL","orderType":"Market","side":"Buy","quantity":1}`, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/simulate", strings.NewReader(tc.body)))
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestSimulateNoLiquidity(t *testing.T) {
	markets := newFakeMarkets()
	md := liquidSnapshot(domain.VenueOKX, "BTC-USDT")
	md.OrderBook.Asks = nil
	markets.seed(md)
	mux := newMux(markets)

	body := `{"venue":"OKX","symbol":"BTC-USDT","orderType":"Market","side":"Buy","quantity":1}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/simulate", strings.NewReader(body)))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}
