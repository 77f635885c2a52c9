package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"tradesim/internal/domain"
)

// MarketReader is the read surface the market endpoints need.
type MarketReader interface {
	Latest(ctx context.Context, venue domain.Venue, symbol string) (domain.MarketData, error)
	Status(venue domain.Venue, symbol string) domain.ConnState
}

// VenueInfo describes one supported venue in the venues listing.
type VenueInfo struct {
	Venue         domain.Venue     `json:"venue"`
	DefaultSymbol string           `json:"defaultSymbol"`
	State         domain.ConnState `json:"state"`
}

// MarketHandler serves market-data endpoints.
type MarketHandler struct {
	markets MarketReader
	symbols map[domain.Venue]string
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler. symbols maps each enabled venue
// to its configured default instrument.
func NewMarketHandler(markets MarketReader, symbols map[domain.Venue]string, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		symbols: symbols,
		logger:  logHandler(logger, "market"),
	}
}

// ListVenues returns the supported venues with their default symbols and
// current connection states.
// GET /api/venues
func (h *MarketHandler) ListVenues(w http.ResponseWriter, r *http.Request) {
	out := make([]VenueInfo, 0, len(h.symbols))
	for _, v := range domain.Venues {
		symbol, ok := h.symbols[v]
		if !ok {
			continue
		}
		out = append(out, VenueInfo{
			Venue:         v,
			DefaultSymbol: symbol,
			State:         h.markets.Status(v, symbol),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetMarket returns the latest snapshot for one market.
// GET /api/market/{venue}/{symbol}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	venue := domain.Venue(r.PathValue("venue"))
	symbol := r.PathValue("symbol")

	if !venue.Valid() {
		writeError(w, http.StatusBadRequest, "unknown venue")
		return
	}
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	md, err := h.markets.Latest(r.Context(), venue, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNoSnapshot) || errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no market data available")
			return
		}
		h.logger.Error("latest snapshot failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, md)
}
