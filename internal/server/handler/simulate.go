package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"tradesim/internal/domain"
	"tradesim/internal/sim"
)

// maxSimulateBody bounds the request body for POST /api/simulate.
const maxSimulateBody = 1 << 16

// SimulateHandler runs order-execution estimates over the latest snapshots.
type SimulateHandler struct {
	markets   MarketReader
	simulator *sim.Simulator
	logger    *slog.Logger
}

// NewSimulateHandler creates a SimulateHandler.
func NewSimulateHandler(markets MarketReader, simulator *sim.Simulator, logger *slog.Logger) *SimulateHandler {
	return &SimulateHandler{
		markets:   markets,
		simulator: simulator,
		logger:    logHandler(logger, "simulate"),
	}
}

// Simulate estimates execution of the posted order against the latest
// snapshot for its market.
// POST /api/simulate
func (h *SimulateHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSimulateBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	var req domain.OrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if msg, ok := validateRequest(req); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	res, err := h.run(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidOrder):
			writeError(w, http.StatusBadRequest, "invalid order parameters")
		case errors.Is(err, domain.ErrNoSnapshot), errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusConflict, "no market data available")
		case errors.Is(err, domain.ErrNoLiquidity):
			writeError(w, http.StatusConflict, "no liquidity on the opposing side")
		default:
			h.logger.Error("simulation failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *SimulateHandler) run(ctx context.Context, req domain.OrderRequest) (domain.SimulationResult, error) {
	md, err := h.markets.Latest(ctx, req.Venue, req.Symbol)
	if err != nil {
		return domain.SimulationResult{}, err
	}
	return h.simulator.Simulate(md, req)
}

// validateRequest checks the request shape before touching market data so
// the caller gets a specific message instead of a generic invalid-order one.
func validateRequest(req domain.OrderRequest) (string, bool) {
	if !req.Venue.Valid() {
		return "unknown venue", false
	}
	if req.Symbol == "" {
		return "symbol is required", false
	}
	if req.Type != domain.OrderTypeMarket && req.Type != domain.OrderTypeLimit {
		return "orderType must be Market or Limit", false
	}
	if req.Side != domain.SideBuy && req.Side != domain.SideSell {
		return "side must be Buy or Sell", false
	}
	if req.Quantity <= 0 {
		return "quantity must be positive", false
	}
	if req.Type == domain.OrderTypeLimit && req.Price == nil {
		return "price is required for limit orders", false
	}
	if req.Price != nil && *req.Price <= 0 {
		return "price must be positive", false
	}
	if req.Timing != "" && req.Timing != domain.TimingImmediate &&
		req.Timing != domain.TimingDelay5s && req.Timing != domain.TimingDelay10s &&
		req.Timing != domain.TimingDelay30s {
		return "timing must be immediate, 5s, 10s, or 30s", false
	}
	return "", true
}
