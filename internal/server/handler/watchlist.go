package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quantlab/papertrader/internal/domain"
)

// WatchlistHandler serves user watchlist CRUD endpoints.
type WatchlistHandler struct {
	watchlist domain.WatchlistStore
	logger    *slog.Logger
}

// NewWatchlistHandler creates a WatchlistHandler.
func NewWatchlistHandler(watchlist domain.WatchlistStore, logger *slog.Logger) *WatchlistHandler {
	return &WatchlistHandler{watchlist: watchlist, logger: logger}
}

// listWatchlistResponse wraps the watchlist response.
type listWatchlistResponse struct {
	Items []domain.WatchlistItem `json:"items"`
}

// List returns all tracked symbols.
// GET /api/watchlist
func (h *WatchlistHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.watchlist.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list watchlist failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list watchlist")
		return
	}
	if items == nil {
		items = []domain.WatchlistItem{}
	}
	writeJSON(w, http.StatusOK, listWatchlistResponse{Items: items})
}

// addWatchlistRequest adds a symbol to the watchlist.
type addWatchlistRequest struct {
	Symbol      string `json:"symbol"`
	CompanyName string `json:"company_name"`
}

// Add tracks a new symbol.
// POST /api/watchlist
func (h *WatchlistHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addWatchlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	item := domain.WatchlistItem{
		Symbol:      symbol,
		CompanyName: strings.TrimSpace(req.CompanyName),
		AddedAt:     time.Now().UTC(),
	}
	if err := h.watchlist.Add(r.Context(), item); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "symbol already on watchlist")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: add watchlist failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to add to watchlist")
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// Remove stops tracking a symbol.
// DELETE /api/watchlist/{symbol}
func (h *WatchlistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(pathParam(r, "symbol")))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}

	if err := h.watchlist.Remove(r.Context(), symbol); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "symbol not on watchlist")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: remove watchlist failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to remove from watchlist")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "removed",
		"symbol": symbol,
	})
}
