package handlers

import (
	"net/http"

	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/portfolio"
	"github.com/shopspring/decimal"
)

// PortfolioHandler serves the stored portfolio and watchlist.
type PortfolioHandler struct {
	logger    *common.Logger
	portfolio *portfolio.Service
}

// NewPortfolioHandler creates a new portfolio handler.
func NewPortfolioHandler(logger *common.Logger, svc *portfolio.Service) *PortfolioHandler {
	return &PortfolioHandler{logger: logger.OrSilent(), portfolio: svc}
}

type addEntryRequest struct {
	Ticker   string           `json:"ticker"`
	Shares   *decimal.Decimal `json:"shares"`
	BuyPrice *decimal.Decimal `json:"buy_price"`
}

type tickerRequest struct {
	Ticker string `json:"ticker"`
}

// HandleList handles GET /api/portfolio.
func (h *PortfolioHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	entries, err := h.portfolio.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, nil, "list portfolio", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// HandleAdd handles POST /api/portfolio.
func (h *PortfolioHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req addEntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.portfolio.Add(r.Context(), portfolio.AddInput{
		Ticker:   req.Ticker,
		Shares:   req.Shares,
		BuyPrice: req.BuyPrice,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, nil, "add ticker", err)
		return
	}
	WriteJSON(w, http.StatusCreated, entry)
}

// HandleRemove handles DELETE /api/portfolio/{ticker}.
func (h *PortfolioHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	if err := h.portfolio.Remove(r.Context(), r.PathValue("ticker")); err != nil {
		writeServiceError(w, r, h.logger, nil, "remove ticker", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleWatchlist handles GET /api/watchlist.
func (h *PortfolioHandler) HandleWatchlist(w http.ResponseWriter, r *http.Request) {
	list, err := h.portfolio.Watchlist(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, nil, "get watchlist", err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

// HandleWatch handles POST /api/watchlist.
func (h *PortfolioHandler) HandleWatch(w http.ResponseWriter, r *http.Request) {
	var req tickerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	list, err := h.portfolio.Watch(r.Context(), req.Ticker)
	if err != nil {
		writeServiceError(w, r, h.logger, nil, "watch", err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

// HandleUnwatch handles DELETE /api/watchlist/{ticker}.
func (h *PortfolioHandler) HandleUnwatch(w http.ResponseWriter, r *http.Request) {
	list, err := h.portfolio.Unwatch(r.Context(), r.PathValue("ticker"))
	if err != nil {
		writeServiceError(w, r, h.logger, nil, "unwatch", err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}
