package handlers

import (
	"net/http"

	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/market"
	"github.com/bobmcallan/elida-portal/internal/portfolio"
	"github.com/bobmcallan/elida-portal/internal/render"
)

// DashboardHandler values the portfolio at current quotes.
type DashboardHandler struct {
	logger    *common.Logger
	portfolio *portfolio.Service
	quotes    *market.Service
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(logger *common.Logger, svc *portfolio.Service, quotes *market.Service) *DashboardHandler {
	return &DashboardHandler{logger: logger.OrSilent(), portfolio: svc, quotes: quotes}
}

// ServeHTTP handles GET /api/dashboard. ?format=markdown returns the
// rendered table instead of JSON.
func (h *DashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	entries, err := h.portfolio.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, nil, "dashboard", err)
		return
	}
	tickers := make([]string, len(entries))
	for i, e := range entries {
		tickers[i] = e.Ticker
	}
	summary := market.Value(entries, h.quotes.Quotes(r.Context(), tickers))

	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(render.PortfolioMarkdown(summary)))
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}
