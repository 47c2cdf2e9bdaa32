package handlers

import (
	"context"
	"net/http"

	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/market"
	"github.com/bobmcallan/elida-portal/internal/models"
)

// Research is the part of the ELIDA client behind the one-shot analysis
// endpoints.
type Research interface {
	Analyze(ctx context.Context, symbol string) (*models.Analysis, error)
	Compare(ctx context.Context, tickerA, tickerB string) (*models.Comparison, error)
	Chat(ctx context.Context, message string, history []models.ChatMessage) (*models.ChatReply, error)
	SaveHistory(ctx context.Context, a *models.Analysis) (*models.HistoryEntry, error)
}

// MarketHandler proxies analysis, quotes, comparisons and chat.
type MarketHandler struct {
	logger   *common.Logger
	research Research
	quotes   *market.Service
	sessions authFailureHandler
}

// NewMarketHandler creates a new market handler. sessions may be nil.
func NewMarketHandler(logger *common.Logger, research Research, quotes *market.Service, sessions authFailureHandler) *MarketHandler {
	return &MarketHandler{logger: logger.OrSilent(), research: research, quotes: quotes, sessions: sessions}
}

type analyzeResponse struct {
	*models.Analysis
	HistoryID string `json:"history_id,omitempty"`
}

// HandleAnalyze handles GET /api/analyze/{symbol}. With ?save=true the
// result is also added to the signed-in user's history.
func (h *MarketHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	a, err := h.research.Analyze(r.Context(), r.PathValue("symbol"))
	if err != nil {
		writeServiceError(w, r, h.logger, h.sessions, "analyze", err)
		return
	}

	resp := analyzeResponse{Analysis: a}
	if r.URL.Query().Get("save") == "true" {
		entry, err := h.research.SaveHistory(r.Context(), a)
		if err != nil {
			writeServiceError(w, r, h.logger, h.sessions, "save history", err)
			return
		}
		resp.HistoryID = entry.ID
	}
	WriteJSON(w, http.StatusOK, resp)
}

// HandleQuote handles GET /api/market/{ticker}.
func (h *MarketHandler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	q, err := h.quotes.Quote(r.Context(), r.PathValue("ticker"))
	if err != nil {
		writeServiceError(w, r, h.logger, h.sessions, "market data", err)
		return
	}
	WriteJSON(w, http.StatusOK, q)
}

type compareRequest struct {
	TickerA string `json:"ticker_a"`
	TickerB string `json:"ticker_b"`
}

// HandleCompare handles POST /api/compare.
func (h *MarketHandler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req compareRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.research.Compare(r.Context(), req.TickerA, req.TickerB)
	if err != nil {
		writeServiceError(w, r, h.logger, h.sessions, "compare", err)
		return
	}
	WriteJSON(w, http.StatusOK, c)
}

type chatRequest struct {
	Message string               `json:"message"`
	History []models.ChatMessage `json:"history"`
}

// HandleChat handles POST /api/chat.
func (h *MarketHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reply, err := h.research.Chat(r.Context(), req.Message, req.History)
	if err != nil {
		writeServiceError(w, r, h.logger, h.sessions, "chat", err)
		return
	}
	WriteJSON(w, http.StatusOK, reply)
}
