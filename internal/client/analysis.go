package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/bobmcallan/elida-portal/internal/models"
)

// Analyze runs the full multi-agent analysis for a symbol. It can take
// minutes, so it uses the analyze timeout.
// GET /analyze/{symbol}
func (c *Client) Analyze(ctx context.Context, symbol string) (*models.Analysis, error) {
	symbol = models.NormalizeTicker(symbol)
	if symbol == "" {
		return nil, &Error{Kind: KindValidation, Op: "analyze", Message: "symbol is required"}
	}

	obj, raw, err := c.doGeneric(ctx, request{
		op:      "analyze",
		method:  http.MethodGet,
		path:    "/analyze/" + url.PathEscape(symbol),
		auth:    authOptional,
		timeout: c.analyzeTimeout,
	})
	if err != nil {
		return nil, err
	}
	a := NormalizeAnalysis(symbol, obj, raw)
	return &a, nil
}

// Ingest starts the legacy two-step analysis for an asset.
// POST /ingest/{assetId}
func (c *Client) Ingest(ctx context.Context, assetID string) error {
	assetID = models.NormalizeTicker(assetID)
	if assetID == "" {
		return &Error{Kind: KindValidation, Op: "ingest", Message: "asset id is required"}
	}
	_, err := c.do(ctx, request{
		op:      "ingest",
		method:  http.MethodPost,
		path:    "/ingest/" + url.PathEscape(assetID),
		auth:    authOptional,
		timeout: c.analyzeTimeout,
	})
	return err
}

// Retrieve fetches the legacy analysis produced by Ingest.
// GET /retrieve?query=
func (c *Client) Retrieve(ctx context.Context, query string) (*models.Analysis, error) {
	if query == "" {
		return nil, &Error{Kind: KindValidation, Op: "retrieve", Message: "query is required"}
	}
	obj, raw, err := c.doGeneric(ctx, request{
		op:     "retrieve",
		method: http.MethodGet,
		path:   "/retrieve",
		query:  url.Values{"query": {query}},
		auth:   authOptional,
	})
	if err != nil {
		return nil, err
	}
	a := NormalizeAnalysis(query, obj, raw)
	return &a, nil
}

// AnalyzeLegacy runs Ingest then Retrieve for an asset.
func (c *Client) AnalyzeLegacy(ctx context.Context, assetID string) (*models.Analysis, error) {
	if err := c.Ingest(ctx, assetID); err != nil {
		return nil, err
	}
	return c.Retrieve(ctx, models.NormalizeTicker(assetID))
}

// MarketData fetches a quote snapshot.
// GET /market-data/{ticker}
func (c *Client) MarketData(ctx context.Context, ticker string) (*models.MarketData, error) {
	ticker = models.NormalizeTicker(ticker)
	if ticker == "" {
		return nil, &Error{Kind: KindValidation, Op: "market data", Message: "ticker is required"}
	}
	obj, _, err := c.doGeneric(ctx, request{
		op:     "market data",
		method: http.MethodGet,
		path:   "/market-data/" + url.PathEscape(ticker),
		auth:   authOptional,
	})
	if err != nil {
		return nil, err
	}
	md := NormalizeMarketData(ticker, obj, time.Now().UTC())
	return &md, nil
}

// Chat sends a free-text question to the general chatbot.
// POST /chat/general {message, history}
func (c *Client) Chat(ctx context.Context, message string, history []models.ChatMessage) (*models.ChatReply, error) {
	if message == "" {
		return nil, &Error{Kind: KindValidation, Op: "chat", Message: "message is required"}
	}
	body := map[string]any{"message": message}
	if len(history) > 0 {
		body["history"] = history
	}
	obj, _, err := c.doGeneric(ctx, request{
		op:     "chat",
		method: http.MethodPost,
		path:   "/chat/general",
		body:   body,
		auth:   authOptional,
	})
	if err != nil {
		return nil, err
	}

	reply := &models.ChatReply{Reply: lookupString(obj, []string{"$.reply", "$.response", "$.answer", "$.message"})}
	if v, ok := lookup(obj, []string{"$.sources"}); ok {
		if list, ok := v.([]any); ok {
			for _, s := range list {
				if str, ok := s.(string); ok {
					reply.Sources = append(reply.Sources, str)
				}
			}
		}
	}
	return reply, nil
}

// Compare asks the backend for a narrative comparing two stocks.
// POST /api/compare/synthesize {ticker_a, ticker_b}
func (c *Client) Compare(ctx context.Context, tickerA, tickerB string) (*models.Comparison, error) {
	a, b := models.NormalizeTicker(tickerA), models.NormalizeTicker(tickerB)
	if a == "" || b == "" {
		return nil, &Error{Kind: KindValidation, Op: "compare", Message: "two tickers are required"}
	}
	if a == b {
		return nil, &Error{Kind: KindValidation, Op: "compare", Message: "tickers must differ"}
	}
	obj, _, err := c.doGeneric(ctx, request{
		op:      "compare",
		method:  http.MethodPost,
		path:    "/api/compare/synthesize",
		body:    map[string]string{"ticker_a": a, "ticker_b": b},
		auth:    authOptional,
		timeout: c.analyzeTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &models.Comparison{
		TickerA:   a,
		TickerB:   b,
		Narrative: lookupString(obj, []string{"$.narrative", "$.synthesis", "$.comparison", "$.summary"}),
		Winner:    models.NormalizeTicker(lookupString(obj, []string{"$.winner", "$.preferred"})),
	}, nil
}
