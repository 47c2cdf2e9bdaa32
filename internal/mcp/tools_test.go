package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bobmcallan/elida-portal/internal/auth"
	"github.com/bobmcallan/elida-portal/internal/client"
	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/config"
	"github.com/bobmcallan/elida-portal/internal/market"
	"github.com/bobmcallan/elida-portal/internal/portfolio"
	"github.com/bobmcallan/elida-portal/internal/scan"
	"github.com/bobmcallan/elida-portal/internal/storage/badger"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type toolFixture struct {
	deps     Deps
	sessions *auth.SessionManager
	polls    atomic.Int32
}

func newToolFixture(t *testing.T) *toolFixture {
	t.Helper()
	f := &toolFixture{}

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/auth/login":
			w.Write([]byte(`{"token":"tok-1","user":{"id":"u1","username":"alice"}}`))
		case r.URL.Path == "/api/portfolio/scan":
			w.Write([]byte(`{"request_id":"req-9"}`))
		case strings.HasPrefix(r.URL.Path, "/api/portfolio/status/"):
			if f.polls.Add(1) < 2 {
				w.Write([]byte(`{"status":"running","progress":50}`))
				return
			}
			w.Write([]byte(`{"status":"completed","results":[{"ticker":"AAPL","match_score":81,"recommendation":"Buy","risk":"Low"}]}`))
		case r.URL.Path == "/market-data/AAPL":
			w.Write([]byte(`{"price":180,"change":-1.2,"change_percent":-0.66,"currency":"USD"}`))
		case strings.HasPrefix(r.URL.Path, "/market-data/"):
			w.WriteHeader(http.StatusNotFound)
		case r.URL.Path == "/analyze/AAPL":
			w.Write([]byte(`{"match_score":72,"recommendation":"Buy","risk":"High","summary":"Strong | steady"}`))
		case r.URL.Path == "/api/compare/synthesize":
			w.Write([]byte(`{"narrative":"AAPL edges MSFT.","winner":"aapl"}`))
		case r.URL.Path == "/chat/general":
			w.Write([]byte(`{"reply":"Diversify.","sources":["docs"]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(backend.Close)

	logger := common.NewSilentLogger()
	mgr, err := badger.NewManager(logger, &config.BadgerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	f.sessions = auth.NewSessionManager(mgr.SessionStorage(), nil, logger)
	c := client.NewElidaClient(backend.URL, client.WithTokenSource(f.sessions))
	f.sessions.SetAuthenticator(c)

	svc := portfolio.NewService(mgr.PortfolioStorage(), mgr.ScanStorage(), logger)
	runner := scan.NewRunner(c, svc, mgr.ScanStorage(), logger, scan.Options{PollInterval: 10 * time.Millisecond})
	t.Cleanup(func() {
		runner.Close()
		mgr.Close()
	})

	f.deps = Deps{
		Portfolio: svc,
		Scans:     runner,
		Market:    market.NewService(c, time.Minute, logger),
		Research:  c,
	}
	return f
}

func call(t *testing.T, h server.ToolHandlerFunc, args map[string]any) (string, bool) {
	t.Helper()
	req := mcpgo.CallToolRequest{}
	req.Params.Arguments = args
	result, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if len(result.Content) == 0 {
		t.Fatal("empty tool result")
	}
	return result.Content[0].(mcpgo.TextContent).Text, result.IsError
}

func TestTools_PortfolioRoundTrip(t *testing.T) {
	f := newToolFixture(t)

	text, isErr := call(t, handleAddTicker(f.deps), map[string]any{"ticker": "aapl", "shares": 10.0, "buy_price": 150.5})
	if isErr || !strings.Contains(text, "AAPL saved") {
		t.Fatalf("unexpected add result %q", text)
	}

	text, isErr = call(t, handleListPortfolio(f.deps), nil)
	if isErr {
		t.Fatalf("list failed: %s", text)
	}
	if !strings.Contains(text, "| AAPL | pending |") || !strings.Contains(text, "$1,800.00") {
		t.Errorf("expected valued AAPL row, got:\n%s", text)
	}

	text, isErr = call(t, handleRemoveTicker(f.deps), map[string]any{"ticker": "aapl"})
	if isErr || text != "AAPL removed from the portfolio." {
		t.Errorf("unexpected remove result %q", text)
	}

	text, isErr = call(t, handleRemoveTicker(f.deps), map[string]any{"ticker": "aapl"})
	if !isErr || !strings.Contains(text, "not found") {
		t.Errorf("expected not found error, got %q", text)
	}
}

func TestTools_RequiredArguments(t *testing.T) {
	f := newToolFixture(t)
	for name, h := range map[string]server.ToolHandlerFunc{
		"add_ticker":      handleAddTicker(f.deps),
		"remove_ticker":   handleRemoveTicker(f.deps),
		"add_watchlist":   handleAddWatchlist(f.deps),
		"analyze_stock":   handleAnalyzeStock(f.deps),
		"get_market_data": handleGetMarketData(f.deps),
		"compare_stocks":  handleCompareStocks(f.deps),
		"ask_chat":        handleAskChat(f.deps),
	} {
		text, isErr := call(t, h, map[string]any{})
		if !isErr || !strings.Contains(text, "required") {
			t.Errorf("%s: expected required-parameter error, got %q", name, text)
		}
	}
}

func TestTools_Watchlist(t *testing.T) {
	f := newToolFixture(t)

	call(t, handleAddWatchlist(f.deps), map[string]any{"ticker": "aapl"})
	call(t, handleAddWatchlist(f.deps), map[string]any{"ticker": "zzz"})

	text, _ := call(t, handleGetWatchlist(f.deps), nil)
	if !strings.Contains(text, "| AAPL | 180.00 | -1.20 (-0.66%) |") {
		t.Errorf("expected quoted AAPL row, got:\n%s", text)
	}
	if !strings.Contains(text, "| ZZZ | - | - |") {
		t.Errorf("expected unquoted ZZZ row, got:\n%s", text)
	}

	text, isErr := call(t, handleRemoveWatchlist(f.deps), map[string]any{"ticker": "msft"})
	if !isErr {
		t.Errorf("expected error removing an unwatched ticker, got %q", text)
	}
}

func TestTools_ScanNeedsSession(t *testing.T) {
	f := newToolFixture(t)
	call(t, handleAddTicker(f.deps), map[string]any{"ticker": "AAPL"})

	text, isErr := call(t, handleStartScan(f.deps, common.NewSilentLogger()), nil)
	if !isErr || !strings.Contains(text, "not signed in") {
		t.Errorf("expected sign-in error, got %q", text)
	}

	text, _ = call(t, handleScanStatus(f.deps), nil)
	if text != "No scan has been started." {
		t.Errorf("unexpected status %q", text)
	}
}

func TestTools_ScanWaitMergesResults(t *testing.T) {
	f := newToolFixture(t)
	if _, err := f.sessions.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	call(t, handleAddTicker(f.deps), map[string]any{"ticker": "AAPL"})

	text, isErr := call(t, handleStartScan(f.deps, common.NewSilentLogger()), map[string]any{"wait": true})
	if isErr {
		t.Fatalf("scan failed: %s", text)
	}
	if !strings.Contains(text, "**Status:** completed") || !strings.Contains(text, "1 entries updated") {
		t.Errorf("unexpected scan result:\n%s", text)
	}

	text, _ = call(t, handleListPortfolio(f.deps), map[string]any{"quotes": false})
	if !strings.Contains(text, "| AAPL | analyzed | 81 | Buy | Low |") {
		t.Errorf("expected merged result in portfolio, got:\n%s", text)
	}

	text, _ = call(t, handleScanStatus(f.deps), nil)
	if !strings.Contains(text, "# Scan req-9") {
		t.Errorf("expected last scan in status, got:\n%s", text)
	}
}

func TestTools_Research(t *testing.T) {
	f := newToolFixture(t)

	text, isErr := call(t, handleAnalyzeStock(f.deps), map[string]any{"symbol": "aapl"})
	if isErr || !strings.Contains(text, "# AAPL") || !strings.Contains(text, "⚠ High") {
		t.Errorf("unexpected analysis:\n%s", text)
	}

	text, isErr = call(t, handleCompareStocks(f.deps), map[string]any{"ticker_a": "aapl", "ticker_b": "msft"})
	if isErr || !strings.Contains(text, "**Preferred:** AAPL") {
		t.Errorf("unexpected comparison:\n%s", text)
	}

	text, isErr = call(t, handleAskChat(f.deps), map[string]any{"message": "What now?"})
	if isErr || text != "Diversify.\n\nSources:\n- docs" {
		t.Errorf("unexpected chat reply %q", text)
	}
}

func TestTools_MarketData(t *testing.T) {
	f := newToolFixture(t)

	text, isErr := call(t, handleGetMarketData(f.deps), map[string]any{"tickers": []any{"aapl", "nope"}})
	if isErr {
		t.Fatalf("expected partial success, got error %q", text)
	}
	if !strings.Contains(text, "**Price:** 180.00 USD") || !strings.Contains(text, "# NOPE\n\nQuote unavailable") {
		t.Errorf("unexpected market data:\n%s", text)
	}

	text, isErr = call(t, handleGetMarketData(f.deps), map[string]any{"tickers": []any{"nope"}})
	if !isErr {
		t.Errorf("expected error when every quote fails, got %q", text)
	}
}

func TestNewServer_ListsTools(t *testing.T) {
	f := newToolFixture(t)
	srv := NewServer(f.deps, nil)

	resp := srv.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("failed to marshal response: %v", err)
	}
	var body struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("failed to unmarshal %s: %v", raw, err)
	}

	names := make(map[string]bool, len(body.Result.Tools))
	for _, tool := range body.Result.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{
		"get_version", "list_portfolio", "add_ticker", "remove_ticker",
		"get_watchlist", "add_watchlist", "remove_watchlist", "start_scan",
		"scan_status", "analyze_stock", "get_market_data", "compare_stocks", "ask_chat",
	} {
		if !names[want] {
			t.Errorf("tool %s not registered", want)
		}
	}
}
