package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/market"
	"github.com/bobmcallan/elida-portal/internal/models"
	"github.com/bobmcallan/elida-portal/internal/portfolio"
	"github.com/bobmcallan/elida-portal/internal/render"
	"github.com/bobmcallan/elida-portal/internal/scan"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/shopspring/decimal"
)

// registerTools registers all MCP tools on the server and returns how many.
func registerTools(s *server.MCPServer, d Deps, logger *common.Logger) int {
	tools := []server.ServerTool{
		{Tool: VersionTool(), Handler: VersionToolHandler(d.Research)},
		{Tool: createListPortfolioTool(), Handler: handleListPortfolio(d)},
		{Tool: createAddTickerTool(), Handler: handleAddTicker(d)},
		{Tool: createRemoveTickerTool(), Handler: handleRemoveTicker(d)},
		{Tool: createGetWatchlistTool(), Handler: handleGetWatchlist(d)},
		{Tool: createAddWatchlistTool(), Handler: handleAddWatchlist(d)},
		{Tool: createRemoveWatchlistTool(), Handler: handleRemoveWatchlist(d)},
		{Tool: createStartScanTool(), Handler: handleStartScan(d, logger)},
		{Tool: createScanStatusTool(), Handler: handleScanStatus(d)},
		{Tool: createAnalyzeStockTool(), Handler: handleAnalyzeStock(d)},
		{Tool: createGetMarketDataTool(), Handler: handleGetMarketData(d)},
		{Tool: createCompareStocksTool(), Handler: handleCompareStocks(d)},
		{Tool: createAskChatTool(), Handler: handleAskChat(d)},
	}
	s.AddTools(tools...)
	return len(tools)
}

// --- Tool definitions ---

func createListPortfolioTool() mcp.Tool {
	return mcp.NewTool("list_portfolio",
		mcp.WithDescription("List the tracked portfolio: each ticker's analysis status, match score, recommendation and risk, valued at current prices when shares and buy price are known."),
		mcp.WithBoolean("quotes", mcp.Description("Fetch current prices to value positions (default true)")),
	)
}

func createAddTickerTool() mcp.Tool {
	return mcp.NewTool("add_ticker",
		mcp.WithDescription("Add a ticker to the portfolio, or update shares and buy price of one already tracked. New tickers start as pending until the next scan."),
		mcp.WithString("ticker", mcp.Required(), mcp.Description("Ticker symbol (e.g., 'AAPL', 'TCS.NS')")),
		mcp.WithNumber("shares", mcp.Description("Number of shares held")),
		mcp.WithNumber("buy_price", mcp.Description("Average buy price per share")),
	)
}

func createRemoveTickerTool() mcp.Tool {
	return mcp.NewTool("remove_ticker",
		mcp.WithDescription("Remove a ticker from the portfolio."),
		mcp.WithString("ticker", mcp.Required(), mcp.Description("Ticker symbol to remove")),
	)
}

func createGetWatchlistTool() mcp.Tool {
	return mcp.NewTool("get_watchlist",
		mcp.WithDescription("Show the watchlist with current prices."),
	)
}

func createAddWatchlistTool() mcp.Tool {
	return mcp.NewTool("add_watchlist",
		mcp.WithDescription("Add a ticker to the watchlist."),
		mcp.WithString("ticker", mcp.Required(), mcp.Description("Ticker symbol to watch")),
	)
}

func createRemoveWatchlistTool() mcp.Tool {
	return mcp.NewTool("remove_watchlist",
		mcp.WithDescription("Remove a ticker from the watchlist."),
		mcp.WithString("ticker", mcp.Required(), mcp.Description("Ticker symbol to stop watching")),
	)
}

func createStartScanTool() mcp.Tool {
	return mcp.NewTool("start_scan",
		mcp.WithDescription("SLOW: Start an AI scan of portfolio tickers. Results are merged into the portfolio when the scan completes. Use scan_status to follow progress, or wait=true to block until done."),
		mcp.WithArray("tickers", mcp.WithStringItems(), mcp.Description("Tickers to scan (default: every portfolio ticker)")),
		mcp.WithBoolean("wait", mcp.Description("Wait for the scan to finish before returning (default false)")),
	)
}

func createScanStatusTool() mcp.Tool {
	return mcp.NewTool("scan_status",
		mcp.WithDescription("FAST: Show progress of the current or last portfolio scan."),
	)
}

func createAnalyzeStockTool() mcp.Tool {
	return mcp.NewTool("analyze_stock",
		mcp.WithDescription("SLOW: Run the full multi-agent analysis for one stock. Can take several minutes."),
		mcp.WithString("symbol", mcp.Required(), mcp.Description("Ticker symbol to analyze")),
	)
}

func createGetMarketDataTool() mcp.Tool {
	return mcp.NewTool("get_market_data",
		mcp.WithDescription("FAST: Get current price and daily change for one or more tickers."),
		mcp.WithArray("tickers", mcp.WithStringItems(), mcp.Required(), mcp.Description("Tickers to quote (e.g., ['AAPL', 'MSFT'])")),
	)
}

func createCompareStocksTool() mcp.Tool {
	return mcp.NewTool("compare_stocks",
		mcp.WithDescription("Ask for an AI narrative comparing two stocks."),
		mcp.WithString("ticker_a", mcp.Required(), mcp.Description("First ticker")),
		mcp.WithString("ticker_b", mcp.Required(), mcp.Description("Second ticker")),
	)
}

func createAskChatTool() mcp.Tool {
	return mcp.NewTool("ask_chat",
		mcp.WithDescription("Ask the ELIDA assistant a free-text investing question."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The question")),
	)
}

// --- Handlers ---

func tickerArg(request mcp.CallToolRequest, key string) (string, *mcp.CallToolResult) {
	ticker, err := request.RequireString(key)
	if err != nil || strings.TrimSpace(ticker) == "" {
		return "", errorResult(fmt.Sprintf("Error: %s parameter is required", key))
	}
	return ticker, nil
}

func handleListPortfolio(d Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entries, err := d.Portfolio.List(ctx)
		if err != nil {
			return failure("List portfolio", err), nil
		}
		var quotes []market.QuoteResult
		if request.GetBool("quotes", true) && len(entries) > 0 {
			tickers := make([]string, len(entries))
			for i, e := range entries {
				tickers[i] = e.Ticker
			}
			quotes = d.Market.Quotes(ctx, tickers)
		}
		return textResult(render.PortfolioMarkdown(market.Value(entries, quotes))), nil
	}
}

func handleAddTicker(d Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ticker, bad := tickerArg(request, "ticker")
		if bad != nil {
			return bad, nil
		}
		in := portfolio.AddInput{Ticker: ticker}
		args := request.GetArguments()
		if _, ok := args["shares"]; ok {
			v := decimal.NewFromFloat(request.GetFloat("shares", 0))
			in.Shares = &v
		}
		if _, ok := args["buy_price"]; ok {
			v := decimal.NewFromFloat(request.GetFloat("buy_price", 0))
			in.BuyPrice = &v
		}

		entry, err := d.Portfolio.Add(ctx, in)
		if err != nil {
			return failure("Add ticker", err), nil
		}
		return textResult(fmt.Sprintf("%s saved to the portfolio (status: %s).", entry.Ticker, entry.Status)), nil
	}
}

func handleRemoveTicker(d Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ticker, bad := tickerArg(request, "ticker")
		if bad != nil {
			return bad, nil
		}
		ticker = models.NormalizeTicker(ticker)
		if err := d.Portfolio.Remove(ctx, ticker); err != nil {
			return failure("Remove "+ticker, err), nil
		}
		return textResult(fmt.Sprintf("%s removed from the portfolio.", ticker)), nil
	}
}

func handleGetWatchlist(d Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list, err := d.Portfolio.Watchlist(ctx)
		if err != nil {
			return failure("Get watchlist", err), nil
		}
		var quotes []market.QuoteResult
		if len(list.Tickers) > 0 {
			quotes = d.Market.Quotes(ctx, list.Tickers)
		}
		return textResult(render.WatchlistMarkdown(list, quotes)), nil
	}
}

func handleAddWatchlist(d Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ticker, bad := tickerArg(request, "ticker")
		if bad != nil {
			return bad, nil
		}
		list, err := d.Portfolio.Watch(ctx, ticker)
		if err != nil {
			return failure("Add to watchlist", err), nil
		}
		return textResult(render.WatchlistMarkdown(list, nil)), nil
	}
}

func handleRemoveWatchlist(d Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ticker, bad := tickerArg(request, "ticker")
		if bad != nil {
			return bad, nil
		}
		list, err := d.Portfolio.Unwatch(ctx, ticker)
		if err != nil {
			return failure("Remove from watchlist", err), nil
		}
		return textResult(render.WatchlistMarkdown(list, nil)), nil
	}
}

func handleStartScan(d Deps, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tickers := request.GetStringSlice("tickers", nil)
		if len(tickers) == 0 {
			var err error
			if tickers, err = d.Portfolio.Tickers(ctx); err != nil {
				return failure("Start scan", err), nil
			}
		}

		task, err := d.Scans.Start(ctx, tickers)
		if err != nil {
			return failure("Start scan", err), nil
		}
		logger.Info().Str("request_id", task.RequestID()).Msg("scan started from MCP")

		if !request.GetBool("wait", false) {
			return textResult(fmt.Sprintf("Scan %s started for %s. Use scan_status to follow progress.",
				task.RequestID(), strings.Join(task.Tickers(), ", "))), nil
		}

		outcome, err := task.Wait(ctx)
		if err != nil {
			return failure("Scan "+task.RequestID(), err), nil
		}
		return textResult(outcomeMarkdown(task.State(), outcome)), nil
	}
}

func outcomeMarkdown(state models.ScanState, outcome scan.Outcome) string {
	return render.ScanOutcomeMarkdown(state, outcome.Updated, outcome.Failed)
}

func handleScanStatus(d Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap, err := d.Scans.Snapshot(ctx)
		if err != nil {
			return failure("Scan status", err), nil
		}
		switch {
		case snap.State != nil && (snap.Running || snap.Outcome != nil):
			text := render.ScanMarkdown(*snap.State)
			if snap.Outcome != nil {
				text = outcomeMarkdown(*snap.State, *snap.Outcome)
			}
			if snap.Error != "" {
				text += "\nEnded with error: " + snap.Error + "\n"
			}
			if snap.Pending != nil {
				text += fmt.Sprintf("\nScan %s can be resumed.\n", snap.Pending.RequestID)
			}
			return textResult(text), nil
		case snap.Pending != nil:
			return textResult(fmt.Sprintf("Scan %s for %s is stored but not being polled.",
				snap.Pending.RequestID, strings.Join(snap.Pending.Tickers, ", "))), nil
		}
		return textResult("No scan has been started."), nil
	}
}

func handleAnalyzeStock(d Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		symbol, bad := tickerArg(request, "symbol")
		if bad != nil {
			return bad, nil
		}
		a, err := d.Research.Analyze(ctx, symbol)
		if err != nil {
			return failure("Analyze", err), nil
		}
		return textResult(render.AnalysisMarkdown(a)), nil
	}
}

func handleGetMarketData(d Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tickers := request.GetStringSlice("tickers", nil)
		if len(tickers) == 0 {
			return errorResult("Error: tickers parameter is required"), nil
		}

		var b strings.Builder
		failed := 0
		results := d.Market.Quotes(ctx, tickers)
		for _, r := range results {
			if r.Quote == nil {
				failed++
				fmt.Fprintf(&b, "# %s\n\nQuote unavailable: %s\n\n", r.Ticker, r.Error)
				continue
			}
			b.WriteString(render.QuoteMarkdown(r.Quote))
			b.WriteString("\n")
		}
		if failed == len(results) {
			return errorResult(b.String()), nil
		}
		return textResult(b.String()), nil
	}
}

func handleCompareStocks(d Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		a, bad := tickerArg(request, "ticker_a")
		if bad != nil {
			return bad, nil
		}
		b, bad := tickerArg(request, "ticker_b")
		if bad != nil {
			return bad, nil
		}
		c, err := d.Research.Compare(ctx, a, b)
		if err != nil {
			return failure("Compare", err), nil
		}
		return textResult(render.ComparisonMarkdown(c)), nil
	}
}

func handleAskChat(d Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := request.RequireString("message")
		if err != nil || strings.TrimSpace(message) == "" {
			return errorResult("Error: message parameter is required"), nil
		}
		reply, err := d.Research.Chat(ctx, message, nil)
		if err != nil {
			return failure("Chat", err), nil
		}
		return textResult(render.ChatMarkdown(reply)), nil
	}
}
