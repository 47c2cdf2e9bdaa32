package render

import (
	"strings"
	"testing"

	"github.com/bobmcallan/elida-portal/internal/market"
	"github.com/bobmcallan/elida-portal/internal/models"
	"github.com/shopspring/decimal"
)

func f(v float64) *float64 { return &v }

func d(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func TestMoney(t *testing.T) {
	cases := []struct {
		amount   string
		currency string
		want     string
	}{
		{"1800", "USD", "$1,800.00"},
		{"12.345", "USD", "$12.35"},
		{"-300.5", "USD", "-$300.50"},
		{"42", "", "42.00"},
		{"42", "XYZ", "42.00 XYZ"},
	}
	for _, tc := range cases {
		if got := Money(decimal.RequireFromString(tc.amount), tc.currency); got != tc.want {
			t.Errorf("Money(%s, %q) = %q, want %q", tc.amount, tc.currency, got, tc.want)
		}
	}
	if MoneyPtr(nil, "USD") != "-" || Decimal(nil) != "-" {
		t.Error("nil values should render as -")
	}
}

func TestPortfolioMarkdown(t *testing.T) {
	entries := []models.PortfolioEntry{
		{Ticker: "AAPL", Status: models.EntryStatusAnalyzed, Score: f(72), Recommendation: "Buy", Risk: models.RiskMedium, Shares: d("10"), BuyPrice: d("150")},
		{Ticker: "MSFT", Status: models.EntryStatusAnalyzed, Score: f(80), Recommendation: "Hold", Risk: models.RiskLow},
		{Ticker: "TCS.NS", Status: models.EntryStatusPending},
	}
	quotes := []market.QuoteResult{{Ticker: "AAPL", Quote: &models.MarketData{Ticker: "AAPL", Price: 180, Currency: "USD"}}}

	md := PortfolioMarkdown(market.Value(entries, quotes))

	for _, want := range []string{
		"| AAPL | analyzed | 72 | Buy | ⚠ Medium | 10 | $150.00 | 180.00 | $1,800.00 | $300.00 (20.00%) |",
		"| MSFT | analyzed | 80 | Hold | Low |",
		"| TCS.NS | pending | - | - | - |",
		"**Cost basis:** $1,500.00",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected %q in:\n%s", want, md)
		}
	}
}

func TestPortfolioMarkdown_TotalsPerCurrency(t *testing.T) {
	entries := []models.PortfolioEntry{
		{Ticker: "AAPL", Shares: d("1"), BuyPrice: d("150")},
		{Ticker: "TCS.NS", Shares: d("1"), BuyPrice: d("3500")},
	}
	quotes := []market.QuoteResult{
		{Ticker: "AAPL", Quote: &models.MarketData{Ticker: "AAPL", Price: 200, Currency: "USD"}},
		{Ticker: "TCS.NS", Quote: &models.MarketData{Ticker: "TCS.NS", Price: 4000, Currency: "INR"}},
	}

	md := PortfolioMarkdown(market.Value(entries, quotes))

	for _, want := range []string{
		"**INR Cost basis:**",
		"**USD Cost basis:** $150.00  **Value:** $200.00  **Gain:** $50.00",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected %q in:\n%s", want, md)
		}
	}
	if strings.Contains(md, "4,200") {
		t.Errorf("currencies were summed together:\n%s", md)
	}
}

func TestPortfolioMarkdown_Empty(t *testing.T) {
	md := EntriesMarkdown(nil)
	if !strings.Contains(md, "No tickers yet") {
		t.Errorf("unexpected empty rendering: %s", md)
	}
}

func TestScanOutcomeMarkdown(t *testing.T) {
	md := ScanOutcomeMarkdown(models.ScanState{RequestID: "req-2", Status: models.ScanStatusFailed, Error: "backend down"}, 0, 3)
	for _, want := range []string{"# Scan req-2", "> backend down", "0 entries updated, 3 marked as error."} {
		if !strings.Contains(md, want) {
			t.Errorf("expected %q in:\n%s", want, md)
		}
	}
}

func TestScanMarkdown(t *testing.T) {
	md := ScanMarkdown(models.ScanState{
		RequestID: "req-1",
		Status:    models.ScanStatusCompleted,
		Progress:  100,
		Results:   []models.ScanResult{{Ticker: "AAPL", Score: f(72), Recommendation: "Buy", Risk: models.RiskHigh}},
	})
	for _, want := range []string{"# Scan req-1", "**Progress:** 100%", "| AAPL | 72 | Buy | ⚠ High |"} {
		if !strings.Contains(md, want) {
			t.Errorf("expected %q in:\n%s", want, md)
		}
	}
}

func TestAnalysisMarkdown_EscapesPipes(t *testing.T) {
	md := AnalysisMarkdown(&models.Analysis{
		Symbol: "AAPL",
		Score:  f(81),
		Agents: []models.AgentOutput{{Name: "news", Summary: "up | down\nsideways"}},
	})
	if !strings.Contains(md, `| news | - | up \| down sideways |`) {
		t.Errorf("unexpected agent row:\n%s", md)
	}
}

func TestWatchlistMarkdown(t *testing.T) {
	w := &models.Watchlist{Tickers: []string{"AAPL", "MSFT"}}
	quotes := []market.QuoteResult{{Ticker: "AAPL", Quote: &models.MarketData{Price: 187.5, Change: -1.25, ChangePercent: -0.66}}}
	md := WatchlistMarkdown(w, quotes)
	if !strings.Contains(md, "| AAPL | 187.50 | -1.25 (-0.66%) |") || !strings.Contains(md, "| MSFT | - | - |") {
		t.Errorf("unexpected watchlist:\n%s", md)
	}
}

func TestChatMarkdown(t *testing.T) {
	if got := ChatMarkdown(&models.ChatReply{Reply: "Hold."}); got != "Hold." {
		t.Errorf("reply without sources = %q", got)
	}
	got := ChatMarkdown(&models.ChatReply{Reply: "Hold.", Sources: []string{"a", "b"}})
	if got != "Hold.\n\nSources:\n- a\n- b" {
		t.Errorf("reply with sources = %q", got)
	}
}

func TestTerminal(t *testing.T) {
	out, err := Terminal("# Title\n\nbody text", 60)
	if err != nil {
		t.Fatalf("Terminal failed: %v", err)
	}
	if !strings.Contains(out, "Title") || !strings.Contains(out, "body text") {
		t.Errorf("rendered output lost content: %q", out)
	}
}
