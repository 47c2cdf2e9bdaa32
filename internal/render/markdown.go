// Package render turns portfolio, scan and analysis data into markdown and
// renders it for terminals.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bobmcallan/elida-portal/internal/market"
	"github.com/bobmcallan/elida-portal/internal/models"
	"github.com/charmbracelet/glamour"
)

// Terminal renders markdown with glamour for a terminal of the given width.
func Terminal(md string, width int) (string, error) {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create renderer: %w", err)
	}
	return r.Render(md)
}

func score(s *float64) string {
	if s == nil {
		return "-"
	}
	return strconv.FormatFloat(*s, 'f', -1, 64)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// riskLabel marks levels that need the user's attention.
func riskLabel(r models.Risk) string {
	if r == "" {
		return "-"
	}
	if r.NeedsWarning() {
		return "⚠ " + string(r)
	}
	return string(r)
}

// cell escapes pipes inside table cells.
func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// PortfolioMarkdown renders valued portfolio positions.
func PortfolioMarkdown(sum market.Summary) string {
	var b strings.Builder
	b.WriteString("# Portfolio\n\n")
	if len(sum.Positions) == 0 {
		b.WriteString("No tickers yet. Add one to start tracking it.\n")
		return b.String()
	}

	b.WriteString("| Ticker | Status | Score | Recommendation | Risk | Shares | Buy price | Price | Value | Gain |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|---|---|\n")
	for _, p := range sum.Positions {
		e := p.Entry
		currency, price := "", "-"
		if p.Quote != nil {
			currency = p.Quote.Currency
			price = strconv.FormatFloat(p.Quote.Price, 'f', 2, 64)
		}
		gain := MoneyPtr(p.Gain, currency)
		if p.GainPct != nil {
			gain += " (" + p.GainPct.StringFixed(2) + "%)"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
			cell(e.Ticker), e.Status, score(e.Score), cell(dash(e.Recommendation)), riskLabel(e.Risk),
			Decimal(e.Shares), MoneyPtr(e.BuyPrice, currency), price, MoneyPtr(p.MarketValue, currency), gain)
	}

	if len(sum.Totals) > 0 {
		b.WriteString("\n")
	}
	for _, t := range sum.Totals {
		label := ""
		if sum.MixedCurrency() {
			label = t.Currency + " "
		}
		fmt.Fprintf(&b, "**%sCost basis:** %s  **Value:** %s  **Gain:** %s\n", label,
			Money(t.CostBasis, t.Currency), Money(t.MarketValue, t.Currency), Money(t.Gain, t.Currency))
	}
	return b.String()
}

// EntriesMarkdown renders entries without market data.
func EntriesMarkdown(entries []models.PortfolioEntry) string {
	return PortfolioMarkdown(market.Value(entries, nil))
}

// WatchlistMarkdown renders the watchlist with optional quotes.
func WatchlistMarkdown(w *models.Watchlist, quotes []market.QuoteResult) string {
	var b strings.Builder
	b.WriteString("# Watchlist\n\n")
	if w == nil || len(w.Tickers) == 0 {
		b.WriteString("The watchlist is empty.\n")
		return b.String()
	}
	byTicker := make(map[string]market.QuoteResult, len(quotes))
	for _, q := range quotes {
		byTicker[q.Ticker] = q
	}
	b.WriteString("| Ticker | Price | Change |\n|---|---|---|\n")
	for _, t := range w.Tickers {
		price, change := "-", "-"
		if q, ok := byTicker[t]; ok && q.Quote != nil {
			price = strconv.FormatFloat(q.Quote.Price, 'f', 2, 64)
			change = fmt.Sprintf("%+.2f (%+.2f%%)", q.Quote.Change, q.Quote.ChangePercent)
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", cell(t), price, change)
	}
	return b.String()
}

// ScanMarkdown renders a scan's state.
func ScanMarkdown(state models.ScanState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Scan %s\n\n", state.RequestID)
	fmt.Fprintf(&b, "**Status:** %s  **Progress:** %d%%\n", state.Status, state.Progress)
	if state.Error != "" {
		fmt.Fprintf(&b, "\n> %s\n", state.Error)
	}
	writeResults(&b, state.Results)
	return b.String()
}

// ScanOutcomeMarkdown renders a finished scan and how the merge went.
func ScanOutcomeMarkdown(state models.ScanState, updated, failed int) string {
	return ScanMarkdown(state) + fmt.Sprintf("\n%d entries updated, %d marked as error.\n", updated, failed)
}

func writeResults(w io.Writer, results []models.ScanResult) {
	if len(results) == 0 {
		return
	}
	fmt.Fprint(w, "\n| Ticker | Score | Recommendation | Risk |\n|---|---|---|---|\n")
	for _, r := range results {
		fmt.Fprintf(w, "| %s | %s | %s | %s |\n", cell(r.Ticker), score(r.Score), cell(dash(r.Recommendation)), riskLabel(r.Risk))
	}
}

// AnalysisMarkdown renders a full analysis.
func AnalysisMarkdown(a *models.Analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", a.Symbol)
	fmt.Fprintf(&b, "**Score:** %s  **Recommendation:** %s  **Risk:** %s\n", score(a.Score), dash(a.Recommendation), riskLabel(a.Risk))
	if a.Summary != "" {
		fmt.Fprintf(&b, "\n%s\n", a.Summary)
	}
	if len(a.Agents) > 0 {
		b.WriteString("\n## Agents\n\n| Agent | Score | Summary |\n|---|---|---|\n")
		for _, ag := range a.Agents {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", cell(ag.Name), score(ag.Score), cell(strings.ReplaceAll(dash(ag.Summary), "\n", " ")))
		}
	}
	return b.String()
}

// QuoteMarkdown renders one quote.
func QuoteMarkdown(q *models.MarketData) string {
	var b strings.Builder
	title := q.Ticker
	if q.Name != "" {
		title += " (" + q.Name + ")"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "**Price:** %s %s  **Change:** %+.2f (%+.2f%%)\n",
		strconv.FormatFloat(q.Price, 'f', 2, 64), q.Currency, q.Change, q.ChangePercent)
	return b.String()
}

// ComparisonMarkdown renders a two-stock comparison.
func ComparisonMarkdown(c *models.Comparison) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s vs %s\n\n", c.TickerA, c.TickerB)
	if c.Winner != "" {
		fmt.Fprintf(&b, "**Preferred:** %s\n\n", c.Winner)
	}
	b.WriteString(dash(c.Narrative))
	b.WriteString("\n")
	return b.String()
}

// HistoryMarkdown renders saved analyses.
func HistoryMarkdown(entries []models.HistoryEntry) string {
	var b strings.Builder
	b.WriteString("# History\n\n")
	if len(entries) == 0 {
		b.WriteString("No saved analyses.\n")
		return b.String()
	}
	b.WriteString("| ID | Symbol | Score | Recommendation | Saved |\n|---|---|---|---|---|\n")
	for _, e := range entries {
		saved := "-"
		if !e.CreatedAt.IsZero() {
			saved = e.CreatedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", cell(e.ID), cell(e.Symbol), score(e.Score), cell(dash(e.Recommendation)), saved)
	}
	return b.String()
}

// ProfileMarkdown renders the investor profile.
func ProfileMarkdown(p *models.InvestorProfile) string {
	var b strings.Builder
	b.WriteString("# Investor profile\n\n")
	fmt.Fprintf(&b, "- **Risk tolerance:** %s\n", dash(p.RiskTolerance))
	fmt.Fprintf(&b, "- **Horizon:** %s\n", dash(p.InvestmentHorizon))
	fmt.Fprintf(&b, "- **Goals:** %s\n", dash(strings.Join(p.Goals, ", ")))
	fmt.Fprintf(&b, "- **Excluded sectors:** %s\n", dash(strings.Join(p.ExcludedSectors, ", ")))
	fmt.Fprintf(&b, "- **Ethical exclusions:** %s\n", dash(strings.Join(p.EthicalExclusions, ", ")))
	return b.String()
}

// ChatMarkdown renders a chatbot reply with its sources.
func ChatMarkdown(r *models.ChatReply) string {
	text := r.Reply
	if len(r.Sources) > 0 {
		text += "\n\nSources:\n- " + strings.Join(r.Sources, "\n- ")
	}
	return text
}
