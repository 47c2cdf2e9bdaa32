// Package models defines the data structures shared by the ELIDA client.
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EntryStatus is the analysis state of a portfolio entry.
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusAnalyzing EntryStatus = "analyzing"
	EntryStatusAnalyzed  EntryStatus = "analyzed"
	EntryStatusError     EntryStatus = "error"
)

// Risk is the backend's risk bucket for a ticker.
type Risk string

const (
	RiskLow    Risk = "Low"
	RiskMedium Risk = "Medium"
	RiskHigh   Risk = "High"
)

// NeedsWarning reports whether a risk level should be flagged to the user.
// Low risk is the only level that is not flagged; unknown levels are.
func (r Risk) NeedsWarning() bool {
	return r != "" && !strings.EqualFold(string(r), string(RiskLow))
}

// NormalizeTicker trims and upper-cases a ticker symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// NormalizeTickers normalizes a list, dropping blanks and duplicates while
// keeping first-seen order.
func NormalizeTickers(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		n := NormalizeTicker(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// PortfolioEntry is one tracked ticker with its latest scan outcome.
type PortfolioEntry struct {
	Ticker         string           `json:"ticker" badgerhold:"key"`
	Shares         *decimal.Decimal `json:"shares,omitempty"`
	BuyPrice       *decimal.Decimal `json:"buy_price,omitempty"`
	Status         EntryStatus      `json:"status"`
	Score          *float64         `json:"score,omitempty"`
	Recommendation string           `json:"recommendation,omitempty"`
	Risk           Risk             `json:"risk,omitempty"`
	AddedAt        time.Time        `json:"added_at"`
	AnalyzedAt     *time.Time       `json:"analyzed_at,omitempty"`
}

// CostBasis returns shares * buy price, or false if either is unknown.
func (e *PortfolioEntry) CostBasis() (decimal.Decimal, bool) {
	if e.Shares == nil || e.BuyPrice == nil {
		return decimal.Zero, false
	}
	return e.Shares.Mul(*e.BuyPrice), true
}

// Watchlist is the ordered list of watched tickers.
type Watchlist struct {
	Tickers   []string  `json:"tickers"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Contains reports whether the normalized ticker is on the list.
func (w *Watchlist) Contains(ticker string) bool {
	n := NormalizeTicker(ticker)
	for _, t := range w.Tickers {
		if t == n {
			return true
		}
	}
	return false
}
