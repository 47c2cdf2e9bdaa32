package market

import (
	"sort"

	"github.com/bobmcallan/elida-portal/internal/models"
	"github.com/shopspring/decimal"
)

// Position is a portfolio entry valued at its latest quote.
type Position struct {
	Entry       models.PortfolioEntry `json:"entry"`
	Quote       *models.MarketData    `json:"quote,omitempty"`
	CostBasis   *decimal.Decimal      `json:"cost_basis,omitempty"`
	MarketValue *decimal.Decimal      `json:"market_value,omitempty"`
	Gain        *decimal.Decimal      `json:"gain,omitempty"`
	GainPct     *decimal.Decimal      `json:"gain_pct,omitempty"`
}

// Total sums the fully valued positions quoted in one currency.
type Total struct {
	Currency    string          `json:"currency"`
	CostBasis   decimal.Decimal `json:"cost_basis"`
	MarketValue decimal.Decimal `json:"market_value"`
	Gain        decimal.Decimal `json:"gain"`
}

// Summary totals positions that could be fully valued. Totals holds one
// entry per quote currency. The flat cost basis, market value and gain are
// only set when every valued position shares a currency; amounts in
// different currencies are never added together.
type Summary struct {
	Positions   []Position      `json:"positions"`
	Totals      []Total         `json:"totals"`
	CostBasis   decimal.Decimal `json:"cost_basis"`
	MarketValue decimal.Decimal `json:"market_value"`
	Gain        decimal.Decimal `json:"gain"`
	Currency    string          `json:"currency,omitempty"`
}

// MixedCurrency reports whether valued positions span several currencies.
func (s Summary) MixedCurrency() bool {
	return len(s.Totals) > 1
}

// Value pairs entries with quotes by ticker. Values that need shares, buy
// price or a quote are left nil when those are missing.
func Value(entries []models.PortfolioEntry, quotes []QuoteResult) Summary {
	byTicker := make(map[string]*models.MarketData, len(quotes))
	for _, q := range quotes {
		if q.Quote != nil {
			byTicker[q.Ticker] = q.Quote
		}
	}

	sum := Summary{Positions: make([]Position, 0, len(entries)), Totals: []Total{}}
	totals := map[string]*Total{}
	for _, e := range entries {
		p := Position{Entry: e, Quote: byTicker[e.Ticker]}

		if cost, ok := e.CostBasis(); ok {
			p.CostBasis = &cost
		}
		if p.Quote != nil && e.Shares != nil {
			mv := e.Shares.Mul(decimal.NewFromFloat(p.Quote.Price)).Round(4)
			p.MarketValue = &mv
		}
		if p.CostBasis != nil && p.MarketValue != nil {
			gain := p.MarketValue.Sub(*p.CostBasis)
			p.Gain = &gain
			if !p.CostBasis.IsZero() {
				pct := gain.Div(*p.CostBasis).Mul(decimal.NewFromInt(100)).Round(2)
				p.GainPct = &pct
			}
			t, ok := totals[p.Quote.Currency]
			if !ok {
				t = &Total{Currency: p.Quote.Currency}
				totals[p.Quote.Currency] = t
			}
			t.CostBasis = t.CostBasis.Add(*p.CostBasis)
			t.MarketValue = t.MarketValue.Add(*p.MarketValue)
			t.Gain = t.Gain.Add(gain)
		}
		sum.Positions = append(sum.Positions, p)
	}

	for _, t := range totals {
		sum.Totals = append(sum.Totals, *t)
	}
	sort.Slice(sum.Totals, func(i, j int) bool { return sum.Totals[i].Currency < sum.Totals[j].Currency })
	if len(sum.Totals) == 1 {
		t := sum.Totals[0]
		sum.Currency, sum.CostBasis, sum.MarketValue, sum.Gain = t.Currency, t.CostBasis, t.MarketValue, t.Gain
	}
	return sum
}
