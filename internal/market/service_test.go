package market

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bobmcallan/elida-portal/internal/models"
	"github.com/shopspring/decimal"
)

type fakeSource struct {
	mu       sync.Mutex
	calls    map[string]int
	inFlight int32
	peak     int32
	delay    time.Duration
	prices   map[string]float64
}

func (f *fakeSource) MarketData(ctx context.Context, ticker string) (*models.MarketData, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}

	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[ticker]++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	price, ok := f.prices[ticker]
	if !ok {
		return nil, errors.New("unknown ticker")
	}
	return &models.MarketData{Ticker: ticker, Price: price, Currency: "USD"}, nil
}

func TestQuote_Caches(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"AAPL": 187.5}}
	s := NewService(src, time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		q, err := s.Quote(ctx, "aapl")
		if err != nil {
			t.Fatalf("Quote failed: %v", err)
		}
		if q.Price != 187.5 {
			t.Errorf("unexpected price: %v", q.Price)
		}
	}
	if src.calls["AAPL"] != 1 {
		t.Errorf("expected one backend call, got %d", src.calls["AAPL"])
	}

	s.Invalidate("AAPL")
	if _, err := s.Quote(ctx, "AAPL"); err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if src.calls["AAPL"] != 2 {
		t.Errorf("expected refetch after invalidate, got %d calls", src.calls["AAPL"])
	}
}

func TestQuote_ErrorsAreNotCached(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{}}
	s := NewService(src, time.Minute, nil)

	for i := 0; i < 2; i++ {
		if _, err := s.Quote(context.Background(), "NOPE"); err == nil {
			t.Fatal("expected error")
		}
	}
	if src.calls["NOPE"] != 2 {
		t.Errorf("expected errors to be retried, got %d calls", src.calls["NOPE"])
	}
}

func TestQuotes_OrderAndPartialFailure(t *testing.T) {
	src := &fakeSource{
		delay:  5 * time.Millisecond,
		prices: map[string]float64{"AAPL": 1, "MSFT": 2, "TCS.NS": 3, "NVDA": 4, "AMZN": 5, "GOOG": 6},
	}
	s := NewService(src, time.Minute, nil)

	tickers := []string{"AAPL", "MSFT", "BAD", "TCS.NS", "NVDA", "AMZN", "GOOG", "aapl"}
	results := s.Quotes(context.Background(), tickers)

	want := []string{"AAPL", "MSFT", "BAD", "TCS.NS", "NVDA", "AMZN", "GOOG"}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}
	for i, r := range results {
		if r.Ticker != want[i] {
			t.Errorf("result %d: expected %s, got %s", i, want[i], r.Ticker)
		}
	}
	if results[2].Err == nil || results[2].Error == "" || results[2].Quote != nil {
		t.Errorf("expected BAD to carry an error, got %+v", results[2])
	}
	if results[6].Quote == nil || results[6].Quote.Price != 6 {
		t.Errorf("expected GOOG quote, got %+v", results[6])
	}
	if peak := atomic.LoadInt32(&src.peak); peak > maxConcurrent {
		t.Errorf("expected at most %d concurrent calls, saw %d", maxConcurrent, peak)
	}
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestValue(t *testing.T) {
	entries := []models.PortfolioEntry{
		{Ticker: "AAPL", Shares: dec("10"), BuyPrice: dec("150")},
		{Ticker: "MSFT", Shares: dec("5")},
		{Ticker: "TCS.NS"},
	}
	quotes := []QuoteResult{
		{Ticker: "AAPL", Quote: &models.MarketData{Ticker: "AAPL", Price: 180, Currency: "USD"}},
		{Ticker: "MSFT", Quote: &models.MarketData{Ticker: "MSFT", Price: 400, Currency: "USD"}},
		{Ticker: "TCS.NS", Err: errors.New("down")},
	}

	sum := Value(entries, quotes)
	if len(sum.Positions) != 3 {
		t.Fatalf("expected 3 positions, got %d", len(sum.Positions))
	}

	aapl := sum.Positions[0]
	if !aapl.MarketValue.Equal(decimal.RequireFromString("1800")) || !aapl.Gain.Equal(decimal.RequireFromString("300")) || !aapl.GainPct.Equal(decimal.RequireFromString("20")) {
		t.Errorf("unexpected AAPL valuation: mv %v gain %v pct %v", aapl.MarketValue, aapl.Gain, aapl.GainPct)
	}

	msft := sum.Positions[1]
	if msft.MarketValue == nil || !msft.MarketValue.Equal(decimal.RequireFromString("2000")) {
		t.Errorf("expected MSFT market value, got %v", msft.MarketValue)
	}
	if msft.Gain != nil || msft.CostBasis != nil {
		t.Error("MSFT has no buy price, so no gain")
	}

	if sum.Positions[2].MarketValue != nil {
		t.Error("TCS.NS has no quote or shares")
	}

	if !sum.CostBasis.Equal(decimal.RequireFromString("1500")) || !sum.MarketValue.Equal(decimal.RequireFromString("1800")) || !sum.Gain.Equal(decimal.RequireFromString("300")) {
		t.Errorf("unexpected totals: %+v", sum)
	}
	if sum.Currency != "USD" {
		t.Errorf("expected USD, got %q", sum.Currency)
	}
}

func TestValue_MixedCurrencies(t *testing.T) {
	entries := []models.PortfolioEntry{
		{Ticker: "AAPL", Shares: dec("1"), BuyPrice: dec("150")},
		{Ticker: "TCS.NS", Shares: dec("1"), BuyPrice: dec("3500")},
		{Ticker: "MSFT", Shares: dec("2"), BuyPrice: dec("300")},
	}
	quotes := []QuoteResult{
		{Ticker: "AAPL", Quote: &models.MarketData{Ticker: "AAPL", Price: 200, Currency: "USD"}},
		{Ticker: "TCS.NS", Quote: &models.MarketData{Ticker: "TCS.NS", Price: 4000, Currency: "INR"}},
		{Ticker: "MSFT", Quote: &models.MarketData{Ticker: "MSFT", Price: 400, Currency: "USD"}},
	}

	sum := Value(entries, quotes)
	if !sum.MixedCurrency() {
		t.Fatal("expected a mixed currency summary")
	}
	if len(sum.Totals) != 2 {
		t.Fatalf("expected one total per currency, got %+v", sum.Totals)
	}

	inr, usd := sum.Totals[0], sum.Totals[1]
	if inr.Currency != "INR" || !inr.MarketValue.Equal(decimal.RequireFromString("4000")) || !inr.Gain.Equal(decimal.RequireFromString("500")) {
		t.Errorf("unexpected INR total: %+v", inr)
	}
	if usd.Currency != "USD" || !usd.MarketValue.Equal(decimal.RequireFromString("1000")) || !usd.CostBasis.Equal(decimal.RequireFromString("750")) {
		t.Errorf("unexpected USD total: %+v", usd)
	}

	if sum.Currency != "" || !sum.MarketValue.IsZero() || !sum.CostBasis.IsZero() {
		t.Errorf("amounts in different currencies must not be added: %+v", sum)
	}
}
