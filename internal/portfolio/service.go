// Package portfolio manages the tracked tickers, the watchlist and the merge
// of scan results into them.
package portfolio

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/bobmcallan/elida-portal/internal/client"
	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/interfaces"
	"github.com/bobmcallan/elida-portal/internal/models"
	"github.com/shopspring/decimal"
)

// tickerPattern accepts exchange-suffixed symbols such as TCS.NS, BRK-B and ^GSPC.
var tickerPattern = regexp.MustCompile(`^[A-Z0-9^][A-Z0-9.\-=^]{0,19}$`)

// Service implements portfolio and watchlist operations over the store.
type Service struct {
	store  interfaces.PortfolioStorage
	scans  interfaces.ScanStorage
	logger *common.Logger
	now    func() time.Time
}

// NewService creates a portfolio service.
func NewService(store interfaces.PortfolioStorage, scans interfaces.ScanStorage, logger *common.Logger) *Service {
	return &Service{
		store:  store,
		scans:  scans,
		logger: logger.OrSilent(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ValidateTicker normalizes a ticker and rejects malformed symbols.
func ValidateTicker(ticker string) (string, error) {
	n := models.NormalizeTicker(ticker)
	if n == "" {
		return "", &client.Error{Kind: client.KindValidation, Op: "ticker", Message: "ticker is required"}
	}
	if !tickerPattern.MatchString(n) {
		return "", &client.Error{Kind: client.KindValidation, Op: "ticker", Message: fmt.Sprintf("invalid ticker %q", ticker)}
	}
	return n, nil
}

// AddInput is the user-supplied part of a portfolio entry.
type AddInput struct {
	Ticker   string
	Shares   *decimal.Decimal
	BuyPrice *decimal.Decimal
}

// Add creates an entry, or updates shares and buy price of an existing one
// while keeping its analysis.
func (s *Service) Add(ctx context.Context, in AddInput) (*models.PortfolioEntry, error) {
	ticker, err := ValidateTicker(in.Ticker)
	if err != nil {
		return nil, err
	}
	if in.Shares != nil && in.Shares.IsNegative() {
		return nil, &client.Error{Kind: client.KindValidation, Op: "add ticker", Message: "shares must not be negative"}
	}
	if in.BuyPrice != nil && in.BuyPrice.IsNegative() {
		return nil, &client.Error{Kind: client.KindValidation, Op: "add ticker", Message: "buy price must not be negative"}
	}

	var saved models.PortfolioEntry
	err = s.store.UpdateEntries(ctx, func(entries []models.PortfolioEntry) ([]models.PortfolioEntry, error) {
		saved = models.PortfolioEntry{
			Ticker:  ticker,
			Status:  models.EntryStatusPending,
			AddedAt: s.now(),
		}
		for _, e := range entries {
			if e.Ticker == ticker {
				saved = e
				break
			}
		}
		if in.Shares != nil {
			saved.Shares = in.Shares
		}
		if in.BuyPrice != nil {
			saved.BuyPrice = in.BuyPrice
		}
		return []models.PortfolioEntry{saved}, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("ticker", ticker).Msg("portfolio entry saved")
	return &saved, nil
}

// Remove deletes an entry. A missing ticker is interfaces.ErrNotFound.
func (s *Service) Remove(ctx context.Context, ticker string) error {
	n, err := ValidateTicker(ticker)
	if err != nil {
		return err
	}
	if err := s.store.DeleteEntry(ctx, n); err != nil {
		return err
	}
	s.logger.Info().Str("ticker", n).Msg("portfolio entry removed")
	return nil
}

// List returns the portfolio. Entries covered by the outstanding scan are
// reported as analyzing; the stored entries are not changed.
func (s *Service) List(ctx context.Context) ([]models.PortfolioEntry, error) {
	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	if s.scans == nil {
		return entries, nil
	}
	req, err := s.scans.GetScanRequest(ctx)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return entries, nil
	}
	inScan := make(map[string]bool, len(req.Tickers))
	for _, t := range req.Tickers {
		inScan[t] = true
	}
	for i := range entries {
		if inScan[entries[i].Ticker] {
			entries[i].Status = models.EntryStatusAnalyzing
		}
	}
	return entries, nil
}

// Tickers returns the portfolio's tickers in list order.
func (s *Service) Tickers(ctx context.Context) ([]string, error) {
	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	tickers := make([]string, 0, len(entries))
	for _, e := range entries {
		tickers = append(tickers, e.Ticker)
	}
	return tickers, nil
}

// ApplyResults merges scan results into the portfolio in one transaction.
// Every entry whose ticker has a result becomes analyzed with that result's
// score, recommendation and risk; other entries are left as they are. The
// merge overwrites by ticker. at stamps results that carry no timestamp,
// except when the entry already holds the same analysis: it keeps its
// analyzed_at, so replaying results leaves the portfolio unchanged. The count
// is of entries that matched a result.
func (s *Service) ApplyResults(ctx context.Context, results []models.ScanResult, at time.Time) (int, error) {
	byTicker := make(map[string]models.ScanResult, len(results))
	for _, r := range results {
		byTicker[models.NormalizeTicker(r.Ticker)] = r
	}

	var changed []models.PortfolioEntry
	matched := 0
	err := s.store.UpdateEntries(ctx, func(entries []models.PortfolioEntry) ([]models.PortfolioEntry, error) {
		changed = changed[:0]
		matched = 0
		for _, e := range entries {
			r, ok := byTicker[e.Ticker]
			if !ok {
				continue
			}
			matched++
			if r.AnalyzedAt == nil && sameAnalysis(e, r) {
				continue
			}
			analyzedAt := at.UTC()
			if r.AnalyzedAt != nil {
				analyzedAt = r.AnalyzedAt.UTC()
			}
			e.Status = models.EntryStatusAnalyzed
			e.Score = r.Score
			e.Recommendation = r.Recommendation
			e.Risk = r.Risk
			e.AnalyzedAt = &analyzedAt
			changed = append(changed, e)
		}
		return changed, nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info().Int("results", len(results)).Int("matched", matched).Int("written", len(changed)).Msg("scan results merged")
	return matched, nil
}

// sameAnalysis reports whether e already holds r's analysis.
func sameAnalysis(e models.PortfolioEntry, r models.ScanResult) bool {
	if e.Status != models.EntryStatusAnalyzed || e.AnalyzedAt == nil {
		return false
	}
	if (e.Score == nil) != (r.Score == nil) || (e.Score != nil && *e.Score != *r.Score) {
		return false
	}
	return e.Recommendation == r.Recommendation && e.Risk == r.Risk
}

// MarkFailed sets the entries of tickers that got no result to error.
func (s *Service) MarkFailed(ctx context.Context, tickers []string, results []models.ScanResult) (int, error) {
	got := make(map[string]bool, len(results))
	for _, r := range results {
		got[models.NormalizeTicker(r.Ticker)] = true
	}
	failed := make(map[string]bool, len(tickers))
	for _, t := range models.NormalizeTickers(tickers) {
		if !got[t] {
			failed[t] = true
		}
	}

	var changed []models.PortfolioEntry
	err := s.store.UpdateEntries(ctx, func(entries []models.PortfolioEntry) ([]models.PortfolioEntry, error) {
		changed = changed[:0]
		for _, e := range entries {
			if failed[e.Ticker] && e.Status != models.EntryStatusError {
				e.Status = models.EntryStatusError
				changed = append(changed, e)
			}
		}
		return changed, nil
	})
	if err != nil {
		return 0, err
	}
	if len(changed) > 0 {
		s.logger.Warn().Int("entries", len(changed)).Msg("scan failed, entries marked as error")
	}
	return len(changed), nil
}

// Watchlist returns the watched tickers.
func (s *Service) Watchlist(ctx context.Context) (*models.Watchlist, error) {
	return s.store.GetWatchlist(ctx)
}

// Watch appends a ticker to the watchlist. Watching a ticker twice keeps one
// copy in its original position.
func (s *Service) Watch(ctx context.Context, ticker string) (*models.Watchlist, error) {
	n, err := ValidateTicker(ticker)
	if err != nil {
		return nil, err
	}
	return s.store.UpdateWatchlist(ctx, func(w *models.Watchlist) error {
		if !w.Contains(n) {
			w.Tickers = append(w.Tickers, n)
		}
		return nil
	})
}

// Unwatch removes a ticker from the watchlist. A ticker that is not watched
// is interfaces.ErrNotFound.
func (s *Service) Unwatch(ctx context.Context, ticker string) (*models.Watchlist, error) {
	n, err := ValidateTicker(ticker)
	if err != nil {
		return nil, err
	}
	return s.store.UpdateWatchlist(ctx, func(w *models.Watchlist) error {
		kept := w.Tickers[:0]
		found := false
		for _, t := range w.Tickers {
			if t == n {
				found = true
				continue
			}
			kept = append(kept, t)
		}
		if !found {
			return fmt.Errorf("watchlist ticker %s: %w", n, interfaces.ErrNotFound)
		}
		w.Tickers = kept
		return nil
	})
}
