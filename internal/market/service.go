// Package market fetches quote snapshots for several tickers at once and
// values portfolio positions against them.
package market

import (
	"context"
	"time"

	"github.com/bobmcallan/elida-portal/internal/cache"
	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/models"
	"golang.org/x/sync/errgroup"
)

// maxConcurrent bounds parallel quote requests to the backend.
const maxConcurrent = 4

// QuoteSource is the part of the ELIDA client the service needs.
type QuoteSource interface {
	MarketData(ctx context.Context, ticker string) (*models.MarketData, error)
}

// QuoteResult is the quote or error for one ticker.
type QuoteResult struct {
	Ticker string             `json:"ticker"`
	Quote  *models.MarketData `json:"quote,omitempty"`
	Err    error              `json:"-"`
	Error  string             `json:"error,omitempty"`
}

// Service serves cached quotes.
type Service struct {
	source QuoteSource
	quotes *cache.TTLCache[*models.MarketData]
	logger *common.Logger
}

// NewService creates a market service caching quotes for ttl.
func NewService(source QuoteSource, ttl time.Duration, logger *common.Logger) *Service {
	return &Service{
		source: source,
		quotes: cache.New[*models.MarketData](ttl, 512),
		logger: logger.OrSilent(),
	}
}

// Quote returns the quote for one ticker, from cache when fresh.
func (s *Service) Quote(ctx context.Context, ticker string) (*models.MarketData, error) {
	ticker = models.NormalizeTicker(ticker)
	key := cache.MakeKey("quote", ticker)
	if q, ok := s.quotes.Get(key); ok {
		return q, nil
	}

	q, err := s.source.MarketData(ctx, ticker)
	if err != nil {
		return nil, err
	}
	s.quotes.Set(key, q)
	return q, nil
}

// Quotes fetches quotes for tickers concurrently. Each ticker gets its own
// result slot, returned in input order; one failing ticker does not stop the
// others.
func (s *Service) Quotes(ctx context.Context, tickers []string) []QuoteResult {
	tickers = models.NormalizeTickers(tickers)
	results := make([]QuoteResult, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, ticker := range tickers {
		g.Go(func() error {
			q, err := s.Quote(gctx, ticker)
			results[i] = QuoteResult{Ticker: ticker, Quote: q, Err: err}
			if err != nil {
				results[i].Error = err.Error()
				s.logger.Warn().Str("ticker", ticker).Err(err).Msg("quote fetch failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Invalidate drops cached quotes, all of them when ticker is empty.
func (s *Service) Invalidate(ticker string) {
	if ticker == "" {
		s.quotes.InvalidatePrefix("quote:")
		return
	}
	s.quotes.InvalidatePrefix(cache.MakeKey("quote", models.NormalizeTicker(ticker)))
}
