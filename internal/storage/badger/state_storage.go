package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/interfaces"
	"github.com/bobmcallan/elida-portal/internal/models"
	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

// singletonKey is the key of records that exist at most once.
const singletonKey = "current"

type sessionRecord struct {
	Key     string `badgerhold:"key"`
	Session models.Session
}

type watchlistRecord struct {
	Key       string `badgerhold:"key"`
	Watchlist models.Watchlist
}

type scanRecord struct {
	Key     string `badgerhold:"key"`
	Request models.ScanRequest
}

type settingsRecord struct {
	UserID    string `badgerhold:"key"`
	Values    map[string]string
	UpdatedAt time.Time
}

// StateStorage implements the session, portfolio, scan and settings
// storage interfaces on one BadgerDB.
type StateStorage struct {
	db     *BadgerDB
	logger *common.Logger
}

// NewStateStorage creates the typed state storage.
func NewStateStorage(db *BadgerDB, logger *common.Logger) *StateStorage {
	return &StateStorage{db: db, logger: logger}
}

func notFound(err error) bool {
	return errors.Is(err, badgerhold.ErrNotFound)
}

// --- session ---

// GetSession returns the stored session, or nil when signed out.
func (s *StateStorage) GetSession(ctx context.Context) (*models.Session, error) {
	var rec sessionRecord
	err := s.db.view(ctx, func(tx *badgerdb.Txn) error {
		return s.db.Store().TxGet(tx, singletonKey, &rec)
	})
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return &rec.Session, nil
}

// SaveSession replaces the stored session.
func (s *StateStorage) SaveSession(ctx context.Context, sess *models.Session) error {
	if !sess.Valid() {
		return errors.New("session has no token")
	}
	rec := sessionRecord{Key: singletonKey, Session: *sess}
	err := s.db.update(ctx, func(tx *badgerdb.Txn) error {
		return s.db.Store().TxUpsert(tx, singletonKey, &rec)
	}, models.StoreEvent{Topic: models.TopicSession})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// ClearSession removes the stored session. Clearing an absent session is not
// an error.
func (s *StateStorage) ClearSession(ctx context.Context) error {
	err := s.db.update(ctx, func(tx *badgerdb.Txn) error {
		return s.db.Store().TxDelete(tx, singletonKey, sessionRecord{})
	}, models.StoreEvent{Topic: models.TopicSession})
	if err != nil && !notFound(err) {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// --- portfolio ---

// sortEntries orders entries by when they were added, then by ticker.
func sortEntries(entries []models.PortfolioEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].AddedAt.Equal(entries[j].AddedAt) {
			return entries[i].AddedAt.Before(entries[j].AddedAt)
		}
		return entries[i].Ticker < entries[j].Ticker
	})
}

// ListEntries returns all portfolio entries in the order they were added.
func (s *StateStorage) ListEntries(ctx context.Context) ([]models.PortfolioEntry, error) {
	var entries []models.PortfolioEntry
	err := s.db.view(ctx, func(tx *badgerdb.Txn) error {
		return s.db.Store().TxFind(tx, &entries, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolio: %w", err)
	}
	if entries == nil {
		entries = []models.PortfolioEntry{}
	}
	sortEntries(entries)
	return entries, nil
}

// GetEntry returns one entry or interfaces.ErrNotFound.
func (s *StateStorage) GetEntry(ctx context.Context, ticker string) (*models.PortfolioEntry, error) {
	ticker = models.NormalizeTicker(ticker)
	var entry models.PortfolioEntry
	err := s.db.view(ctx, func(tx *badgerdb.Txn) error {
		return s.db.Store().TxGet(tx, ticker, &entry)
	})
	if notFound(err) {
		return nil, fmt.Errorf("portfolio entry %s: %w", ticker, interfaces.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read portfolio entry %s: %w", ticker, err)
	}
	return &entry, nil
}

// DeleteEntry removes an entry or returns interfaces.ErrNotFound.
func (s *StateStorage) DeleteEntry(ctx context.Context, ticker string) error {
	ticker = models.NormalizeTicker(ticker)
	err := s.db.update(ctx, func(tx *badgerdb.Txn) error {
		return s.db.Store().TxDelete(tx, ticker, models.PortfolioEntry{})
	}, models.StoreEvent{Topic: models.TopicPortfolio, Key: ticker})
	if notFound(err) {
		return fmt.Errorf("portfolio entry %s: %w", ticker, interfaces.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete portfolio entry %s: %w", ticker, err)
	}
	return nil
}

// UpdateEntries reads every entry, lets fn decide which to write, and upserts
// them, all in one transaction.
func (s *StateStorage) UpdateEntries(ctx context.Context, fn func([]models.PortfolioEntry) ([]models.PortfolioEntry, error)) error {
	var changed []models.PortfolioEntry
	err := s.db.update(ctx, func(tx *badgerdb.Txn) error {
		var entries []models.PortfolioEntry
		if err := s.db.Store().TxFind(tx, &entries, nil); err != nil {
			return err
		}
		sortEntries(entries)

		var err error
		changed, err = fn(entries)
		if err != nil {
			return err
		}
		for i := range changed {
			changed[i].Ticker = models.NormalizeTicker(changed[i].Ticker)
			if changed[i].Ticker == "" {
				return errors.New("portfolio entry has no ticker")
			}
			if err := s.db.Store().TxUpsert(tx, changed[i].Ticker, &changed[i]); err != nil {
				return err
			}
		}
		return nil
	}, models.StoreEvent{Topic: models.TopicPortfolio})
	if err != nil {
		return fmt.Errorf("failed to update portfolio: %w", err)
	}
	return nil
}

// GetWatchlist returns the watchlist, empty when never written.
func (s *StateStorage) GetWatchlist(ctx context.Context) (*models.Watchlist, error) {
	var rec watchlistRecord
	err := s.db.view(ctx, func(tx *badgerdb.Txn) error {
		return s.db.Store().TxGet(tx, singletonKey, &rec)
	})
	if err != nil && !notFound(err) {
		return nil, fmt.Errorf("failed to read watchlist: %w", err)
	}
	if rec.Watchlist.Tickers == nil {
		rec.Watchlist.Tickers = []string{}
	}
	return &rec.Watchlist, nil
}

// UpdateWatchlist applies fn to the watchlist in one transaction and returns
// the stored result.
func (s *StateStorage) UpdateWatchlist(ctx context.Context, fn func(*models.Watchlist) error) (*models.Watchlist, error) {
	var rec watchlistRecord
	err := s.db.update(ctx, func(tx *badgerdb.Txn) error {
		rec = watchlistRecord{}
		if err := s.db.Store().TxGet(tx, singletonKey, &rec); err != nil && !notFound(err) {
			return err
		}
		rec.Key = singletonKey
		if err := fn(&rec.Watchlist); err != nil {
			return err
		}
		rec.Watchlist.Tickers = models.NormalizeTickers(rec.Watchlist.Tickers)
		rec.Watchlist.UpdatedAt = time.Now().UTC()
		return s.db.Store().TxUpsert(tx, singletonKey, &rec)
	}, models.StoreEvent{Topic: models.TopicWatchlist})
	if err != nil {
		return nil, fmt.Errorf("failed to update watchlist: %w", err)
	}
	return &rec.Watchlist, nil
}

// --- scan ---

// GetScanRequest returns the outstanding scan, or nil.
func (s *StateStorage) GetScanRequest(ctx context.Context) (*models.ScanRequest, error) {
	var rec scanRecord
	err := s.db.view(ctx, func(tx *badgerdb.Txn) error {
		return s.db.Store().TxGet(tx, singletonKey, &rec)
	})
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read scan request: %w", err)
	}
	if rec.Request.RequestID == "" {
		return nil, nil
	}
	return &rec.Request, nil
}

// SaveScanRequest stores the outstanding scan.
func (s *StateStorage) SaveScanRequest(ctx context.Context, r *models.ScanRequest) error {
	if r == nil || r.RequestID == "" {
		return errors.New("scan request has no id")
	}
	rec := scanRecord{Key: singletonKey, Request: *r}
	err := s.db.update(ctx, func(tx *badgerdb.Txn) error {
		return s.db.Store().TxUpsert(tx, singletonKey, &rec)
	}, models.StoreEvent{Topic: models.TopicScan, Key: r.RequestID})
	if err != nil {
		return fmt.Errorf("failed to save scan request: %w", err)
	}
	return nil
}

// ClearScanRequest removes the stored scan if it matches requestID, or
// whatever is stored when requestID is empty.
func (s *StateStorage) ClearScanRequest(ctx context.Context, requestID string) error {
	err := s.db.update(ctx, func(tx *badgerdb.Txn) error {
		var rec scanRecord
		if err := s.db.Store().TxGet(tx, singletonKey, &rec); err != nil {
			return err
		}
		if requestID != "" && rec.Request.RequestID != requestID {
			return nil
		}
		return s.db.Store().TxDelete(tx, singletonKey, scanRecord{})
	}, models.StoreEvent{Topic: models.TopicScan, Key: requestID})
	if err != nil && !notFound(err) {
		return fmt.Errorf("failed to clear scan request: %w", err)
	}
	return nil
}

// --- settings ---

// GetSettings returns the settings blob for a user, empty when unset.
func (s *StateStorage) GetSettings(ctx context.Context, userID string) (map[string]string, error) {
	var rec settingsRecord
	err := s.db.view(ctx, func(tx *badgerdb.Txn) error {
		return s.db.Store().TxGet(tx, userID, &rec)
	})
	if err != nil && !notFound(err) {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if rec.Values == nil {
		rec.Values = map[string]string{}
	}
	return rec.Values, nil
}

// SaveSettings replaces the settings blob for a user.
func (s *StateStorage) SaveSettings(ctx context.Context, userID string, values map[string]string) error {
	if userID == "" {
		return errors.New("settings need a user id")
	}
	rec := settingsRecord{UserID: userID, Values: values, UpdatedAt: time.Now().UTC()}
	err := s.db.update(ctx, func(tx *badgerdb.Txn) error {
		return s.db.Store().TxUpsert(tx, userID, &rec)
	}, models.StoreEvent{Topic: models.TopicSettings, Key: userID})
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
