// Package interfaces holds the storage contracts shared by services.
package interfaces

import (
	"context"
	"errors"

	"github.com/bobmcallan/elida-portal/internal/models"
)

// ErrNotFound is returned by lookups of a missing key.
var ErrNotFound = errors.New("not found")

// StorageManager provides access to domain-specific storage interfaces.
// Every write goes through one manager, which serializes them and notifies
// subscribers after commit.
type StorageManager interface {
	KeyValueStorage() KeyValueStorage
	SessionStorage() SessionStorage
	PortfolioStorage() PortfolioStorage
	ScanStorage() ScanStorage
	SettingsStorage() SettingsStorage

	// Subscribe returns a channel of change events and a function that
	// unsubscribes and closes it.
	Subscribe(buffer int) (<-chan models.StoreEvent, func())

	DB() interface{}
	Close() error
}

// KeyValueStorage provides basic key-value operations.
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	GetAll(ctx context.Context) (map[string]string, error)
}

// SessionStorage persists the signed-in session.
type SessionStorage interface {
	// GetSession returns nil without error when nobody is signed in.
	GetSession(ctx context.Context) (*models.Session, error)
	SaveSession(ctx context.Context, s *models.Session) error
	ClearSession(ctx context.Context) error
}

// PortfolioStorage persists portfolio entries and the watchlist.
type PortfolioStorage interface {
	ListEntries(ctx context.Context) ([]models.PortfolioEntry, error)
	GetEntry(ctx context.Context, ticker string) (*models.PortfolioEntry, error)
	DeleteEntry(ctx context.Context, ticker string) error

	// UpdateEntries runs fn over all entries in one transaction and upserts
	// the entries fn returns.
	UpdateEntries(ctx context.Context, fn func(entries []models.PortfolioEntry) ([]models.PortfolioEntry, error)) error

	GetWatchlist(ctx context.Context) (*models.Watchlist, error)
	UpdateWatchlist(ctx context.Context, fn func(w *models.Watchlist) error) (*models.Watchlist, error)
}

// ScanStorage persists the outstanding scan request.
type ScanStorage interface {
	// GetScanRequest returns nil without error when no scan is outstanding.
	GetScanRequest(ctx context.Context) (*models.ScanRequest, error)
	SaveScanRequest(ctx context.Context, r *models.ScanRequest) error

	// ClearScanRequest removes the stored request if its id matches
	// requestID, or unconditionally when requestID is empty.
	ClearScanRequest(ctx context.Context, requestID string) error
}

// SettingsStorage persists the free-form per-user settings blob.
type SettingsStorage interface {
	GetSettings(ctx context.Context, userID string) (map[string]string, error)
	SaveSettings(ctx context.Context, userID string, values map[string]string) error
}
