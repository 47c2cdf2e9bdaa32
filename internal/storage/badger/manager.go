package badger

import (
	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/config"
	"github.com/bobmcallan/elida-portal/internal/interfaces"
	"github.com/bobmcallan/elida-portal/internal/models"
)

// Manager implements the StorageManager interface for Badger.
type Manager struct {
	db     *BadgerDB
	kv     interfaces.KeyValueStorage
	state  *StateStorage
	logger *common.Logger
}

// NewManager creates a new Badger storage manager.
func NewManager(logger *common.Logger, cfg *config.BadgerConfig) (interfaces.StorageManager, error) {
	logger = logger.OrSilent()

	db, err := NewBadgerDB(logger, cfg)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:     db,
		kv:     NewKVStorage(db, logger),
		state:  NewStateStorage(db, logger),
		logger: logger,
	}

	logger.Debug().Msg("Badger storage manager initialized")

	return manager, nil
}

// KeyValueStorage returns the KeyValue storage interface.
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// SessionStorage returns the session storage interface.
func (m *Manager) SessionStorage() interfaces.SessionStorage {
	return m.state
}

// PortfolioStorage returns the portfolio and watchlist storage interface.
func (m *Manager) PortfolioStorage() interfaces.PortfolioStorage {
	return m.state
}

// ScanStorage returns the scan request storage interface.
func (m *Manager) ScanStorage() interfaces.ScanStorage {
	return m.state
}

// SettingsStorage returns the settings storage interface.
func (m *Manager) SettingsStorage() interfaces.SettingsStorage {
	return m.state
}

// Subscribe registers for committed change events.
func (m *Manager) Subscribe(buffer int) (<-chan models.StoreEvent, func()) {
	return m.db.Subscribe(buffer)
}

// DB returns the underlying database connection.
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection.
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
