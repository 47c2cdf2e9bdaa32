package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/config"
	"github.com/bobmcallan/elida-portal/internal/models"
	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

// BadgerDB manages the Badger database connection. It is the single writer
// for all persisted client state: writes are serialized by mu and observers
// are told about them once the transaction has committed.
type BadgerDB struct {
	store  *badgerhold.Store
	logger *common.Logger
	config *config.BadgerConfig

	mu sync.Mutex

	subMu  sync.Mutex
	subs   map[int]chan models.StoreEvent
	nextID int
}

// NewBadgerDB creates a new Badger database connection.
func NewBadgerDB(logger *common.Logger, cfg *config.BadgerConfig) (*BadgerDB, error) {
	logger = logger.OrSilent()

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	logger.Debug().Str("path", cfg.Path).Msg("opening Badger database")

	options := badgerhold.DefaultOptions
	options.Dir = cfg.Path
	options.ValueDir = cfg.Path
	options.Logger = nil // Disable default badger logger
	options.Encoder = json.Marshal
	options.Decoder = json.Unmarshal

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug().Str("path", cfg.Path).Msg("Badger database initialized")

	return &BadgerDB{
		store:  store,
		logger: logger,
		config: cfg,
		subs:   make(map[int]chan models.StoreEvent),
	}, nil
}

// Store returns the underlying badgerhold store.
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// update runs fn in one read-write transaction while holding the write lock
// and publishes events after a successful commit.
func (b *BadgerDB) update(ctx context.Context, fn func(tx *badgerdb.Txn) error, events ...models.StoreEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	err := b.store.Badger().Update(fn)
	b.mu.Unlock()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, evt := range events {
		if evt.At.IsZero() {
			evt.At = now
		}
		b.publish(evt)
	}
	return nil
}

// view runs fn in a read-only transaction.
func (b *BadgerDB) view(ctx context.Context, fn func(tx *badgerdb.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.store.Badger().View(fn)
}

// Subscribe registers a listener for committed changes. Events are dropped
// for a subscriber whose buffer is full.
func (b *BadgerDB) Subscribe(buffer int) (<-chan models.StoreEvent, func()) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan models.StoreEvent, buffer)

	b.subMu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.subMu.Unlock()

	return ch, func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
}

func (b *BadgerDB) publish(evt models.StoreEvent) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.logger.Debug().Int("subscriber", id).Str("topic", string(evt.Topic)).Msg("subscriber buffer full, event dropped")
		}
	}
}

// Close closes the database connection and all subscriptions.
func (b *BadgerDB) Close() error {
	b.subMu.Lock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	b.subMu.Unlock()

	if b.store != nil {
		return b.store.Close()
	}
	return nil
}
