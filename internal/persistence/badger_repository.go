package persistence

import (
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v3"

	"alpha-tick-bot-go/internal/models"
)

// badgerRepository is the BadgerDB implementation of the StateRepository.
type badgerRepository struct {
	db      *badger.DB
	bookKey []byte
}

// NewBadgerRepository opens (or creates) the database at dbPath.
func NewBadgerRepository(dbPath string) (StateRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is noisy at INFO level; errors still surface
	// through the returned values.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &badgerRepository{
		db:      db,
		bookKey: []byte("position_book"),
	}, nil
}

// SaveBook marshals the book to JSON and writes it under a single key.
// The write happens inside one transaction, so a crash mid-save leaves the
// previous book intact.
func (r *badgerRepository) SaveBook(book *models.PositionBook) error {
	data, err := json.Marshal(book)
	if err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(r.bookKey, data)
	})
}

// LoadBook loads the position book from storage. A missing key means a
// fresh start and returns (nil, nil).
func (r *badgerRepository) LoadBook() (*models.PositionBook, error) {
	var book models.PositionBook

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(r.bookKey)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("position book value is empty in database")
			}
			return json.Unmarshal(val, &book)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &book, nil
}

// Close gracefully closes the connection to the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}
