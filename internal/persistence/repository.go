package persistence

import "alpha-tick-bot-go/internal/models"

// StateRepository defines the interface for position-book persistence.
// It abstracts the underlying storage mechanism (e.g., BadgerDB, in-memory)
// from the lifecycle manager.
type StateRepository interface {
	// SaveBook atomically saves the entire position book.
	SaveBook(book *models.PositionBook) error

	// LoadBook loads the position book from storage.
	// If no book is found, it should return (nil, nil).
	LoadBook() (*models.PositionBook, error)

	// Close gracefully closes the connection to the database.
	Close() error
}
