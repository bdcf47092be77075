package persistence

import (
	"sync"

	"alpha-tick-bot-go/internal/models"
)

// memoryRepository keeps the position book in process memory. Replay runs
// use it so a backtest never touches the on-disk database.
type memoryRepository struct {
	mu   sync.Mutex
	book *models.PositionBook
}

// NewMemoryRepository returns an empty in-memory StateRepository.
func NewMemoryRepository() StateRepository {
	return &memoryRepository{}
}

func (r *memoryRepository) SaveBook(book *models.PositionBook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Deep copy via the maps so later mutations do not leak into the
	// stored snapshot.
	copied := models.NewPositionBook()
	for k, v := range book.RiskDistance {
		copied.RiskDistance[k] = v
	}
	for k, v := range book.TP1Done {
		copied.TP1Done[k] = v
	}
	for k, v := range book.TP2Done {
		copied.TP2Done[k] = v
	}
	r.book = copied
	return nil
}

func (r *memoryRepository) LoadBook() (*models.PositionBook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.book, nil
}

func (r *memoryRepository) Close() error {
	return nil
}
