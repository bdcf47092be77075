package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpha-tick-bot-go/internal/models"
)

func sampleBook() *models.PositionBook {
	book := models.NewPositionBook()
	book.RiskDistance[101] = 0.0020
	book.RiskDistance[102] = 3.6
	book.TP1Done[101] = true
	book.TP2Done[101] = true
	return book
}

func TestBadgerRoundTrip(t *testing.T) {
	repo, err := NewBadgerRepository(t.TempDir())
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.SaveBook(sampleBook()))

	loaded, err := repo.LoadBook()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.InDelta(t, 0.0020, loaded.RiskDistance[101], 1e-12)
	assert.InDelta(t, 3.6, loaded.RiskDistance[102], 1e-12)
	assert.True(t, loaded.TP1Done[101])
	assert.True(t, loaded.TP2Done[101])
	assert.False(t, loaded.TP1Done[102])
}

func TestBadgerFreshDatabaseLoadsNil(t *testing.T) {
	repo, err := NewBadgerRepository(t.TempDir())
	require.NoError(t, err)
	defer repo.Close()

	book, err := repo.LoadBook()
	require.NoError(t, err)
	assert.Nil(t, book, "no saved book means a fresh start, not an error")
}

func TestBadgerOverwriteKeepsLatest(t *testing.T) {
	repo, err := NewBadgerRepository(t.TempDir())
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.SaveBook(sampleBook()))

	updated := models.NewPositionBook()
	updated.RiskDistance[7] = 1.0
	require.NoError(t, repo.SaveBook(updated))

	loaded, err := repo.LoadBook()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Len(t, loaded.RiskDistance, 1)
	assert.InDelta(t, 1.0, loaded.RiskDistance[7], 1e-12)
}

func TestBadgerSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	repo, err := NewBadgerRepository(dir)
	require.NoError(t, err)
	require.NoError(t, repo.SaveBook(sampleBook()))
	require.NoError(t, repo.Close())

	reopened, err := NewBadgerRepository(dir)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.LoadBook()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.InDelta(t, 0.0020, loaded.RiskDistance[101], 1e-12)
}

func TestMemoryRepositoryIsolatesSnapshots(t *testing.T) {
	repo := NewMemoryRepository()
	defer repo.Close()

	book := sampleBook()
	require.NoError(t, repo.SaveBook(book))

	// Mutations after the save must not leak into the stored snapshot.
	book.RiskDistance[999] = 42

	loaded, err := repo.LoadBook()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.NotContains(t, loaded.RiskDistance, int64(999))
}

func TestMemoryRepositoryFreshLoadIsNil(t *testing.T) {
	repo := NewMemoryRepository()
	book, err := repo.LoadBook()
	require.NoError(t, err)
	assert.Nil(t, book)
}
