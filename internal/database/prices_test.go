package database

import (
	"context"
	"path/filepath"
	"testing"

	"crypto-trade-bot-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *PriceStore {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return NewPriceStore(db)
}

func TestPriceStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "bitcoin", 1700000000, 42000))
	require.NoError(t, store.StoreBatch(ctx, []models.Price{
		{Symbol: "bitcoin", Timestamp: 1700000060, Value: 42100},
		{Symbol: "bitcoin", Timestamp: 1700000120, Value: 42200},
		{Symbol: "ethereum", Timestamp: 1700000060, Value: 2200},
	}))

	latest, err := store.Latest(ctx, "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000120), latest.Timestamp)
	assert.InDelta(t, 42200.0, latest.Value, 1e-9)

	prices, err := store.Range(ctx, "bitcoin", 1700000000, 1700000060)
	require.NoError(t, err)
	require.Len(t, prices, 2)
	// Oldest first, other symbols excluded.
	assert.Equal(t, int64(1700000000), prices[0].Timestamp)
	assert.Equal(t, int64(1700000060), prices[1].Timestamp)
}

func TestPriceStoreLatestUnknownSymbol(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Latest(context.Background(), "dogecoin")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestPriceStoreEmptyBatchIsNoop(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.StoreBatch(context.Background(), nil))
}
