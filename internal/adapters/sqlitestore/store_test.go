package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyramidbot/internal/adapters/logger"
	"pyramidbot/internal/ports"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(Config{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: logger.NewStdLogger(logger.LevelError),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_OrderSizeRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.OrderSize(ctx, "ns", "STRK")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, store.SaveOrderSize(ctx, "ns", "STRK", 113.5))
	size, err := store.OrderSize(ctx, "ns", "STRK")
	require.NoError(t, err)
	assert.Equal(t, 113.5, size)

	// Saving again overwrites in place.
	require.NoError(t, store.SaveOrderSize(ctx, "ns", "STRK", 42))
	size, err = store.OrderSize(ctx, "ns", "STRK")
	require.NoError(t, err)
	assert.Equal(t, 42.0, size)

	require.NoError(t, store.DeleteOrderSize(ctx, "ns", "STRK"))
	_, err = store.OrderSize(ctx, "ns", "STRK")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestStore_DeleteMissingRecordIsNoError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assert.NoError(t, store.DeleteOrderSize(ctx, "ns", "STRK"))
	assert.NoError(t, store.DeleteStatus(ctx, "ns", "STRK"))
	assert.NoError(t, store.DeletePurchasePrices(ctx, "ns", "STRK"))
}

func TestStore_StatusRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Status(ctx, "ns", "STRK")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, store.SaveStatus(ctx, "ns", "STRK", "error"))
	status, err := store.Status(ctx, "ns", "STRK")
	require.NoError(t, err)
	assert.Equal(t, "error", status)

	require.NoError(t, store.DeleteStatus(ctx, "ns", "STRK"))
	_, err = store.Status(ctx, "ns", "STRK")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestStore_PurchasePricesAppendPreservesOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	prices, err := store.PurchasePrices(ctx, "ns", "STRK")
	require.NoError(t, err)
	assert.Empty(t, prices)

	require.NoError(t, store.AppendPurchasePrice(ctx, "ns", "STRK", 0.0682))
	require.NoError(t, store.AppendPurchasePrice(ctx, "ns", "STRK", 0.06))
	require.NoError(t, store.AppendPurchasePrice(ctx, "ns", "STRK", 0.055))

	prices, err = store.PurchasePrices(ctx, "ns", "STRK")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.0682, 0.06, 0.055}, prices)

	require.NoError(t, store.DeletePurchasePrices(ctx, "ns", "STRK"))
	prices, err = store.PurchasePrices(ctx, "ns", "STRK")
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestStore_RecordsAreScopedByNamespaceAndAsset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveOrderSize(ctx, "tenant1", "STRK", 10))
	require.NoError(t, store.SaveOrderSize(ctx, "tenant2", "STRK", 20))
	require.NoError(t, store.SaveOrderSize(ctx, "tenant1", "BTC", 30))

	size, err := store.OrderSize(ctx, "tenant1", "STRK")
	require.NoError(t, err)
	assert.Equal(t, 10.0, size)

	size, err = store.OrderSize(ctx, "tenant2", "STRK")
	require.NoError(t, err)
	assert.Equal(t, 20.0, size)

	// Deleting one tenant's record leaves the others alone.
	require.NoError(t, store.DeleteOrderSize(ctx, "tenant1", "STRK"))
	_, err = store.OrderSize(ctx, "tenant1", "STRK")
	assert.ErrorIs(t, err, ports.ErrNotFound)
	size, err = store.OrderSize(ctx, "tenant1", "BTC")
	require.NoError(t, err)
	assert.Equal(t, 30.0, size)
}

func TestStore_SaveAlarmCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assert.NoError(t, store.SaveAlarmCount(ctx, "ns", "STRK", 3))
	assert.NoError(t, store.SaveAlarmCount(ctx, "ns", "STRK", 5))
}

func TestDecodePrices(t *testing.T) {
	assert.Equal(t, []float64{1.5, 2}, decodePrices(`[1.5, 2]`))
	// Malformed entries are dropped, not fatal.
	assert.Equal(t, []float64{1.5}, decodePrices(`[1.5, "oops", null]`))
	assert.Empty(t, decodePrices(`not json`))
}
