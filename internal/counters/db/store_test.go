package db_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"ms-salesreport/internal/clock"
	"ms-salesreport/internal/counters"
	counterdb "ms-salesreport/internal/counters/db"
	"ms-salesreport/internal/database"
	"ms-salesreport/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T, fc *clock.FakeClock) *counterdb.Store {
	bunDB, err := database.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })
	return counterdb.NewStore(bunDB, counters.NewCalendar(fc, time.UTC))
}

func TestIncrementAccumulates(t *testing.T) {
	fc := clock.Fake(time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC))
	store := setupTestStore(t, fc)
	ctx := context.Background()

	c, err := store.Increment(ctx, "a - b-c-06:00", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Value)

	c, err = store.Increment(ctx, "a - b-c-06:00", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), c.Value)

	_, err = store.Increment(ctx, "a - b-c-06:00-gold", 1)
	require.NoError(t, err)

	counts, err := store.GetAllForToday(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, "a - b-c-06:00", counts[0].Key)
	assert.Equal(t, int64(5), counts[0].Value)
	assert.Equal(t, "a - b-c-06:00-gold", counts[1].Key)
}

func TestConcurrentIncrementsAreNotLost(t *testing.T) {
	fc := clock.Fake(time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC))
	store := setupTestStore(t, fc)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Increment(ctx, "k", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	counts, err := store.GetAllForToday(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, int64(workers), counts[0].Value)
}

func TestRolloverAndPurge(t *testing.T) {
	fc := clock.Fake(time.Date(2025, 5, 10, 23, 59, 0, 0, time.UTC))
	store := setupTestStore(t, fc)
	ctx := context.Background()

	_, err := store.Increment(ctx, "k", 7)
	require.NoError(t, err)

	fc.Advance(2 * time.Minute)

	counts, err := store.GetAllForToday(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)

	c, err := store.Increment(ctx, "k", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Value)
	assert.Equal(t, "2025-05-11", c.ServiceDay)

	purged, err := store.PurgeBefore(ctx, "2025-05-11")
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestIncrementRejectsBadQuantity(t *testing.T) {
	store := setupTestStore(t, clock.Fake(time.Now()))
	_, err := store.Increment(context.Background(), "k", -1)
	assert.ErrorIs(t, err, models.ErrValidation)
}
