package redis

import (
	"context"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"ms-salesreport/internal/clock"
	"ms-salesreport/internal/counters"
	"ms-salesreport/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func costaRica(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("America/Costa_Rica")
	require.NoError(t, err)
	return loc
}

func TestIncrementIsAtomicUnderConcurrency(t *testing.T) {
	client, _ := setupTestRedis(t)
	fc := clock.Fake(time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC))
	store := NewStore(client, counters.NewCalendar(fc, costaRica(t)))
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Increment(ctx, "a - b-c-06:00", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	counts, err := store.GetAllForToday(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, int64(workers), counts[0].Value)
	assert.Equal(t, "2025-03-01", counts[0].ServiceDay)
}

func TestIncrementReturnsRunningTotalAndSetsTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	fc := clock.Fake(time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC))
	store := NewStore(client, counters.NewCalendar(fc, costaRica(t)))
	ctx := context.Background()

	c, err := store.Increment(ctx, "k", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.Value)

	c, err = store.Increment(ctx, "k", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), c.Value)

	assert.Equal(t, dayTTL, mr.TTL("counters:2025-03-01"))
}

func TestNewServiceDayStartsAtZero(t *testing.T) {
	client, _ := setupTestRedis(t)
	// 23:30 local on March 1st.
	fc := clock.Fake(time.Date(2025, 3, 2, 5, 30, 0, 0, time.UTC))
	store := NewStore(client, counters.NewCalendar(fc, costaRica(t)))
	ctx := context.Background()

	_, err := store.Increment(ctx, "k", 4)
	require.NoError(t, err)

	fc.Advance(time.Hour)

	counts, err := store.GetAllForToday(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)

	c, err := store.Increment(ctx, "k", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Value)
	assert.Equal(t, "2025-03-02", c.ServiceDay)
}

func TestIncrementValidatesAndSurfacesOutage(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewStore(client, counters.NewCalendar(nil, nil))
	ctx := context.Background()

	_, err := store.Increment(ctx, "k", 0)
	assert.ErrorIs(t, err, models.ErrValidation)

	mr.Close()
	_, err = store.Increment(ctx, "k", 1)
	assert.ErrorIs(t, err, models.ErrStorage)
}
