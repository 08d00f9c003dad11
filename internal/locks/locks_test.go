package locks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ms-salesreport/internal/logger"
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
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

// exclusive runs workers that each take the lock and check nobody else is
// inside the critical section.
func exclusive(t *testing.T, l Locker) {
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), ReportKey(1))
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestLocalIsExclusive(t *testing.T) {
	l := NewLocal()
	exclusive(t, l)
	assert.Equal(t, 0, l.held())
}

func TestLocalKeysAreIndependent(t *testing.T) {
	l := NewLocal()
	unlock1, err := l.Lock(context.Background(), ReportKey(1))
	require.NoError(t, err)
	defer unlock1()

	unlock2, err := l.Lock(context.Background(), ReportKey(2))
	require.NoError(t, err)
	unlock2()
}

func TestLocalLockHonoursContext(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), ActiveKey)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, ActiveKey)
	assert.ErrorIs(t, err, models.ErrStorageTimeout)

	unlock()
	unlock()
	assert.Equal(t, 0, l.held())
}

func TestRedisIsExclusive(t *testing.T) {
	client, _ := setupTestRedis(t)
	exclusive(t, NewRedis(client, 5*time.Second, 5*time.Second, logger.NewNopLogger()))
}

func TestRedisLockTimesOutWhileHeld(t *testing.T) {
	client, mr := setupTestRedis(t)
	l := NewRedis(client, 5*time.Second, 60*time.Millisecond, logger.NewNopLogger())

	unlock, err := l.Lock(context.Background(), ReportKey(9))
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:report:9"))

	_, err = l.Lock(context.Background(), ReportKey(9))
	assert.ErrorIs(t, err, models.ErrStorageTimeout)

	unlock()
	assert.False(t, mr.Exists("lock:report:9"))
}

func TestRedisUnlockKeepsForeignOwner(t *testing.T) {
	client, mr := setupTestRedis(t)
	l := NewRedis(client, time.Second, 0, logger.NewNopLogger())

	unlock, err := l.Lock(context.Background(), ReportKey(3))
	require.NoError(t, err)

	// TTL expires and another process takes the lock.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("lock:report:3", "someone-else"))

	unlock()
	got, err := mr.Get("lock:report:3")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
