package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"ms-salesreport/internal/counters"
	"ms-salesreport/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	hashPrefix = "counters:"
	// A day's hash outlives its day so late readers around midnight still
	// see it; it is never read once the service day has moved on.
	dayTTL = 48 * time.Hour
)

// Store keeps one Redis hash per service day. HINCRBY makes every increment
// an atomic add on the server.
type Store struct {
	Client   *redis.Client
	Calendar counters.Calendar
}

func NewStore(client *redis.Client, calendar counters.Calendar) *Store {
	return &Store{Client: client, Calendar: calendar}
}

func dayKey(day string) string {
	return hashPrefix + day
}

func (s *Store) Increment(ctx context.Context, key string, qty int64) (models.Count, error) {
	if err := counters.CheckIncrement(key, qty); err != nil {
		return models.Count{}, err
	}
	day := s.Calendar.Today()
	hash := dayKey(day)

	var incr *redis.IntCmd
	_, err := s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, hash, key, qty)
		pipe.Expire(ctx, hash, dayTTL)
		return nil
	})
	if err != nil {
		return models.Count{}, models.StorageError(fmt.Sprintf("redis increment %q", key), err)
	}

	return models.Count{
		Key:        key,
		ServiceDay: day,
		Value:      incr.Val(),
		UpdatedAt:  s.Calendar.Now(),
	}, nil
}

func (s *Store) GetAllForToday(ctx context.Context) ([]models.Count, error) {
	day := s.Calendar.Today()
	values, err := s.Client.HGetAll(ctx, dayKey(day)).Result()
	if err != nil {
		return nil, models.StorageError("redis read counters for "+day, err)
	}

	counts := make([]models.Count, 0, len(values))
	for key, raw := range values {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis counter %q holds %q: %v: %w", key, raw, err, models.ErrStorage)
		}
		counts = append(counts, models.Count{Key: key, ServiceDay: day, Value: value})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Key < counts[j].Key })
	return counts, nil
}
