package locks

import (
	"context"
	"fmt"
	"time"

	"ms-salesreport/internal/logger"
	"ms-salesreport/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	lockPrefix   = "lock:"
	pollInterval = 25 * time.Millisecond
)

// unlockScript deletes the lock only if the caller still owns it, so a holder
// whose TTL expired cannot release someone else's lock.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Redis is a SETNX lock with a per-acquisition owner token and a TTL that
// frees the key if the holder dies.
type Redis struct {
	Client *redis.Client
	Logger *logger.Logger
	TTL    time.Duration
	Wait   time.Duration
}

func NewRedis(client *redis.Client, ttl, wait time.Duration, log *logger.Logger) *Redis {
	return &Redis{Client: client, Logger: log, TTL: ttl, Wait: wait}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := lockPrefix + key
	owner := uuid.NewString()

	if r.Wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Wait)
		defer cancel()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ok, err := r.Client.SetNX(ctx, redisKey, owner, r.TTL).Result()
		if err != nil {
			return nil, models.StorageError("lock "+key, err)
		}
		if ok {
			return func() { r.unlock(redisKey, owner) }, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, models.StorageError(fmt.Sprintf("lock %s held elsewhere", key), ctx.Err())
		}
	}
}

func (r *Redis) unlock(redisKey, owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := unlockScript.Run(ctx, r.Client, []string{redisKey}, owner).Err(); err != nil && err != redis.Nil {
		r.Logger.Warn("LOCK", fmt.Sprintf("Failed to release %s: %v", redisKey, err))
	}
}
