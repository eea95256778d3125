package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// WakeChannel is the pub/sub channel the worker listens on for early sweeps.
const WakeChannel = "settlement:wake"

// NewRedis creates a new Redis client
// Returns nil if redisURL is empty (Redis is optional)
func NewRedis(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		log.Warn().Msg("Redis URL not configured, running without Redis")
		return nil, nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	opt.PoolSize = 20
	opt.MinIdleConns = 2
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, err
	}

	log.Info().Msg("Connected to Redis")
	return client, nil
}

// CloseRedis closes the Redis connection
func CloseRedis(client *redis.Client) {
	if client != nil {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing Redis connection")
		} else {
			log.Info().Msg("Redis connection closed")
		}
	}
}

// releaseScript deletes the lock only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker keeps overlapping sweep invocations from running concurrently.
// Correctness never depends on it: a nil client always grants the lock.
type Locker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLocker(rdb *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Locker{rdb: rdb, ttl: ttl}
}

// Acquire tries to take the named lock. The returned release func is safe to
// call when the lock was not acquired.
func (l *Locker) Acquire(ctx context.Context, name string) (func(), bool, error) {
	noop := func() {}
	if l == nil || l.rdb == nil {
		return noop, true, nil
	}

	key := "settlement:lock:" + name
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return noop, false, err
	}
	if !ok {
		return noop, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
			log.Warn().Err(err).Str("lock", name).Msg("Failed to release sweep lock")
		}
	}
	return release, true, nil
}

// PublishWake nudges running workers to sweep now.
func PublishWake(ctx context.Context, rdb *redis.Client, job string) {
	if rdb == nil {
		return
	}
	if err := rdb.Publish(ctx, WakeChannel, job).Err(); err != nil {
		log.Warn().Err(err).Str("job", job).Msg("Failed to publish worker wake-up")
	}
}

// SubscribeWakeups forwards wake messages to wake without blocking.
func SubscribeWakeups(ctx context.Context, rdb *redis.Client, wake chan<- string) {
	if rdb == nil {
		return
	}
	sub := rdb.Subscribe(ctx, WakeChannel)
	defer func() { _ = sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			select {
			case wake <- msg.Payload:
			default:
			}
		}
	}
}
