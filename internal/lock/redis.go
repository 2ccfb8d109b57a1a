package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var errLockHeld = errors.New("lock held")

// RedisOptions configures a Redis locker.
type RedisOptions struct {
	// Prefix is prepended to every key.
	Prefix string

	// TTL bounds how long a crashed holder can keep a lock.
	// Default: 30s
	TTL time.Duration

	// MaxWait bounds how long Lock retries before returning ErrTimeout.
	// Default: 5s
	MaxWait time.Duration
}

// Redis is a distributed locker using SET NX with a random token and a
// compare-and-delete release.
type Redis struct {
	client redis.UniversalClient
	script *redis.Script
	opts   RedisOptions
}

// NewRedis creates a Redis backed locker.
func NewRedis(client redis.UniversalClient, opts RedisOptions) *Redis {
	if opts.TTL == 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.MaxWait == 0 {
		opts.MaxWait = 5 * time.Second
	}

	return &Redis{
		client: client,
		script: redis.NewScript(releaseScript),
		opts:   opts,
	}
}

// Lock retries with exponential backoff until the key is acquired, ctx is done
// or MaxWait elapses.
func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := r.opts.Prefix + key
	token := uuid.NewString()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (bool, error) {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.opts.TTL).Result()
		if err != nil {
			return false, backoff.Permanent(err)
		}
		if !ok {
			return false, errLockHeld
		}
		return true, nil
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(r.opts.MaxWait),
	)
	if err != nil {
		if errors.Is(err, errLockHeld) {
			return nil, ErrTimeout
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()

			if err := r.script.Run(releaseCtx, r.client, []string{redisKey}, token).Err(); err != nil {
				// The TTL frees the key eventually.
				log.Warn().Err(err).Str("key", redisKey).Msg("Failed to release lock")
			}
		})
	}, nil
}
