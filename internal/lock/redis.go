package lock

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another holder is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every process using the same Redis. A lock
// expires after TTL even if its holder dies.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
	lg     *zap.Logger
}

var _ Locker = (*Redis)(nil)

// NewRedis returns a Redis locker. Keys are stored as prefix+key.
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration, lg *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		retry:  50 * time.Millisecond,
		lg:     lg,
	}
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	name := r.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, name, token, r.ttl).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "lock %s", name)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ErrNotAcquired, "%s: %v", name, ctx.Err())
		case <-ticker.C:
		}
	}

	return func() {
		// Release even when the caller's ctx is already canceled.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.client, []string{name}, token).Err(); err != nil {
			r.lg.Warn("Release lock", zap.String("key", name), zap.Error(err))
		}
	}, nil
}
