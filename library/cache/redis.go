package cache

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"

	rdb "github.com/Laisky/laisky-blog-web/library/db/redis"
)

// Redis stores entries in redis under a key prefix
type Redis struct {
	db     *rdb.DB
	prefix string
	ttl    time.Duration
}

// NewRedis creates a cache whose keys start with prefix.
// ttl is used when Set is called without one.
func NewRedis(db *rdb.DB, prefix string, ttl time.Duration) (*Redis, error) {
	if db == nil {
		return nil, errors.New("redis db is nil")
	}
	if ttl <= 0 {
		return nil, errors.Errorf("cache ttl must be positive, got %s", ttl)
	}

	return &Redis{db: db, prefix: prefix, ttl: ttl}, nil
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, key string, out any) (bool, error) {
	if err := r.db.GetJSON(ctx, r.prefix+key, out); err != nil {
		if errors.Is(err, rdb.ErrNil) {
			return false, nil
		}
		return false, errors.WithStack(err)
	}

	return true, nil
}

// Set implements Cache.
func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.ttl
	}

	return r.db.SetJSON(ctx, r.prefix+key, value, ttl)
}

// Del implements Cache.
func (r *Redis) Del(ctx context.Context, key string) error {
	return r.db.Del(ctx, r.prefix+key)
}
