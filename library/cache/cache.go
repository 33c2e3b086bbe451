// Package cache stores JSON values with a time to live.
//
// Memory keeps entries in process, Redis shares them between replicas.
package cache

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
)

// Cache is a JSON value store
type Cache interface {
	// Get decodes the value under key into out and reports whether it was found.
	Get(ctx context.Context, key string, out any) (bool, error)
	// Set stores value under key. A zero ttl uses the cache default.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Del removes key, missing keys are ignored.
	Del(ctx context.Context, key string) error
}

// GetOrLoad reads key from c and falls back to load on a miss,
// writing the loaded value back with ttl.
// Cache failures are logged and never fail the call.
func GetOrLoad[T any](ctx context.Context,
	c Cache,
	logger logSDK.Logger,
	key string,
	ttl time.Duration,
	load func(ctx context.Context) (T, error),
) (T, error) {
	var cached T
	found, err := c.Get(ctx, key, &cached)
	switch {
	case err != nil:
		logger.Warn("read cache", zap.Error(err), zap.String("key", key))
	case found:
		logger.Debug("cache hit", zap.String("key", key))
		return cached, nil
	}

	loaded, err := load(ctx)
	if err != nil {
		var zero T
		return zero, errors.Wrapf(err, "load %q", key)
	}

	if err = c.Set(ctx, key, loaded, ttl); err != nil {
		logger.Warn("write cache", zap.Error(err), zap.String("key", key))
	}

	return loaded, nil
}
