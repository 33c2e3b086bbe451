// Package redis wraps go-redis for the JSON values stored by the web server.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Laisky/errors/v2"
	gredis "github.com/Laisky/go-redis/v2"
	"github.com/redis/go-redis/v9"
)

// ErrNil is returned by GetJSON when the key does not exist.
var ErrNil = redis.Nil

// Client is the subset of redis commands used by DB.
type Client interface {
	GetItem(ctx context.Context, key string) (string, error)
	SetItem(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// utilsClient adapts go-redis utils to Client
type utilsClient struct {
	u *gredis.Utils
}

func (c utilsClient) GetItem(ctx context.Context, key string) (string, error) {
	return c.u.GetItem(ctx, key)
}

func (c utilsClient) SetItem(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.u.SetItem(ctx, key, value, ttl)
}

func (c utilsClient) Del(ctx context.Context, key string) error {
	return c.u.Del(ctx, key).Err()
}

// DB is a wrapper for go-redis
type DB struct {
	cli Client
}

// NewDB creates a new DB instance
func NewDB(opt *redis.Options) *DB {
	rdb := redis.NewClient(opt)
	return &DB{cli: utilsClient{u: gredis.NewRedisUtils(rdb)}}
}

// NewDBWithClient wraps an existing client.
func NewDBWithClient(cli Client) *DB {
	return &DB{cli: cli}
}

// GetJSON decodes the value under key into out.
func (db *DB) GetJSON(ctx context.Context, key string, out any) error {
	raw, err := db.cli.GetItem(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNil
		}
		return errors.Wrapf(err, "get %q", key)
	}
	if raw == "" {
		return ErrNil
	}

	if err = json.Unmarshal([]byte(raw), out); err != nil {
		return errors.Wrapf(err, "decode %q", key)
	}

	return nil
}

// SetJSON stores value under key as JSON. A zero ttl keeps it forever.
func (db *DB) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode %q", key)
	}

	if err = db.cli.SetItem(ctx, key, string(raw), ttl); err != nil {
		return errors.Wrapf(err, "set %q", key)
	}

	return nil
}

// Del removes keys.
func (db *DB) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := db.cli.Del(ctx, key); err != nil {
			return errors.Wrapf(err, "del %q", key)
		}
	}

	return nil
}
