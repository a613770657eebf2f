package store

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
)

// Ensure RedisAdapter implements Store.
var _ Store = (*RedisAdapter)(nil)

// NewRedisAdapter creates a new RedisAdapter.
func NewRedisAdapter(c *redis.Client) *RedisAdapter {
	if c == nil {
		panic("nil store client")
	}
	return &RedisAdapter{c: c}
}

// RedisAdapter adapts a Redis client to the Store interface.
//
// The adapter owns the connection: Connect must complete successfully
// before any other method is called, and Close releases the connection.
type RedisAdapter struct {
	c *redis.Client

	connectOnce sync.Once
	connectErr  error
}

// Connect verifies the connection to the store.
//
// Connect is safe to call more than once; subsequent calls return the
// result of the first instead of redialing.
func (r *RedisAdapter) Connect(ctx context.Context) error {
	r.connectOnce.Do(func() {
		err := r.c.WithContext(ctx).Ping().Err()
		r.connectErr = errors.Wrap(err, "unable to reach store")
	})
	return r.connectErr
}

// Close releases the store connection.
func (r *RedisAdapter) Close() error {
	return errors.WithStack(r.c.Close())
}

func bytesToString(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func stringToBytes(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, corruptError{errors.Wrap(err, "unable to decode stored value")}
	}
	return b, nil
}

// ListPush inserts data at the head of the Redis list stored at key.
func (r *RedisAdapter) ListPush(ctx context.Context, key string, data []byte) error {
	if len(key) == 0 {
		return errors.New("invalid key")
	}
	client := r.c.WithContext(ctx)
	err := client.LPush(key, bytesToString(data)).Err()
	return errors.Wrapf(err, "error pushing to Redis list %q", key)
}

// ListPop atomically removes and returns the tail of the Redis list
// stored at key.
//
// An empty or missing list yields (nil, nil).
func (r *RedisAdapter) ListPop(ctx context.Context, key string) ([]byte, error) {
	if len(key) == 0 {
		return nil, errors.New("invalid key")
	}
	client := r.c.WithContext(ctx)
	v, err := client.RPop(key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "error popping from Redis list %q", key)
	}
	data, err := stringToBytes(v)
	if err != nil {
		return nil, errors.Wrapf(err, "malformed value in Redis list %q", key)
	}
	return data, nil
}

// ListRange returns the full contents of the Redis list stored at key,
// head first, without modifying it.
func (r *RedisAdapter) ListRange(ctx context.Context, key string) ([][]byte, error) {
	if len(key) == 0 {
		return nil, errors.New("invalid key")
	}
	client := r.c.WithContext(ctx)
	values, err := client.LRange(key, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "error reading Redis list %q", key)
	}
	out := make([][]byte, 0, len(values))
	for _, v := range values {
		data, err := stringToBytes(v)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed value in Redis list %q", key)
		}
		out = append(out, data)
	}
	return out, nil
}

// HashSet sets field in the Redis hash stored at key, overwriting any
// previous value.
func (r *RedisAdapter) HashSet(ctx context.Context, key, field string, data []byte) error {
	if len(key) == 0 || len(field) == 0 {
		return errors.New("invalid key or field")
	}
	client := r.c.WithContext(ctx)
	err := client.HSet(key, field, bytesToString(data)).Err()
	return errors.Wrapf(err, "error storing field %q in Redis hash %q", field, key)
}

// HashGetAll returns every field of the Redis hash stored at key.
func (r *RedisAdapter) HashGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	if len(key) == 0 {
		return nil, errors.New("invalid key")
	}
	client := r.c.WithContext(ctx)
	fields, err := client.HGetAll(key).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "error reading Redis hash %q", key)
	}
	out := make(map[string][]byte, len(fields))
	for field, v := range fields {
		data, err := stringToBytes(v)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed value in field %q of Redis hash %q", field, key)
		}
		out[field] = data
	}
	return out, nil
}
