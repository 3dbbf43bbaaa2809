package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"beacon/internal/presence/models"
	"beacon/pkg/platform/sentinel"
)

const presenceKeyPrefix = "presence:"

// Redis stores presence flags as "1"/"0" under presence:<practice>:<patient>, so
// every instance behind a load balancer sees the same state.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

type RedisOption func(*Redis)

// WithTTL expires flags that are not refreshed. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		r.ttl = ttl
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Redis) SetOnline(ctx context.Context, key models.Key, online bool) error {
	value := "0"
	if online {
		value = "1"
	}
	return r.client.Set(ctx, redisKey(key), value, r.ttl).Err()
}

func (r *Redis) Get(ctx context.Context, key models.Key) (bool, error) {
	value, err := r.client.Get(ctx, redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return false, sentinel.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return value == "1", nil
}

func redisKey(key models.Key) string {
	return presenceKeyPrefix + key.Practice + ":" + key.Patient
}
