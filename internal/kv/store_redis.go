package kv

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	dErrors "doorman/pkg/domain-errors"
)

var kvOpDurationMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "doorman_kv_op_duration_ms",
	Help:    "Latency of key-value backend operations in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
}, []string{"op"})

// RedisStore is the Redis-backed Store. This is the production
// implementation; group state survives process restarts with it.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client. Client lifecycle is managed by the
// caller.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func observe(op string, start time.Time) {
	kvOpDurationMs.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}

// Get returns the value for key, treating redis.Nil as plain absence.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	defer observe("get", time.Now())

	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, dErrors.Wrap(err, dErrors.CodeUnavailable, "kv get")
	}
	return v, true, nil
}

// Set writes key with an optional expiry. go-redis maps a zero ttl to no
// expiry, which matches NoTTL.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	defer observe("set", time.Now())

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "kv set")
	}
	return nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	defer observe("delete", time.Now())

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "kv delete")
	}
	return nil
}

// Exists reports key presence.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	defer observe("exists", time.Now())

	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "kv exists")
	}
	return n > 0, nil
}
