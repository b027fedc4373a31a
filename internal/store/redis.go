package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/focusflow/splitd/internal/metrics"
	"github.com/focusflow/splitd/internal/models"
)

const redisKeyPrefix = "splitd:tree:"

// RedisStore keeps tree snapshots as JSON values in Redis. A zero TTL keeps
// snapshots forever.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string, ttl time.Duration, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl, logger: logger}, nil
}

func (s *RedisStore) Save(ctx context.Context, snap *models.TreeSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	err = s.client.Set(ctx, redisKeyPrefix+snap.TaskID, data, s.ttl).Err()
	s.record("save", err)
	if err != nil {
		return models.WrapError(models.ErrCodeServiceUnavailable, err, "save snapshot %s", snap.TaskID)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, taskID string) (*models.TreeSnapshot, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+taskID).Bytes()
	if errors.Is(err, redis.Nil) {
		s.record("load", nil)
		return nil, models.NewError(models.ErrCodeNotFound, "task %s not found", taskID)
	}
	s.record("load", err)
	if err != nil {
		return nil, models.WrapError(models.ErrCodeServiceUnavailable, err, "load snapshot %s", taskID)
	}
	var snap models.TreeSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", taskID, err)
	}
	return &snap, nil
}

func (s *RedisStore) Delete(ctx context.Context, taskID string) error {
	err := s.client.Del(ctx, redisKeyPrefix+taskID).Err()
	s.record("delete", err)
	if err != nil {
		return models.WrapError(models.ErrCodeServiceUnavailable, err, "delete snapshot %s", taskID)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) record(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.StoreOperations.WithLabelValues("redis", op, status).Inc()
}
