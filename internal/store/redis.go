package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisStore is the production Store backend.
type RedisStore struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisStore(client *redis.Client, logger *logrus.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger,
	}
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to set key in Redis")
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

func (s *RedisStore) SetKeepTTL(ctx context.Context, key, value string) error {
	// XX: only write if the key exists, KEEPTTL: leave the expiry alone.
	err := s.client.SetArgs(ctx, key, value, redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Err()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to update key in Redis")
		return fmt.Errorf("failed to update key: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to get key from Redis")
		return "", fmt.Errorf("failed to get key: %w", err)
	}
	return value, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to delete key from Redis")
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}
