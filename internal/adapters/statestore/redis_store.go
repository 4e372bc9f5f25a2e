package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/jobwatch/internal/config"
	"github.com/frostdev-ops/jobwatch/internal/core/alerts"
)

// RedisStore persists engine snapshots under a single Redis key so a
// restarted server resumes with its active alerts and dedup fingerprints
type RedisStore struct {
	client *redis.Client
	logger *logrus.Logger
	key    string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(cfg *config.StateConfig, logger *logrus.Logger) (*RedisStore, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("state persistence is not enabled in configuration")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"addr": cfg.Addr,
		"db":   cfg.DB,
		"key":  cfg.Key,
		"ttl":  cfg.TTL,
	}).Info("Redis state store initialized successfully")

	return newRedisStore(rdb, cfg.Key, cfg.TTL, logger), nil
}

func newRedisStore(client *redis.Client, key string, ttl time.Duration, logger *logrus.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger, key: key, ttl: ttl}
}

// Save stores the snapshot, replacing any previous one. A zero TTL keeps
// the key until it is overwritten.
func (r *RedisStore) Save(ctx context.Context, snapshot *alerts.Snapshot) error {
	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		r.logger.WithError(err).WithField("key", r.key).Error("Failed to store engine snapshot in Redis")
		return fmt.Errorf("failed to store snapshot in Redis: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"key":    r.key,
		"alerts": len(snapshot.Alerts),
		"bytes":  len(data),
	}).Debug("Engine snapshot stored in Redis")

	return nil
}

// Load returns the stored snapshot, or nil when none has been saved
func (r *RedisStore) Load(ctx context.Context) (*alerts.Snapshot, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		r.logger.WithError(err).WithField("key", r.key).Error("Failed to retrieve engine snapshot from Redis")
		return nil, fmt.Errorf("failed to retrieve snapshot from Redis: %w", err)
	}
	return decodeSnapshot(data)
}

// Clear removes the stored snapshot
func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot from Redis: %w", err)
	}
	return nil
}

// Ping checks the Redis connection
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func encodeSnapshot(snapshot *alerts.Snapshot) ([]byte, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("snapshot is nil")
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize snapshot: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) (*alerts.Snapshot, error) {
	var snapshot alerts.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to deserialize snapshot: %w", err)
	}
	if snapshot.Version != alerts.SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snapshot.Version)
	}
	return &snapshot, nil
}
