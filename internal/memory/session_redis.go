package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	agenterrors "github.com/rfplab/proposal-agent/internal/errors"
)

const sessionKeyPrefix = "session:"

// RedisSessionStore keeps session snapshots in Redis with a TTL, for
// deployments where sessions should survive process restarts without a
// shared filesystem.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore connects to Redis using the given URL
// (redis://host:port/db) and verifies the connection with a ping.
func NewRedisSessionStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisSessionStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, agenterrors.NewStorageError("connect", redisURL, err)
	}

	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisSessionStore{client: client, ttl: ttl}, nil
}

// Save stores the snapshot under session:<id>, refreshing the TTL.
func (r *RedisSessionStore) Save(ctx context.Context, snap *SessionSnapshot) error {
	if snap == nil || snap.SessionID == "" {
		return agenterrors.NewValidationError("session", "session id is required")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return agenterrors.NewStorageError("save_session", snap.SessionID, err)
	}
	if err := r.client.Set(ctx, r.key(snap.SessionID), data, r.ttl).Err(); err != nil {
		return agenterrors.NewStorageError("save_session", snap.SessionID, err)
	}
	return nil
}

// Load returns the snapshot for a session, or (nil, nil) when the key is absent.
func (r *RedisSessionStore) Load(ctx context.Context, sessionID string) (*SessionSnapshot, error) {
	data, err := r.client.Get(ctx, r.key(sessionID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, agenterrors.NewStorageError("load_session", sessionID, err)
	}

	var snap SessionSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, agenterrors.NewStorageError("load_session", sessionID, err)
	}
	return &snap, nil
}

// Delete removes a session's snapshot.
func (r *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return agenterrors.NewStorageError("delete_session", sessionID, err)
	}
	return nil
}

// Ping verifies the Redis connection is still alive.
func (r *RedisSessionStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (r *RedisSessionStore) Close() error { return r.client.Close() }

func (r *RedisSessionStore) key(sessionID string) string {
	return sessionKeyPrefix + sessionID
}
