package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the external session-state store consumed by the Manager.
// Implementations provide list-append with trim and archive-with-expiry
// keyed by session id.
type Store interface {
	PushTurn(ctx context.Context, sessionID string, data []byte) error
	Archive(ctx context.Context, sessionID string) error
	Close() error
}

// RedisStoreConfig configures the redis-backed store
type RedisStoreConfig struct {
	Addr             string
	Password         string
	DB               int
	PersistedLength  int           // entries kept in the live list
	ArchiveRetention time.Duration // expiry applied to archived lists
}

// RedisStore persists turns in a per-session redis list and moves the list
// under an archive key with a retention period when the session is cleared.
type RedisStore struct {
	client           *redis.Client
	persistedLength  int64
	archiveRetention time.Duration
}

// NewRedisStore connects to redis and returns a store
func NewRedisStore(ctx context.Context, config RedisStoreConfig) (*RedisStore, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	if config.PersistedLength < 1 {
		config.PersistedLength = 100
	}

	if config.ArchiveRetention <= 0 {
		config.ArchiveRetention = 30 * 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}

	return &RedisStore{
		client:           client,
		persistedLength:  int64(config.PersistedLength),
		archiveRetention: config.ArchiveRetention,
	}, nil
}

func messagesKey(sessionID string) string {
	return fmt.Sprintf("session:%s:messages", sessionID)
}

func archiveKey(sessionID string) string {
	return fmt.Sprintf("archive:session:%s:messages", sessionID)
}

// PushTurn appends a serialized turn and trims the list to the configured size
func (s *RedisStore) PushTurn(ctx context.Context, sessionID string, data []byte) error {
	key := messagesKey(sessionID)

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, s.persistedLength-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push turn for session %s: %w", sessionID, err)
	}

	return nil
}

// Archive moves the session's list to an archive key with the retention
// period applied instead of deleting it outright.
func (s *RedisStore) Archive(ctx context.Context, sessionID string) error {
	key := messagesKey(sessionID)

	messages, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read session %s messages: %w", sessionID, err)
	}

	if len(messages) == 0 {
		return nil
	}

	archive := archiveKey(sessionID)
	pipe := s.client.TxPipeline()
	for _, msg := range messages {
		pipe.RPush(ctx, archive, msg)
	}
	pipe.Del(ctx, key)
	pipe.Expire(ctx, archive, s.archiveRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to archive session %s: %w", sessionID, err)
	}

	return nil
}

// Close releases the redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
