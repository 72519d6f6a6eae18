// Package session stores chat sessions in Redis for deployments that share them
// across processes.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pactline/internal/domain"
)

const defaultPrefix = "pactline:chat:"

// RedisStore keeps one JSON snapshot per actor and contract under
// prefix+actorID+":"+contractID.
// A zero TTL keeps snapshots until they are replaced or deleted.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisStoreWithClient(client, ttl), nil
}

func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: defaultPrefix, ttl: ttl}
}

func (s *RedisStore) key(actorID, contractID string) string {
	return s.prefix + actorID + ":" + contractID
}

func (s *RedisStore) LoadChat(ctx context.Context, actorID, contractID string) (domain.ChatSnapshot, bool, error) {
	raw, err := s.client.Get(ctx, s.key(actorID, contractID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ChatSnapshot{}, false, nil
	}
	if err != nil {
		return domain.ChatSnapshot{}, false, fmt.Errorf("load chat session: %w", err)
	}
	var snap domain.ChatSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.ChatSnapshot{}, false, fmt.Errorf("unmarshal chat session: %w", err)
	}
	return snap, true, nil
}

func (s *RedisStore) SaveChat(ctx context.Context, snap domain.ChatSnapshot) error {
	if snap.ContractID == "" {
		return fmt.Errorf("chat session without contract id")
	}
	if snap.ActorID == "" {
		return fmt.Errorf("chat session without actor id")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal chat session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(snap.ActorID, snap.ContractID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save chat session: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteChat(ctx context.Context, actorID, contractID string) error {
	if err := s.client.Del(ctx, s.key(actorID, contractID)).Err(); err != nil {
		return fmt.Errorf("delete chat session: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
