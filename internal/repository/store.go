// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// SessionNamespace 是会话级存储的键前缀。
const SessionNamespace = "session"

// KeyValueStore 是按客户端隔离的字符串键值存储，对应浏览器里的 localStorage / sessionStorage。
type KeyValueStore interface {
	// Get 返回键对应的值，键不存在时 ok 为 false 且 err 为 nil。
	Get(ctx context.Context, clientID, key string) (value string, ok bool, err error)
	Set(ctx context.Context, clientID, key, value string) error
	Delete(ctx context.Context, clientID string, keys ...string) error
	// Clear 删除该客户端在当前命名空间下的所有键。
	Clear(ctx context.Context, clientID string) error
}

type redisKeyValueStore struct {
	redisClient *redis.Client
	namespace   string
	ttl         time.Duration
}

// NewLocalStore 创建持久存储，键为 <namespace>:<clientID>:<key>，不过期。
func NewLocalStore(redisClient *redis.Client, namespace string) KeyValueStore {
	return &redisKeyValueStore{redisClient: redisClient, namespace: namespace}
}

// NewSessionStore 创建会话级存储，键为 session:<clientID>:<key>，每次写入刷新 TTL。
func NewSessionStore(redisClient *redis.Client, ttl time.Duration) KeyValueStore {
	return &redisKeyValueStore{redisClient: redisClient, namespace: SessionNamespace, ttl: ttl}
}

func (s *redisKeyValueStore) key(clientID, key string) string {
	return fmt.Sprintf("%s:%s:%s", s.namespace, clientID, key)
}

func (s *redisKeyValueStore) Get(ctx context.Context, clientID, key string) (string, bool, error) {
	val, err := s.redisClient.Get(ctx, s.key(clientID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return val, true, nil
}

func (s *redisKeyValueStore) Set(ctx context.Context, clientID, key, value string) error {
	if err := s.redisClient.Set(ctx, s.key(clientID, key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *redisKeyValueStore) Delete(ctx context.Context, clientID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, s.key(clientID, k))
	}
	if err := s.redisClient.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

func (s *redisKeyValueStore) Clear(ctx context.Context, clientID string) error {
	pattern := s.key(clientID, "*")
	var cursor uint64
	for {
		keys, next, err := s.redisClient.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := s.redisClient.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to clear keys: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
