// Package database 负责初始化 Redis 和 MySQL 连接。
package database

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"next-chatbot-go/internal/config"
	"next-chatbot-go/pkg/log"
)

// OpenRedis 创建 Redis 客户端并测试连接。对话和身份都存在 Redis 里，所以它是必需的。
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Redis client connected successfully")
	return rdb, nil
}
