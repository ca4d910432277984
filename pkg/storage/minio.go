// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"next-chatbot-go/internal/config"
	"next-chatbot-go/pkg/log"
)

// ErrSnapshotNotFound 表示该会话还没有归档快照。
var ErrSnapshotNotFound = errors.New("transcript snapshot not found")

// TranscriptStore 把归档的对话快照保存为 MinIO 对象。
type TranscriptStore struct {
	client *minio.Client
	bucket string
}

// ObjectName 返回某个会话快照的对象名。
func ObjectName(clientID, sessionID string) string {
	return fmt.Sprintf("transcripts/%s/%s.json", clientID, sessionID)
}

// NewTranscriptStore 初始化 MinIO 客户端并确保存储桶存在。
func NewTranscriptStore(ctx context.Context, cfg config.MinIOConfig) (*TranscriptStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	}
	return &TranscriptStore{client: client, bucket: cfg.BucketName}, nil
}

// PutSnapshot 覆盖写入会话快照。
func (s *TranscriptStore) PutSnapshot(ctx context.Context, clientID, sessionID string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, ObjectName(clientID, sessionID),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("上传对话快照失败: %w", err)
	}
	return nil
}

// PresignedURL 返回会话快照的临时下载地址，对象不存在时返回错误。
func (s *TranscriptStore) PresignedURL(ctx context.Context, clientID, sessionID string, expiry time.Duration) (string, error) {
	objectName := ObjectName(clientID, sessionID)
	if _, err := s.client.StatObject(ctx, s.bucket, objectName, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", ErrSnapshotNotFound
		}
		return "", fmt.Errorf("查询对话快照失败: %w", err)
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, nil)
	if err != nil {
		log.Errorf("Error generating presigned URL: %s", err)
		return "", err
	}
	return u.String(), nil
}
