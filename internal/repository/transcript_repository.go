package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"next-chatbot-go/internal/model"
	"next-chatbot-go/pkg/log"
)

// TranscriptKey 是对话记录在持久存储中的键。
const TranscriptKey = "chats"

// TranscriptRepository 负责对话记录的整体读写。
type TranscriptRepository interface {
	Load(ctx context.Context, clientID string) ([]model.ChatMessage, error)
	// Save 每次都写入完整的对话记录。
	Save(ctx context.Context, clientID string, messages []model.ChatMessage) error
	Clear(ctx context.Context, clientID string) error
}

type transcriptRepository struct {
	store KeyValueStore
}

// NewTranscriptRepository 创建一个新的 TranscriptRepository 实例。
func NewTranscriptRepository(store KeyValueStore) TranscriptRepository {
	return &transcriptRepository{store: store}
}

func (r *transcriptRepository) Load(ctx context.Context, clientID string) ([]model.ChatMessage, error) {
	raw, ok, err := r.store.Get(ctx, clientID, TranscriptKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []model.ChatMessage{}, nil
	}
	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		// 损坏的记录无法恢复，从空对话开始，下一次保存会覆盖它
		log.Warnf("[TranscriptRepository] 对话记录损坏，从空对话开始, client: %s, error: %v", clientID, err)
		return []model.ChatMessage{}, nil
	}
	if messages == nil {
		messages = []model.ChatMessage{}
	}
	return messages, nil
}

func (r *transcriptRepository) Save(ctx context.Context, clientID string, messages []model.ChatMessage) error {
	if messages == nil {
		messages = []model.ChatMessage{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}
	return r.store.Set(ctx, clientID, TranscriptKey, string(data))
}

func (r *transcriptRepository) Clear(ctx context.Context, clientID string) error {
	return r.store.Delete(ctx, clientID, TranscriptKey)
}
