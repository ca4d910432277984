package repository

import (
	"context"

	"next-chatbot-go/internal/model"
)

const (
	ModeKey      = "mode"
	SessionIDKey = "sessionId"
)

// PreferenceRepository 保存客户端当前选择的模式和会话 ID。
type PreferenceRepository interface {
	// GetMode 在未设置或值无法识别时返回 model.DefaultMode。
	GetMode(ctx context.Context, clientID string) (model.Mode, error)
	SetMode(ctx context.Context, clientID string, mode model.Mode) error
	GetSessionID(ctx context.Context, clientID string) (string, error)
	SetSessionID(ctx context.Context, clientID, sessionID string) error
}

type preferenceRepository struct {
	store KeyValueStore
}

// NewPreferenceRepository 创建一个新的 PreferenceRepository 实例。
func NewPreferenceRepository(store KeyValueStore) PreferenceRepository {
	return &preferenceRepository{store: store}
}

func (r *preferenceRepository) GetMode(ctx context.Context, clientID string) (model.Mode, error) {
	raw, ok, err := r.store.Get(ctx, clientID, ModeKey)
	if err != nil {
		return model.DefaultMode, err
	}
	if !ok {
		return model.DefaultMode, nil
	}
	mode, known := model.ParseMode(raw)
	if !known {
		return model.DefaultMode, nil
	}
	return mode, nil
}

func (r *preferenceRepository) SetMode(ctx context.Context, clientID string, mode model.Mode) error {
	return r.store.Set(ctx, clientID, ModeKey, string(mode))
}

func (r *preferenceRepository) GetSessionID(ctx context.Context, clientID string) (string, error) {
	id, _, err := r.store.Get(ctx, clientID, SessionIDKey)
	return id, err
}

func (r *preferenceRepository) SetSessionID(ctx context.Context, clientID, sessionID string) error {
	return r.store.Set(ctx, clientID, SessionIDKey, sessionID)
}
