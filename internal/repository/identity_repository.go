package repository

import (
	"context"

	"next-chatbot-go/internal/model"
)

// 与前端沿用的存储键名保持一致。
const (
	IDTokenKey     = "userIdToken"
	EmailKey       = "userEmail"
	ImageKey       = "userImage"
	AccessTokenKey = "gmailAccessToken"
)

// IdentityRepository 管理登录凭据：身份信息写入持久存储，邮件 access token 只放在会话级存储。
type IdentityRepository interface {
	SaveIdentity(ctx context.Context, clientID string, identity model.Identity) error
	GetIdentity(ctx context.Context, clientID string) (model.Identity, error)
	SaveAccessToken(ctx context.Context, clientID, accessToken string) error
	GetAccessToken(ctx context.Context, clientID string) (string, bool, error)
	// Clear 同时清除持久身份和会话 token。
	Clear(ctx context.Context, clientID string) error
}

type identityRepository struct {
	local   KeyValueStore
	session KeyValueStore
}

// NewIdentityRepository 创建一个新的 IdentityRepository 实例。
func NewIdentityRepository(local, session KeyValueStore) IdentityRepository {
	return &identityRepository{local: local, session: session}
}

func (r *identityRepository) SaveIdentity(ctx context.Context, clientID string, identity model.Identity) error {
	if err := r.local.Set(ctx, clientID, IDTokenKey, identity.IDToken); err != nil {
		return err
	}
	if err := r.local.Set(ctx, clientID, EmailKey, identity.Email); err != nil {
		return err
	}
	if identity.Image == "" {
		return r.local.Delete(ctx, clientID, ImageKey)
	}
	return r.local.Set(ctx, clientID, ImageKey, identity.Image)
}

func (r *identityRepository) GetIdentity(ctx context.Context, clientID string) (model.Identity, error) {
	var identity model.Identity
	for key, dst := range map[string]*string{
		IDTokenKey: &identity.IDToken,
		EmailKey:   &identity.Email,
		ImageKey:   &identity.Image,
	} {
		val, _, err := r.local.Get(ctx, clientID, key)
		if err != nil {
			return model.Identity{}, err
		}
		*dst = val
	}
	return identity, nil
}

func (r *identityRepository) SaveAccessToken(ctx context.Context, clientID, accessToken string) error {
	if accessToken == "" {
		return r.session.Delete(ctx, clientID, AccessTokenKey)
	}
	return r.session.Set(ctx, clientID, AccessTokenKey, accessToken)
}

func (r *identityRepository) GetAccessToken(ctx context.Context, clientID string) (string, bool, error) {
	token, ok, err := r.session.Get(ctx, clientID, AccessTokenKey)
	if err != nil || !ok || token == "" {
		return "", false, err
	}
	return token, true, nil
}

func (r *identityRepository) Clear(ctx context.Context, clientID string) error {
	if err := r.local.Delete(ctx, clientID, IDTokenKey, EmailKey, ImageKey); err != nil {
		return err
	}
	return r.session.Delete(ctx, clientID, AccessTokenKey)
}
