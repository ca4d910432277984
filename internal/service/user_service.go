package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"next-chatbot-go/internal/model"
	"next-chatbot-go/internal/repository"
	"next-chatbot-go/pkg/log"
	"next-chatbot-go/pkg/token"
)

var (
	ErrInvalidIdentity = errors.New("id token and email are required")
	ErrTokenRevoked    = errors.New("token has been revoked")
)

// Tokens 是签发给浏览器的一对会话令牌。
type Tokens struct {
	ClientID     string `json:"clientId"`
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// Profile 是当前客户端的身份和偏好。
type Profile struct {
	ClientID  string      `json:"clientId"`
	SignedIn  bool        `json:"signedIn"`
	Email     string      `json:"email,omitempty"`
	Image     string      `json:"image,omitempty"`
	Mode      model.Mode  `json:"mode"`
	SessionID string      `json:"sessionId,omitempty"`
	User      *model.User `json:"user,omitempty"`
}

// LoginInput 是浏览器完成第三方登录后转交的凭据。
// ClientID 只能来自已验证的 access token，为空时分配新的客户端。
type LoginInput struct {
	ClientID    string
	IDToken     string
	Email       string
	Image       string
	AccessToken string
}

// UserService 接口定义了所有与身份相关的业务操作。
type UserService interface {
	// Guest 为新浏览器分配客户端 ID 并签发令牌。
	Guest(ctx context.Context) (*Tokens, error)
	Login(ctx context.Context, in LoginInput) (*Tokens, error)
	Logout(ctx context.Context, clientID, accessToken string) error
	RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error)
	GetProfile(ctx context.Context, clientID string) (*Profile, error)
	IsRevoked(ctx context.Context, tokenString string) (bool, error)
}

type userService struct {
	identities    repository.IdentityRepository
	preferences   repository.PreferenceRepository
	blacklist     repository.TokenBlacklist
	userRepo      repository.UserRepository
	conversations *ConversationManager
	jwtManager    *token.JWTManager
	now           func() time.Time
}

// NewUserService 创建一个新的 UserService 实例。userRepo 为 nil 时不记录用户档案。
func NewUserService(
	identities repository.IdentityRepository,
	preferences repository.PreferenceRepository,
	blacklist repository.TokenBlacklist,
	userRepo repository.UserRepository,
	conversations *ConversationManager,
	jwtManager *token.JWTManager,
) UserService {
	return &userService{
		identities:    identities,
		preferences:   preferences,
		blacklist:     blacklist,
		userRepo:      userRepo,
		conversations: conversations,
		jwtManager:    jwtManager,
		now:           time.Now,
	}
}

func (s *userService) issue(clientID, username string) (*Tokens, error) {
	accessToken, err := s.jwtManager.GenerateToken(clientID, username)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(clientID, username)
	if err != nil {
		return nil, err
	}
	return &Tokens{ClientID: clientID, AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *userService) Guest(ctx context.Context) (*Tokens, error) {
	return s.issue(uuid.NewString(), "")
}

// Login 保存身份凭据：ID token、邮箱、头像进持久存储，邮件 access token 进会话级存储。
// 凭据只要存在就被视为有效，这里不做校验。
func (s *userService) Login(ctx context.Context, in LoginInput) (*Tokens, error) {
	identity := model.Identity{
		IDToken: strings.TrimSpace(in.IDToken),
		Email:   strings.TrimSpace(in.Email),
		Image:   strings.TrimSpace(in.Image),
	}
	if !identity.SignedIn() {
		return nil, ErrInvalidIdentity
	}
	clientID := in.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	if err := s.identities.SaveIdentity(ctx, clientID, identity); err != nil {
		return nil, fmt.Errorf("保存身份信息失败: %w", err)
	}
	if err := s.identities.SaveAccessToken(ctx, clientID, in.AccessToken); err != nil {
		return nil, fmt.Errorf("保存 access token 失败: %w", err)
	}
	s.touchUser(identity)

	log.Infof("User '%s' logged in", identity.Email)
	return s.issue(clientID, identity.Email)
}

// touchUser 写入或更新用户档案，失败只记录日志。
func (s *userService) touchUser(identity model.Identity) {
	if s.userRepo == nil {
		return
	}
	user, err := s.userRepo.FindByEmail(identity.Email)
	if err != nil {
		log.Warnf("[UserService] 查询用户档案失败, email: %s, error: %v", identity.Email, err)
		return
	}
	if user == nil {
		user = &model.User{Email: identity.Email, Image: identity.Image, LastLoginAt: s.now()}
		err = s.userRepo.Create(user)
	} else {
		user.Image = identity.Image
		user.LastLoginAt = s.now()
		err = s.userRepo.Update(user)
	}
	if err != nil {
		log.Warnf("[UserService] 保存用户档案失败, email: %s, error: %v", identity.Email, err)
	}
}

// Logout 清除身份凭据并把 access token 加入黑名单。对话记录的持久副本保留。
func (s *userService) Logout(ctx context.Context, clientID, accessToken string) error {
	if err := s.identities.Clear(ctx, clientID); err != nil {
		return err
	}
	if s.conversations != nil {
		s.conversations.Evict(clientID)
	}
	claims, err := s.jwtManager.VerifyToken(accessToken)
	if err != nil {
		return err
	}
	return s.blacklist.Revoke(ctx, accessToken, time.Until(claims.ExpiresAt.Time))
}

// RefreshToken 验证 refresh token 并签发新的一对令牌，旧的 refresh token 随即作废。
func (s *userService) RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error) {
	claims, err := s.jwtManager.VerifyKind(refreshToken, token.KindRefresh)
	if err != nil {
		return nil, err
	}
	revoked, err := s.blacklist.IsRevoked(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	// 登出后 refresh 得到的是游客令牌
	identity, err := s.identities.GetIdentity(ctx, claims.ClientID)
	if err != nil {
		return nil, err
	}
	tokens, err := s.issue(claims.ClientID, identity.Email)
	if err != nil {
		return nil, err
	}
	if err := s.blacklist.Revoke(ctx, refreshToken, time.Until(claims.ExpiresAt.Time)); err != nil {
		log.Warnf("[UserService] 作废旧 refresh token 失败: %v", err)
	}
	return tokens, nil
}

func (s *userService) GetProfile(ctx context.Context, clientID string) (*Profile, error) {
	identity, err := s.identities.GetIdentity(ctx, clientID)
	if err != nil {
		return nil, err
	}
	mode, err := s.preferences.GetMode(ctx, clientID)
	if err != nil {
		return nil, err
	}
	sessionID, err := s.preferences.GetSessionID(ctx, clientID)
	if err != nil {
		return nil, err
	}

	profile := &Profile{
		ClientID:  clientID,
		SignedIn:  identity.SignedIn(),
		Email:     identity.Email,
		Image:     identity.Image,
		Mode:      mode,
		SessionID: sessionID,
	}
	if s.userRepo != nil && identity.Email != "" {
		user, err := s.userRepo.FindByEmail(identity.Email)
		if err != nil {
			log.Warnf("[UserService] 查询用户档案失败, email: %s, error: %v", identity.Email, err)
		}
		profile.User = user
	}
	return profile, nil
}

func (s *userService) IsRevoked(ctx context.Context, tokenString string) (bool, error) {
	return s.blacklist.IsRevoked(ctx, tokenString)
}
