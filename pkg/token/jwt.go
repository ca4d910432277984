// Package token 提供了用于生成和验证 JSON Web Tokens (JWT) 的功能。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken 表示签名不匹配、已过期或类型不符的 token。
var ErrInvalidToken = errors.New("invalid token")

const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// JWTManager 负责管理 JWT 的生成和验证。
type JWTManager struct {
	secretKey       []byte
	accessTokenDur  time.Duration
	refreshTokenDur time.Duration
}

// CustomClaims 是本服务会话令牌中携带的数据。
// ClientID 标识一个浏览器，所有服务端存储都按它隔离；Username 是已登录用户的邮箱，游客为空。
type CustomClaims struct {
	ClientID string `json:"clientId"`
	Username string `json:"username,omitempty"`
	Kind     string `json:"kind"`
	jwt.RegisteredClaims
}

// NewJWTManager 创建一个新的 JWTManager 实例。
func NewJWTManager(secret string, accessTokenExpireHours, refreshTokenExpireDays int) *JWTManager {
	return &JWTManager{
		secretKey:       []byte(secret),
		accessTokenDur:  time.Hour * time.Duration(accessTokenExpireHours),
		refreshTokenDur: time.Duration(refreshTokenExpireDays) * 24 * time.Hour,
	}
}

// AccessTokenTTL 返回 access token 的有效期，会话级存储的过期时间与它一致。
func (m *JWTManager) AccessTokenTTL() time.Duration {
	return m.accessTokenDur
}

// GenerateToken 生成 access token。
func (m *JWTManager) GenerateToken(clientID, username string) (string, error) {
	return m.sign(clientID, username, KindAccess, m.accessTokenDur)
}

// GenerateRefreshToken 生成有效期更长的 refresh token。
func (m *JWTManager) GenerateRefreshToken(clientID, username string) (string, error) {
	return m.sign(clientID, username, KindRefresh, m.refreshTokenDur)
}

func (m *JWTManager) sign(clientID, username, kind string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		ClientID: clientID,
		Username: username,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			// 同一秒内签发的 token 也要各不相同，黑名单按 token 字符串生效
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// VerifyToken 验证给定的 token 字符串并返回 claims。
func (m *JWTManager) VerifyToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid && claims.ClientID != "" {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// VerifyKind 在 VerifyToken 的基础上检查 token 类型，防止 refresh token 被当作 access token 使用。
func (m *JWTManager) VerifyKind(tokenString, kind string) (*CustomClaims, error) {
	claims, err := m.VerifyToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
