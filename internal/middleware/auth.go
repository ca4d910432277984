// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"next-chatbot-go/internal/service"
	"next-chatbot-go/pkg/log"
	"next-chatbot-go/pkg/token"
)

const (
	claimsKey   = "claims"
	clientIDKey = "clientID"
	tokenKey    = "token"
)

// Authenticate 验证 access token 并检查黑名单，HTTP 中间件和 websocket 握手共用。
func Authenticate(ctx context.Context, jwtManager *token.JWTManager, userService service.UserService, tokenString string) (*token.CustomClaims, error) {
	claims, err := jwtManager.VerifyKind(tokenString, token.KindAccess)
	if err != nil {
		return nil, err
	}
	revoked, err := userService.IsRevoked(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, service.ErrTokenRevoked
	}
	return claims, nil
}

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 验证通过后把 claims、客户端 ID 和原始 token 存入上下文。
func AuthMiddleware(jwtManager *token.JWTManager, userService service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "请求未包含授权头")
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			abortUnauthorized(c, "无效的授权头格式")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		claims, err := Authenticate(c.Request.Context(), jwtManager, userService, tokenString)
		if err != nil {
			log.Warnf("AuthMiddleware: rejected token, path: %s, error: %v", c.Request.URL.Path, err)
			abortUnauthorized(c, "无效或已过期的 token")
			return
		}

		c.Set(claimsKey, claims)
		c.Set(clientIDKey, claims.ClientID)
		c.Set(tokenKey, tokenString)
		c.Next()
	}
}

// OptionalClientID 返回请求授权头中有效 access token 对应的客户端 ID。
// 没有授权头、格式不对或 token 无效时返回空字符串，调用方应视为新客户端。
func OptionalClientID(c *gin.Context, jwtManager *token.JWTManager, userService service.UserService) string {
	authHeader := c.GetHeader("Authorization")
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}
	claims, err := Authenticate(c.Request.Context(), jwtManager, userService, strings.TrimPrefix(authHeader, bearerPrefix))
	if err != nil {
		log.Warnf("OptionalClientID: ignoring token, path: %s, error: %v", c.Request.URL.Path, err)
		return ""
	}
	return claims.ClientID
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    http.StatusUnauthorized,
		"message": message,
	})
}

// ClientID 返回 AuthMiddleware 写入的客户端 ID。
func ClientID(c *gin.Context) string {
	return c.GetString(clientIDKey)
}

// AccessToken 返回本次请求使用的 access token。
func AccessToken(c *gin.Context) string {
	return c.GetString(tokenKey)
}

// Claims 返回本次请求的 token claims，未认证时为 nil。
func Claims(c *gin.Context) *token.CustomClaims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*token.CustomClaims)
	return claims
}
