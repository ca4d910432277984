package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"next-chatbot-go/internal/middleware"
	"next-chatbot-go/internal/service"
	"next-chatbot-go/pkg/log"
	"next-chatbot-go/pkg/token"
)

// AuthHandler 负责登录、游客令牌和刷新 token。
type AuthHandler struct {
	userService service.UserService
	jwtManager  *token.JWTManager
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(userService service.UserService, jwtManager *token.JWTManager) *AuthHandler {
	return &AuthHandler{userService: userService, jwtManager: jwtManager}
}

// LoginRequest 是浏览器完成第三方登录后提交的凭据。
type LoginRequest struct {
	IDToken     string `json:"idToken" binding:"required"`
	Email       string `json:"email" binding:"required"`
	Image       string `json:"image"`
	AccessToken string `json:"accessToken"`
}

// Login 保存身份凭据并签发会话令牌。
// 只有请求带着有效的 access token 时才沿用它的客户端（游客登录后保留对话），否则分配新的客户端。
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Login: Invalid request payload, error: %v", err)
		respondError(c, http.StatusBadRequest, "无效的请求负载：idToken 和 email 不能为空")
		return
	}

	tokens, err := h.userService.Login(c.Request.Context(), service.LoginInput{
		ClientID:    middleware.OptionalClientID(c, h.jwtManager, h.userService),
		IDToken:     req.IDToken,
		Email:       req.Email,
		Image:       req.Image,
		AccessToken: req.AccessToken,
	})
	if err != nil {
		respondServiceError(c, "Login", err)
		return
	}
	respondOK(c, "Login successful", tokens)
}

// Guest 为未登录的浏览器签发令牌。
func (h *AuthHandler) Guest(c *gin.Context) {
	tokens, err := h.userService.Guest(c.Request.Context())
	if err != nil {
		respondServiceError(c, "Guest", err)
		return
	}
	respondOK(c, "success", tokens)
}

// RefreshTokenRequest 定义了刷新 token API 的请求体结构。
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RefreshToken 处理刷新 token 的请求。
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("RefreshToken: Invalid request payload, error: %v", err)
		respondError(c, http.StatusBadRequest, "无效的请求负载：refreshToken 不能为空")
		return
	}

	tokens, err := h.userService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		log.Warnf("RefreshToken: Failed to refresh token, error: %v", err)
		respondError(c, http.StatusUnauthorized, "无效的 refresh token")
		return
	}

	log.Info("Token refreshed successfully")
	respondOK(c, "Token refreshed successfully", tokens)
}
