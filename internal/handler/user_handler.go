package handler

import (
	"github.com/gin-gonic/gin"

	"next-chatbot-go/internal/middleware"
	"next-chatbot-go/internal/service"
	"next-chatbot-go/pkg/log"
)

// UserHandler 负责当前用户的资料和登出。
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GetProfile 返回当前客户端的身份和偏好。
func (h *UserHandler) GetProfile(c *gin.Context) {
	profile, err := h.userService.GetProfile(c.Request.Context(), middleware.ClientID(c))
	if err != nil {
		respondServiceError(c, "GetProfile", err)
		return
	}
	respondOK(c, "success", profile)
}

// Logout 清除身份凭据并作废当前 token。
func (h *UserHandler) Logout(c *gin.Context) {
	clientID := middleware.ClientID(c)
	if err := h.userService.Logout(c.Request.Context(), clientID, middleware.AccessToken(c)); err != nil {
		respondServiceError(c, "Logout", err)
		return
	}
	log.Infof("Client '%s' logged out", clientID)
	respondOK(c, "Logout successful", nil)
}
