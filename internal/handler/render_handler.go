package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"next-chatbot-go/internal/model"
	"next-chatbot-go/pkg/log"
	"next-chatbot-go/pkg/render"
)

// RenderRequest 是需要格式化的一段文本。Role 为空时按机器人消息处理。
type RenderRequest struct {
	Role    model.Role `json:"role"`
	Content string     `json:"content"`
}

// Render 把文本切分为片段并识别邮件草稿，不读写任何状态。
func Render(c *gin.Context) {
	var req RenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Render: Invalid request payload, error: %v", err)
		respondError(c, http.StatusBadRequest, "无效的请求负载")
		return
	}
	if req.Role == "" {
		req.Role = model.RoleBot
	}
	respondOK(c, "success", render.Render(model.ChatMessage{Role: req.Role, Content: req.Content}))
}
