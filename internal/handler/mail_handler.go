package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"next-chatbot-go/internal/middleware"
	"next-chatbot-go/internal/service"
	"next-chatbot-go/pkg/log"
)

// MailHandler 负责发送助手起草的邮件。
type MailHandler struct {
	mailService service.MailService
}

// NewMailHandler 创建一个新的 MailHandler 实例。
func NewMailHandler(mailService service.MailService) *MailHandler {
	return &MailHandler{mailService: mailService}
}

// SendMailRequest 是发送邮件的请求体，字段来自邮件草稿卡片。
type SendMailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Send 发送邮件。发送结果会作为一条机器人消息写入对话区；
// 服务商拒绝时仍返回 200，data.sent 为 false。
func (h *MailHandler) Send(c *gin.Context) {
	var req SendMailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("SendMail: Invalid request payload, error: %v", err)
		respondError(c, http.StatusBadRequest, "无效的请求负载")
		return
	}
	result, err := h.mailService.Send(c.Request.Context(), middleware.ClientID(c), req.To, req.Subject, req.Body)
	if err != nil {
		respondServiceError(c, "SendMail", err)
		return
	}
	respondOK(c, result.Message, result)
}
