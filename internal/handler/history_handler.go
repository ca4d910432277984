package handler

import (
	"github.com/gin-gonic/gin"

	"next-chatbot-go/internal/middleware"
	"next-chatbot-go/internal/service"
	"next-chatbot-go/pkg/log"
)

// HistoryHandler 负责侧栏的历史会话。
type HistoryHandler struct {
	historyService service.HistoryService
	chatService    service.ChatService
}

// NewHistoryHandler 创建一个新的 HistoryHandler 实例。
func NewHistoryHandler(historyService service.HistoryService, chatService service.ChatService) *HistoryHandler {
	return &HistoryHandler{historyService: historyService, chatService: chatService}
}

// Browse 返回按天分组的历史会话。获取失败时返回空列表。
func (h *HistoryHandler) Browse(c *gin.Context) {
	groups := h.historyService.Browse(c.Request.Context(), middleware.ClientID(c))
	log.Infof("[HistoryHandler] 返回 %d 个分组, client: %s", len(groups), middleware.ClientID(c))
	respondOK(c, "success", groups)
}

// Open 切换到某个历史会话，返回前端应跳转的路由。
func (h *HistoryHandler) Open(c *gin.Context) {
	route, err := h.chatService.OpenSession(c.Request.Context(), middleware.ClientID(c), c.Param("sessionId"))
	if err != nil {
		respondServiceError(c, "OpenSession", err)
		return
	}
	respondOK(c, "success", gin.H{"route": route})
}
