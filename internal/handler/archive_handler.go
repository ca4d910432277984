package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"next-chatbot-go/internal/middleware"
	"next-chatbot-go/internal/service"
	"next-chatbot-go/pkg/log"
)

// ArchiveHandler 负责已归档对话的检索和导出。
type ArchiveHandler struct {
	archiveService service.ArchiveService
}

// NewArchiveHandler 创建一个新的 ArchiveHandler 实例。
func NewArchiveHandler(archiveService service.ArchiveService) *ArchiveHandler {
	return &ArchiveHandler{archiveService: archiveService}
}

// Search 在当前客户端的归档消息中全文检索。
func (h *ArchiveHandler) Search(c *gin.Context) {
	query := c.Query("query")
	size, err := strconv.Atoi(c.DefaultQuery("size", "10"))
	if err != nil {
		size = 0
	}
	log.Infof("[ArchiveHandler] 收到归档搜索请求, query: %s, size: %d", query, size)

	hits, err := h.archiveService.Search(c.Request.Context(), middleware.ClientID(c), query, size)
	if err != nil {
		respondServiceError(c, "ArchiveSearch", err)
		return
	}
	respondOK(c, "success", hits)
}

// Export 返回某个会话快照的临时下载地址，sessionId 为空时导出当前会话。
func (h *ArchiveHandler) Export(c *gin.Context) {
	url, err := h.archiveService.ExportURL(c.Request.Context(), middleware.ClientID(c), c.Query("sessionId"))
	if err != nil {
		respondServiceError(c, "ArchiveExport", err)
		return
	}
	respondOK(c, "success", gin.H{"url": url})
}
