// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"next-chatbot-go/internal/service"
	"next-chatbot-go/pkg/log"
	"next-chatbot-go/pkg/storage"
	"next-chatbot-go/pkg/token"
)

func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": message,
		"data":    data,
	})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    nil,
	})
}

// statusFor 把业务错误映射为 HTTP 状态码。校验类错误的 message 就是给用户看的提示。
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrEmptyRecipient),
		errors.Is(err, service.ErrUnknownMode),
		errors.Is(err, service.ErrInvalidSession),
		errors.Is(err, service.ErrEmptyQuery),
		errors.Is(err, service.ErrInvalidIdentity):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrAccessTokenMissing):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, token.ErrInvalidToken), errors.Is(err, service.ErrTokenRevoked):
		return http.StatusUnauthorized, "无效或已过期的 token"
	case errors.Is(err, storage.ErrSnapshotNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrArchiveDisabled):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "服务器内部错误"
	}
}

func respondServiceError(c *gin.Context, op string, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s failed, client: %s, error: %v", op, c.GetString("clientID"), err)
	} else {
		log.Warnf("%s rejected, client: %s, error: %v", op, c.GetString("clientID"), err)
	}
	respondError(c, status, message)
}
