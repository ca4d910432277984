// Package mail 负责把识别出的邮件草稿发出去。
package mail

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
)

// ErrProvider 表示发信服务返回了失败。
var ErrProvider = errors.New("mail: provider rejected message")

// Message 是一封待发送的纯文本邮件。
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender 定义了发信通道。
type Sender interface {
	// RequiresAccessToken 为 true 时调用方必须提供用户登录时拿到的 OAuth access token。
	RequiresAccessToken() bool
	Send(ctx context.Context, msg Message, accessToken string) error
}

// BuildRaw 组装 MIME 风格的原始邮件：三个头部、空行、正文，用 \n 连接。
func BuildRaw(msg Message) string {
	return strings.Join([]string{
		"To: " + msg.To,
		"Subject: " + msg.Subject,
		"Content-Type: text/plain; charset=utf-8",
		"",
		msg.Body,
	}, "\n")
}

// EncodeRaw 对 UTF-8 字节做 base64url 编码并去掉末尾的 '='。
func EncodeRaw(raw string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}
