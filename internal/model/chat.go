// Package model 包含了应用的数据模型定义。
package model

// Role 标识消息的发送方。
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// ChatMessage 是对话区里的一条消息。
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserMessage 构造一条用户消息。
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// BotMessage 构造一条机器人消息。
func BotMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleBot, Content: content}
}

// ChatSession 是助手后端保存的一次会话，本服务只读。
// 时间字段保持后端返回的原始字符串，由 ParseTimestamp 解析。
type ChatSession struct {
	SessionID string        `json:"session_id"`
	Username  string        `json:"username"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
}

// LastUserMessage 返回会话中最后一条用户消息。
func (s ChatSession) LastUserMessage() (ChatMessage, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i], true
		}
	}
	return ChatMessage{}, false
}

// ActivityTime 返回用于排序和分组的时间：优先 updated_at，缺失时回退 created_at。
func (s ChatSession) ActivityTime() (string, bool) {
	if s.UpdatedAt != "" {
		return s.UpdatedAt, true
	}
	if s.CreatedAt != "" {
		return s.CreatedAt, true
	}
	return "", false
}
