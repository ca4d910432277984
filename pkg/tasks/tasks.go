// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import (
	"time"

	"next-chatbot-go/internal/model"
)

// TranscriptArchiveTask 是一次对话回合结束后的归档任务，携带当时完整的对话记录。
type TranscriptArchiveTask struct {
	TaskID      string              `json:"task_id"`
	ClientID    string              `json:"client_id"`
	SessionID   string              `json:"session_id"`
	Username    string              `json:"username"`
	Messages    []model.ChatMessage `json:"messages"`
	CompletedAt time.Time           `json:"completed_at"`
}
