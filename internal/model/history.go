package model

import "time"

// HistoryEntry 是侧栏里一条历史会话的预览。
type HistoryEntry struct {
	SessionID string    `json:"session_id"`
	Preview   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Date      string    `json:"date"`
}

// HistoryGroup 是同一天的历史会话。
type HistoryGroup struct {
	Label   string         `json:"label"`
	Entries []HistoryEntry `json:"entries"`
}
