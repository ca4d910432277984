package model

import "time"

// TranscriptDocument 是写入 Elasticsearch 的归档消息。
type TranscriptDocument struct {
	DocID      string    `json:"doc_id"` // clientID:sessionID:index
	ClientID   string    `json:"client_id"`
	SessionID  string    `json:"session_id"`
	Username   string    `json:"username"`
	Index      int       `json:"index"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	ArchivedAt time.Time `json:"archived_at"`
}

// TranscriptSearchHit 是归档搜索返回给前端的结果。
type TranscriptSearchHit struct {
	SessionID string  `json:"sessionId"`
	Index     int     `json:"index"`
	Role      Role    `json:"role"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
}
