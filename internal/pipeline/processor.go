// Package pipeline 定义了对话归档的处理流程。
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"next-chatbot-go/internal/model"
	"next-chatbot-go/pkg/log"
	"next-chatbot-go/pkg/tasks"
)

// SnapshotStore 保存整段对话的 JSON 快照。
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, clientID, sessionID string, data []byte) error
}

// DocumentIndexer 把单条消息写入全文索引。
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, doc model.TranscriptDocument) error
}

// Snapshot 是写入对象存储的快照格式。
type Snapshot struct {
	ClientID   string              `json:"client_id"`
	SessionID  string              `json:"session_id"`
	Username   string              `json:"username,omitempty"`
	ArchivedAt time.Time           `json:"archived_at"`
	Messages   []model.ChatMessage `json:"messages"`
}

// Processor 封装了归档处理的所有依赖和逻辑。
type Processor struct {
	snapshots SnapshotStore
	indexer   DocumentIndexer
	now       func() time.Time
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(snapshots SnapshotStore, indexer DocumentIndexer) *Processor {
	return &Processor{snapshots: snapshots, indexer: indexer, now: time.Now}
}

// Process 先上传快照，再逐条索引消息。任一步失败都返回错误，由消费者决定是否重投。
func (p *Processor) Process(ctx context.Context, task tasks.TranscriptArchiveTask) error {
	if task.ClientID == "" || task.SessionID == "" {
		return errors.New("archive task missing client or session id")
	}
	log.Infof("[Processor] 开始归档会话, client: %s, session: %s, messages: %d", task.ClientID, task.SessionID, len(task.Messages))

	archivedAt := p.now().UTC()
	data, err := json.Marshal(Snapshot{
		ClientID:   task.ClientID,
		SessionID:  task.SessionID,
		Username:   task.Username,
		ArchivedAt: archivedAt,
		Messages:   task.Messages,
	})
	if err != nil {
		return fmt.Errorf("序列化对话快照失败: %w", err)
	}
	if err := p.snapshots.PutSnapshot(ctx, task.ClientID, task.SessionID, data); err != nil {
		return err
	}

	for i, msg := range task.Messages {
		doc := model.TranscriptDocument{
			DocID:      fmt.Sprintf("%s:%s:%d", task.ClientID, task.SessionID, i),
			ClientID:   task.ClientID,
			SessionID:  task.SessionID,
			Username:   task.Username,
			Index:      i,
			Role:       msg.Role,
			Content:    msg.Content,
			ArchivedAt: archivedAt,
		}
		if err := p.indexer.IndexDocument(ctx, doc); err != nil {
			return fmt.Errorf("索引第 %d 条消息失败: %w", i, err)
		}
	}

	log.Infof("[Processor] 会话归档完成, session: %s", task.SessionID)
	return nil
}
