package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"next-chatbot-go/internal/model"
	"next-chatbot-go/internal/repository"
)

const (
	defaultSearchSize = 10
	maxSearchSize     = 50
	exportURLExpiry   = 15 * time.Minute
)

var (
	ErrArchiveDisabled = errors.New("transcript archive is disabled")
	ErrEmptyQuery      = errors.New("query cannot be empty")
)

// TranscriptSearcher 在归档消息中全文检索。
type TranscriptSearcher interface {
	Search(ctx context.Context, clientID, query string, size int) ([]model.TranscriptSearchHit, error)
}

// SnapshotLinker 为归档快照生成临时下载地址。
type SnapshotLinker interface {
	PresignedURL(ctx context.Context, clientID, sessionID string, expiry time.Duration) (string, error)
}

// ArchiveService 提供归档对话的搜索和导出。
type ArchiveService interface {
	Search(ctx context.Context, clientID, query string, size int) ([]model.TranscriptSearchHit, error)
	// ExportURL 在 sessionID 为空时导出当前会话。
	ExportURL(ctx context.Context, clientID, sessionID string) (string, error)
}

type archiveService struct {
	searcher    TranscriptSearcher
	linker      SnapshotLinker
	preferences repository.PreferenceRepository
}

// NewArchiveService 创建一个新的 ArchiveService 实例。searcher、linker 为 nil 表示未启用归档。
func NewArchiveService(searcher TranscriptSearcher, linker SnapshotLinker, preferences repository.PreferenceRepository) ArchiveService {
	return &archiveService{searcher: searcher, linker: linker, preferences: preferences}
}

func (s *archiveService) Search(ctx context.Context, clientID, query string, size int) ([]model.TranscriptSearchHit, error) {
	if s.searcher == nil {
		return nil, ErrArchiveDisabled
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if size <= 0 {
		size = defaultSearchSize
	}
	if size > maxSearchSize {
		size = maxSearchSize
	}
	return s.searcher.Search(ctx, clientID, query, size)
}

func (s *archiveService) ExportURL(ctx context.Context, clientID, sessionID string) (string, error) {
	if s.linker == nil {
		return "", ErrArchiveDisabled
	}
	if sessionID == "" {
		current, err := s.preferences.GetSessionID(ctx, clientID)
		if err != nil {
			return "", err
		}
		sessionID = current
	}
	if sessionID == "" {
		return "", ErrInvalidSession
	}
	return s.linker.PresignedURL(ctx, clientID, sessionID, exportURLExpiry)
}
