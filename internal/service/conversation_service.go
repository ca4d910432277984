package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"next-chatbot-go/internal/repository"
	"next-chatbot-go/pkg/log"
)

// Conversation 是一个客户端在本服务内的对话状态。
type Conversation struct {
	ClientID   string
	Transcript *Transcript
	Revealer   *Revealer

	turnMu   sync.Mutex
	lastUsed time.Time // 由 ConversationManager.mu 保护
}

// BeginTurn 获取回合锁，返回释放函数。提交问题、发送邮件、切换会话互斥执行。
func (c *Conversation) BeginTurn() func() {
	c.turnMu.Lock()
	return c.turnMu.Unlock
}

// ConversationManager 按客户端 ID 管理对话，首次访问时从持久存储恢复。
type ConversationManager struct {
	repo           repository.TranscriptRepository
	revealInterval time.Duration
	now            func() time.Time

	mu            sync.Mutex
	conversations map[string]*Conversation
}

// NewConversationManager 创建一个新的 ConversationManager 实例。
func NewConversationManager(repo repository.TranscriptRepository, revealInterval time.Duration) *ConversationManager {
	return &ConversationManager{
		repo:           repo,
		revealInterval: revealInterval,
		now:            time.Now,
		conversations:  make(map[string]*Conversation),
	}
}

// Get 返回客户端的对话。恢复失败时不缓存，下次调用会重试。
func (m *ConversationManager) Get(ctx context.Context, clientID string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conv, ok := m.conversations[clientID]; ok && !conv.Transcript.Closed() {
		conv.lastUsed = m.now()
		return conv, nil
	}

	messages, err := m.repo.Load(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to restore transcript: %w", err)
	}
	transcript := NewTranscript(clientID, m.repo, messages)
	conv := &Conversation{
		ClientID:   clientID,
		Transcript: transcript,
		Revealer:   NewRevealer(transcript, m.revealInterval),
		lastUsed:   m.now(),
	}
	m.conversations[clientID] = conv
	return conv, nil
}

// Acquire 返回客户端的对话并持有它的回合锁。等锁期间对话被回收时换成新恢复的对话。
func (m *ConversationManager) Acquire(ctx context.Context, clientID string) (*Conversation, func(), error) {
	for {
		conv, err := m.Get(ctx, clientID)
		if err != nil {
			return nil, nil, err
		}
		release := conv.BeginTurn()
		if !conv.Transcript.Closed() {
			return conv, release, nil
		}
		release()
	}
}

// Len 返回内存中的对话数量。
func (m *ConversationManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conversations)
}

// Evict 等当前回合结束，写完正在显示的回复，然后丢弃内存中的对话，持久副本保留。
// 旧对话上的订阅随之关闭，迟到的写入不再生效。
func (m *ConversationManager) Evict(clientID string) {
	m.mu.Lock()
	conv, ok := m.conversations[clientID]
	m.mu.Unlock()

	if ok {
		release := conv.BeginTurn()
		defer release()
		m.evictLocked(conv, time.Time{})
	}
}

// Sweep 回收最后一次访问早于 now-idle、没有正在显示的回复、也没有订阅者的对话，返回回收数量。
// 正在执行回合的对话跳过。
func (m *ConversationManager) Sweep(idle time.Duration) int {
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	var stale []*Conversation
	for _, conv := range m.conversations {
		if conv.lastUsed.Before(cutoff) {
			stale = append(stale, conv)
		}
	}
	m.mu.Unlock()

	evicted := 0
	for _, conv := range stale {
		if !conv.turnMu.TryLock() {
			continue
		}
		if !conv.Revealer.Active() && conv.Transcript.Subscribers() == 0 && m.evictLocked(conv, cutoff) {
			evicted++
		}
		conv.turnMu.Unlock()
	}
	return evicted
}

// evictLocked 要求调用方持有 conv 的回合锁。idleBefore 非零时，期间被访问过的对话保留。
func (m *ConversationManager) evictLocked(conv *Conversation, idleBefore time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conversations[conv.ClientID] != conv {
		return false
	}
	if !idleBefore.IsZero() && !conv.lastUsed.Before(idleBefore) {
		return false
	}
	conv.Revealer.Finish()
	conv.Transcript.Close()
	delete(m.conversations, conv.ClientID)
	return true
}

// RunSweeper 每隔 interval 回收空闲超过 idle 的对话，直到 ctx 结束。idle 或 interval 不大于 0 时直接返回。
func (m *ConversationManager) RunSweeper(ctx context.Context, idle, interval time.Duration) {
	if idle <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(idle); n > 0 {
				log.Infof("回收空闲对话 %d 个，剩余 %d 个", n, m.Len())
			}
		}
	}
}

// Shutdown 让所有正在显示的回复立即写完，进程退出前调用。
func (m *ConversationManager) Shutdown() {
	m.mu.Lock()
	convs := make([]*Conversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		convs = append(convs, c)
	}
	m.mu.Unlock()

	for _, c := range convs {
		c.Revealer.Finish()
	}
}
