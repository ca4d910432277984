package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"next-chatbot-go/internal/model"
	"next-chatbot-go/internal/repository"
)

var (
	// ErrEmptyTranscript 表示对空对话执行了 ReplaceLast。
	ErrEmptyTranscript = errors.New("transcript is empty")
	// ErrSubscriptionClosed 表示订阅已关闭。
	ErrSubscriptionClosed = errors.New("subscription closed")
	// ErrTranscriptClosed 表示对话已从内存中回收，不再接受变更。
	ErrTranscriptClosed = errors.New("transcript closed")
)

// EventType 是对话变更事件的类型，同时也是推送给前端的帧类型。
type EventType string

const (
	EventAppend      EventType = "append"
	EventReplaceLast EventType = "replace_last"
	EventReset       EventType = "reset"
	// EventCompletion 不改变对话内容，标记一次回合（含逐字显示）结束。
	EventCompletion EventType = "completion"
)

// TranscriptEvent 描述一次对话变更。
type TranscriptEvent struct {
	Type    EventType         `json:"type"`
	Index   int               `json:"index"`
	Message model.ChatMessage `json:"message"`
}

// Transcript 是一个客户端的有序消息列表。
// 每次变更都在同一把锁内更新内存、把完整列表写入持久存储、再通知订阅者，
// 因此存储内容总是等于最近一次完成的变更。
type Transcript struct {
	clientID string
	repo     repository.TranscriptRepository

	mu       sync.Mutex
	messages []model.ChatMessage
	subs     map[*Subscription]struct{}
	closed   bool
}

// NewTranscript 用已有消息构造对话。
func NewTranscript(clientID string, repo repository.TranscriptRepository, messages []model.ChatMessage) *Transcript {
	return &Transcript{
		clientID: clientID,
		repo:     repo,
		messages: append([]model.ChatMessage(nil), messages...),
		subs:     make(map[*Subscription]struct{}),
	}
}

// Append 在末尾追加一条消息。存储失败时内存中的变更仍然保留。
func (t *Transcript) Append(ctx context.Context, msg model.ChatMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTranscriptClosed
	}
	t.messages = append(t.messages, msg)
	err := t.persistLocked(ctx)
	t.publishLocked(TranscriptEvent{Type: EventAppend, Index: len(t.messages) - 1, Message: msg})
	return err
}

// ReplaceLast 覆盖最后一条消息，长度不变。
func (t *Transcript) ReplaceLast(ctx context.Context, msg model.ChatMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTranscriptClosed
	}
	if len(t.messages) == 0 {
		return ErrEmptyTranscript
	}
	last := len(t.messages) - 1
	t.messages[last] = msg
	err := t.persistLocked(ctx)
	t.publishLocked(TranscriptEvent{Type: EventReplaceLast, Index: last, Message: msg})
	return err
}

// Reset 清空对话及其持久副本。
func (t *Transcript) Reset(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTranscriptClosed
	}
	t.messages = nil
	var err error
	if t.repo != nil {
		if err = t.repo.Clear(ctx, t.clientID); err != nil {
			err = fmt.Errorf("failed to clear transcript: %w", err)
		}
	}
	t.publishLocked(TranscriptEvent{Type: EventReset, Index: -1})
	return err
}

// MarkComplete 通知订阅者当前回合已结束，并返回此刻消息的副本。
func (t *Transcript) MarkComplete() []model.ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	ev := TranscriptEvent{Type: EventCompletion, Index: len(t.messages) - 1}
	if len(t.messages) > 0 {
		ev.Message = t.messages[len(t.messages)-1]
	}
	t.publishLocked(ev)

	out := make([]model.ChatMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

// Messages 返回当前消息的副本。
func (t *Transcript) Messages() []model.ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.ChatMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// Subscribe 注册一个订阅者，并原子地返回订阅时刻的快照，之后的事件都会进入订阅队列。
func (t *Transcript) Subscribe() (*Subscription, []model.ChatMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := make([]model.ChatMessage, len(t.messages))
	copy(snapshot, t.messages)

	sub := newSubscription()
	if t.closed {
		sub.Close()
		return sub, snapshot
	}
	sub.unsubscribe = func() {
		t.mu.Lock()
		delete(t.subs, sub)
		t.mu.Unlock()
	}
	t.subs[sub] = struct{}{}
	return sub, snapshot
}

// Subscribers 返回当前订阅者数量。
func (t *Transcript) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Close 停止接受变更并关闭所有订阅，之后的写入返回 ErrTranscriptClosed。
func (t *Transcript) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	subs := t.subs
	t.subs = make(map[*Subscription]struct{})
	t.mu.Unlock()

	for sub := range subs {
		sub.Close()
	}
}

// Closed 判断对话是否已被回收。
func (t *Transcript) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transcript) persistLocked(ctx context.Context) error {
	if t.repo == nil {
		return nil
	}
	if err := t.repo.Save(ctx, t.clientID, t.messages); err != nil {
		return fmt.Errorf("failed to mirror transcript: %w", err)
	}
	return nil
}

func (t *Transcript) publishLocked(ev TranscriptEvent) {
	for sub := range t.subs {
		sub.push(ev)
	}
}

// Subscription 是一个无界事件队列。连续的 replace_last 事件会合并为最新的一条，
// 所以慢速的订阅者既不会阻塞逐字显示，也不会无限堆积。
type Subscription struct {
	mu     sync.Mutex
	queue  []TranscriptEvent
	closed bool

	notify      chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
	unsubscribe func()
}

func newSubscription() *Subscription {
	return &Subscription{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *Subscription) push(ev TranscriptEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if n := len(s.queue); n > 0 && ev.Type == EventReplaceLast && s.queue[n-1].Type == EventReplaceLast {
		s.queue[n-1] = ev
	} else {
		s.queue = append(s.queue, ev)
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next 阻塞直到有事件、ctx 结束或订阅关闭。
func (s *Subscription) Next(ctx context.Context) (TranscriptEvent, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue[0] = TranscriptEvent{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return TranscriptEvent{}, ErrSubscriptionClosed
		}

		select {
		case <-s.notify:
		case <-s.done:
		case <-ctx.Done():
			return TranscriptEvent{}, ctx.Err()
		}
	}
}

// Pending 返回队列中尚未取走的事件数。
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close 取消订阅，可重复调用。
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
}
