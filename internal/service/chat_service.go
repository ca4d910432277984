// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"next-chatbot-go/internal/model"
	"next-chatbot-go/internal/repository"
	"next-chatbot-go/pkg/assistant"
	"next-chatbot-go/pkg/log"
	"next-chatbot-go/pkg/tasks"
)

// SyntheticErrorReply 在请求助手失败（网络错误、非 JSON 响应）时代替回复显示。
const SyntheticErrorReply = "An error occurred. Please try again."

// DefaultProcessingText 是等待回复时的占位消息。
const DefaultProcessingText = "Processing..."

var (
	ErrEmptyMessage   = errors.New("Message cannot be empty")
	ErrUnknownMode    = errors.New("unknown mode")
	ErrInvalidSession = errors.New("session id cannot be empty")
)

// ArchivePublisher 接收回合结束后的归档任务，未启用归档时为 nil。
type ArchivePublisher interface {
	ProduceArchiveTask(ctx context.Context, task tasks.TranscriptArchiveTask) error
}

// TurnResult 是一次提交的结果。Done 在逐字显示结束时关闭。
type TurnResult struct {
	Reply     assistant.Reply `json:"reply"`
	Mode      model.Mode      `json:"mode"`
	SessionID string          `json:"sessionId"`
	Done      <-chan struct{} `json:"-"`
}

// ChatService 定义了对话区的操作。
type ChatService interface {
	// Submit 执行一个回合：追加用户消息和占位消息，请求助手，然后开始逐字显示回复。
	// rawMode 为空时使用客户端保存的模式；无法识别的模式走默认接口。
	Submit(ctx context.Context, clientID, question, rawMode string) (*TurnResult, error)
	Stop(ctx context.Context, clientID string) error
	Reset(ctx context.Context, clientID string) error
	Mode(ctx context.Context, clientID string) (model.Mode, error)
	SetMode(ctx context.Context, clientID, rawMode string) (model.Mode, error)
	// OpenSession 切换到指定会话，返回前端应跳转的路由。
	OpenSession(ctx context.Context, clientID, sessionID string) (string, error)
	NewSession(ctx context.Context, clientID string) (string, error)
	Conversation(ctx context.Context, clientID string) (*Conversation, error)
}

type chatService struct {
	conversations  *ConversationManager
	assistant      assistant.Client
	identities     repository.IdentityRepository
	preferences    repository.PreferenceRepository
	archive        ArchivePublisher
	processingText string
	newID          func() string
}

// NewChatService 创建一个新的 ChatService 实例。archive 可以为 nil。
func NewChatService(
	conversations *ConversationManager,
	assistantClient assistant.Client,
	identities repository.IdentityRepository,
	preferences repository.PreferenceRepository,
	archive ArchivePublisher,
	processingText string,
) ChatService {
	if processingText == "" {
		processingText = DefaultProcessingText
	}
	return &chatService{
		conversations:  conversations,
		assistant:      assistantClient,
		identities:     identities,
		preferences:    preferences,
		archive:        archive,
		processingText: processingText,
		newID:          uuid.NewString,
	}
}

func (s *chatService) Conversation(ctx context.Context, clientID string) (*Conversation, error) {
	return s.conversations.Get(ctx, clientID)
}

func (s *chatService) Submit(ctx context.Context, clientID, question, rawMode string) (*TurnResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyMessage
	}
	conv, release, err := s.conversations.Acquire(ctx, clientID)
	if err != nil {
		return nil, err
	}
	defer release()

	// 上一轮还在显示时直接写完，之后的占位消息不会被旧任务覆盖
	conv.Revealer.Finish()

	mode := s.resolveMode(ctx, clientID, rawMode)
	identity, err := s.identities.GetIdentity(ctx, clientID)
	if err != nil {
		log.Warnf("[ChatService] 读取身份信息失败, client: %s, error: %v", clientID, err)
	}
	sessionID, err := s.ensureSessionID(ctx, clientID)
	if err != nil {
		log.Warnf("[ChatService] 读取会话 ID 失败, client: %s, error: %v", clientID, err)
	}

	if err := conv.Transcript.Append(ctx, model.UserMessage(question)); err != nil {
		log.Warnf("[ChatService] %v", err)
	}
	if err := conv.Transcript.Append(ctx, model.BotMessage(s.processingText)); err != nil {
		log.Warnf("[ChatService] %v", err)
	}

	reply, err := s.assistant.Ask(ctx, assistant.Question{
		Mode:      mode,
		Text:      question,
		Username:  identity.Email,
		SessionID: sessionID,
	})
	if err != nil {
		log.Errorf("[ChatService] 请求助手失败, client: %s, mode: %s, error: %v", clientID, mode, err)
		reply = assistant.Reply{Text: SyntheticErrorReply, IsError: true}
	}

	username := identity.Email
	done := conv.Revealer.StartThen(reply.Text, func() {
		s.completeTurn(conv, username, sessionID)
	})

	return &TurnResult{Reply: reply, Mode: mode, SessionID: sessionID, Done: done}, nil
}

// completeTurn 在逐字显示结束时、下一次变更之前执行：通知订阅者回合结束，
// 并用此刻的对话投递归档任务。投递在后台进行，不阻塞下一回合。
func (s *chatService) completeTurn(conv *Conversation, username, sessionID string) {
	messages := conv.Transcript.MarkComplete()

	if s.archive == nil || sessionID == "" {
		return
	}
	task := tasks.TranscriptArchiveTask{
		TaskID:      s.newID(),
		ClientID:    conv.ClientID,
		SessionID:   sessionID,
		Username:    username,
		Messages:    messages,
		CompletedAt: time.Now().UTC(),
	}
	go s.publishArchive(task)
}

func (s *chatService) publishArchive(task tasks.TranscriptArchiveTask) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.archive.ProduceArchiveTask(ctx, task); err != nil {
		log.Warnf("[ChatService] 投递归档任务失败, session: %s, error: %v", task.SessionID, err)
	}
}

func (s *chatService) resolveMode(ctx context.Context, clientID, rawMode string) model.Mode {
	if rawMode != "" {
		// 无法识别的模式原样透传，由网关走默认接口
		mode, _ := model.ParseMode(rawMode)
		return mode
	}
	mode, err := s.preferences.GetMode(ctx, clientID)
	if err != nil {
		log.Warnf("[ChatService] 读取模式失败, client: %s, error: %v", clientID, err)
	}
	return mode
}

func (s *chatService) ensureSessionID(ctx context.Context, clientID string) (string, error) {
	id, err := s.preferences.GetSessionID(ctx, clientID)
	if err != nil || id != "" {
		return id, err
	}
	id = s.newID()
	return id, s.preferences.SetSessionID(ctx, clientID, id)
}

func (s *chatService) Stop(ctx context.Context, clientID string) error {
	conv, err := s.conversations.Get(ctx, clientID)
	if err != nil {
		return err
	}
	conv.Revealer.Stop()
	return nil
}

func (s *chatService) Reset(ctx context.Context, clientID string) error {
	conv, release, err := s.conversations.Acquire(ctx, clientID)
	if err != nil {
		return err
	}
	defer release()

	conv.Revealer.Stop()
	return conv.Transcript.Reset(ctx)
}

func (s *chatService) Mode(ctx context.Context, clientID string) (model.Mode, error) {
	return s.preferences.GetMode(ctx, clientID)
}

func (s *chatService) SetMode(ctx context.Context, clientID, rawMode string) (model.Mode, error) {
	mode, ok := model.ParseMode(rawMode)
	if !ok {
		return "", ErrUnknownMode
	}
	if err := s.preferences.SetMode(ctx, clientID, mode); err != nil {
		return "", err
	}
	return mode, nil
}

func (s *chatService) OpenSession(ctx context.Context, clientID, sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", ErrInvalidSession
	}
	conv, release, err := s.conversations.Acquire(ctx, clientID)
	if err != nil {
		return "", err
	}
	defer release()

	conv.Revealer.Stop()
	if err := conv.Transcript.Reset(ctx); err != nil {
		return "", err
	}
	if err := s.preferences.SetSessionID(ctx, clientID, sessionID); err != nil {
		return "", err
	}
	return "/chat/" + url.PathEscape(sessionID), nil
}

func (s *chatService) NewSession(ctx context.Context, clientID string) (string, error) {
	return s.OpenSession(ctx, clientID, s.newID())
}
