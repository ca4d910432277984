package service

import (
	"context"
	"errors"
	"strings"

	"next-chatbot-go/internal/model"
	"next-chatbot-go/internal/repository"
	"next-chatbot-go/pkg/log"
	"next-chatbot-go/pkg/mail"
)

const (
	MailSentMessage   = "✅ Email sent successfully"
	MailFailedMessage = "❌ Failed to send email"
)

var (
	ErrEmptyRecipient     = errors.New("Email cannot be empty")
	ErrAccessTokenMissing = errors.New("Access Token Missing! Please login again.")
)

// MailResult 是发送结果，Message 同时被追加到对话中。
type MailResult struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// MailService 发送由用户确认过的邮件草稿。
type MailService interface {
	Send(ctx context.Context, clientID, to, subject, body string) (*MailResult, error)
}

type mailService struct {
	conversations *ConversationManager
	identities    repository.IdentityRepository
	sender        mail.Sender
}

// NewMailService 创建一个新的 MailService 实例。
func NewMailService(conversations *ConversationManager, identities repository.IdentityRepository, sender mail.Sender) MailService {
	return &mailService{conversations: conversations, identities: identities, sender: sender}
}

// Send 在收件人为空或缺少 access token 时直接返回错误，不发起任何网络请求。
// 服务商返回失败不算错误，结果以一条机器人消息的形式写入对话。
func (s *mailService) Send(ctx context.Context, clientID, to, subject, body string) (*MailResult, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, ErrEmptyRecipient
	}

	var accessToken string
	if s.sender.RequiresAccessToken() {
		token, ok, err := s.identities.GetAccessToken(ctx, clientID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrAccessTokenMissing
		}
		accessToken = token
	}

	conv, release, err := s.conversations.Acquire(ctx, clientID)
	if err != nil {
		return nil, err
	}
	defer release()
	conv.Revealer.Finish()

	result := &MailResult{Sent: true, Message: MailSentMessage}
	if err := s.sender.Send(ctx, mail.Message{To: to, Subject: subject, Body: body}, accessToken); err != nil {
		log.Errorf("[MailService] 发送邮件失败, client: %s, error: %v", clientID, err)
		result = &MailResult{Sent: false, Message: MailFailedMessage}
	} else {
		log.Infof("[MailService] 邮件已发送, client: %s", clientID)
	}

	if err := conv.Transcript.Append(ctx, model.BotMessage(result.Message)); err != nil {
		log.Warnf("[MailService] %v", err)
	}
	return result, nil
}
