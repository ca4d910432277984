package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"next-chatbot-go/internal/config"
)

// BackendSender 通过助手后端的 /send-email 发信，使用应用密钥而不是用户 token。
type BackendSender struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewBackendSender 创建走助手后端的发信通道。
func NewBackendSender(assistantCfg config.AssistantConfig, mailCfg config.MailConfig, hc *http.Client) *BackendSender {
	if hc == nil {
		hc = &http.Client{Timeout: mailCfg.Timeout}
	}
	return &BackendSender{
		baseURL: strings.TrimRight(assistantCfg.BaseURL, "/"),
		apiKey:  assistantCfg.APIKey,
		client:  hc,
	}
}

func (s *BackendSender) RequiresAccessToken() bool { return false }

type backendSendRequest struct {
	ToEmail string `json:"to_email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Send 忽略 accessToken。
func (s *BackendSender) Send(ctx context.Context, msg Message, _ string) error {
	reqBytes, err := json.Marshal(backendSendRequest{ToEmail: msg.To, Subject: msg.Subject, Body: msg.Body})
	if err != nil {
		return fmt.Errorf("failed to marshal send-email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/send-email", bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to create send-email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call /send-email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s, body: %s", ErrProvider, resp.Status, string(bodyBytes))
	}
	return nil
}
