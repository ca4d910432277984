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

// GmailSender 用用户的 access token 直接调用邮件服务商的 messages/send 接口。
type GmailSender struct {
	apiURL string
	client *http.Client
}

// NewGmailSender 创建直连邮件服务商的发信通道。
func NewGmailSender(cfg config.MailConfig, hc *http.Client) *GmailSender {
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &GmailSender{
		apiURL: strings.TrimRight(cfg.GmailAPIURL, "/"),
		client: hc,
	}
}

func (s *GmailSender) RequiresAccessToken() bool { return true }

type gmailSendRequest struct {
	Raw string `json:"raw"`
}

// Send 发送邮件，非 2xx 响应包装为 ErrProvider。
func (s *GmailSender) Send(ctx context.Context, msg Message, accessToken string) error {
	reqBytes, err := json.Marshal(gmailSendRequest{Raw: EncodeRaw(BuildRaw(msg))})
	if err != nil {
		return fmt.Errorf("failed to marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/users/me/messages/send", bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call messages/send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s, body: %s", ErrProvider, resp.Status, string(bodyBytes))
	}
	return nil
}
