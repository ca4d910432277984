// Package assistant 是助手后端的 HTTP 客户端。
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"next-chatbot-go/internal/config"
	"next-chatbot-go/internal/model"
)

// ErrMalformedResponse 表示后端返回的不是预期的 JSON。
var ErrMalformedResponse = errors.New("assistant: malformed response")

// DefaultTimeout 在配置未给出超时时使用。
const DefaultTimeout = 60 * time.Second

// Question 是一次用户提问。Username 和 SessionID 只有需要身份的接口才会发送。
type Question struct {
	Mode      model.Mode
	Text      string
	Username  string
	SessionID string
}

// Reply 是后端的回答。后端返回 error 字段时 IsError 为 true，Text 为错误文本。
type Reply struct {
	Text    string
	IsError bool
}

// Client 定义了助手后端的操作。
type Client interface {
	// Ask 按模式选择接口并发送一次提问。传输失败或响应不是 JSON 时返回 error。
	Ask(ctx context.Context, q Question) (Reply, error)
	// History 拉取某个用户的全部历史会话。
	History(ctx context.Context, username string) ([]model.ChatSession, error)
}

type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient 根据配置创建客户端。
func NewClient(cfg config.AssistantConfig) Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewClientWithHTTP(cfg, &http.Client{Timeout: timeout})
}

// NewClientWithHTTP 允许注入自定义的 http.Client。
func NewClientWithHTTP(cfg config.AssistantConfig, hc *http.Client) Client {
	return &httpClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  hc,
	}
}

// identifiedRequest 带有用户身份和会话，只有 General 接口使用。
type identifiedRequest struct {
	Username  string `json:"username"`
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	Type      string `json:"type"`
}

type plainRequest struct {
	Question string `json:"question"`
	Type     string `json:"type"`
}

type askResponse struct {
	Answer  string `json:"answer"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *httpClient) Ask(ctx context.Context, q Question) (Reply, error) {
	r := RouteFor(q.Mode)

	var body interface{} = plainRequest{Question: q.Text, Type: string(q.Mode)}
	if r.Identified {
		body = identifiedRequest{
			Username:  q.Username,
			SessionID: q.SessionID,
			Question:  q.Text,
			Type:      string(q.Mode),
		}
	}
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to marshal ask request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+r.Path, bytes.NewReader(reqBytes))
	if err != nil {
		return Reply{}, fmt.Errorf("failed to create ask request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to call %s: %w", r.Path, err)
	}
	defer resp.Body.Close()

	// 与前端一致：不看状态码，只要是 JSON 就按字段解析
	var data askResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Reply{}, fmt.Errorf("%w: %s returned %s: %v", ErrMalformedResponse, r.Path, resp.Status, err)
	}
	if data.Error != "" {
		return Reply{Text: data.Error, IsError: true}, nil
	}
	if data.Answer != "" {
		return Reply{Text: data.Answer}, nil
	}
	return Reply{Text: data.Message}, nil
}

func (c *httpClient) History(ctx context.Context, username string) ([]model.ChatSession, error) {
	endpoint := c.baseURL + "/gethistory?username=" + url.QueryEscape(username)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create history request: %w", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call /gethistory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("/gethistory returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var sessions []model.ChatSession
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return nil, fmt.Errorf("%w: /gethistory: %v", ErrMalformedResponse, err)
	}
	return sessions, nil
}

func (c *httpClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
