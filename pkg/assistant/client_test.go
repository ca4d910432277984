package assistant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"next-chatbot-go/internal/config"
	"next-chatbot-go/internal/model"
)

type capturedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]interface{}
}

func newTestServer(t *testing.T, status int, response string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := capturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
		}
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			require.NoError(t, json.Unmarshal(raw, &c.Body))
		}
		captured = append(captured, c)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func newTestClient(baseURL string) Client {
	return NewClient(config.AssistantConfig{BaseURL: baseURL + "/", APIKey: "app-key"})
}

func TestAskGeneralSendsIdentity(t *testing.T) {
	srv, captured := newTestServer(t, http.StatusOK, `{"answer":"Hi!"}`)
	c := newTestClient(srv.URL)

	reply, err := c.Ask(context.Background(), Question{
		Mode:      model.ModeGeneral,
		Text:      "Hello",
		Username:  "a@b.com",
		SessionID: "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, Reply{Text: "Hi!"}, reply)

	require.Len(t, *captured, 1)
	got := (*captured)[0]
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/chat/ask", got.Path)
	assert.Equal(t, "Bearer app-key", got.Auth)
	assert.Equal(t, map[string]interface{}{
		"username":   "a@b.com",
		"session_id": "s1",
		"question":   "Hello",
		"type":       "General",
	}, got.Body)
}

func TestAskRoutesByMode(t *testing.T) {
	tests := []struct {
		mode     model.Mode
		wantPath string
	}{
		{model.ModeGitHub, "/github"},
		{model.ModeEmail, "/email/send"},
		{model.ModeLinkedin, "/linkedin/connect"},
		{model.Mode("Unknown"), "/chat/ask"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			srv, captured := newTestServer(t, http.StatusOK, `{"message":"done"}`)
			c := newTestClient(srv.URL)

			reply, err := c.Ask(context.Background(), Question{Mode: tt.mode, Text: "q", Username: "a@b.com", SessionID: "s1"})
			require.NoError(t, err)
			assert.Equal(t, "done", reply.Text)

			got := (*captured)[0]
			assert.Equal(t, tt.wantPath, got.Path)
			assert.Equal(t, map[string]interface{}{"question": "q", "type": string(tt.mode)}, got.Body)
		})
	}
}

func TestAskErrorFieldWins(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusTooManyRequests, `{"answer":"ignored","error":"rate limited"}`)
	c := newTestClient(srv.URL)

	reply, err := c.Ask(context.Background(), Question{Mode: model.ModeGeneral, Text: "q"})
	require.NoError(t, err)
	assert.Equal(t, Reply{Text: "rate limited", IsError: true}, reply)
}

func TestAskAnswerPreferredOverMessage(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"answer":"a","message":"m"}`)
	c := newTestClient(srv.URL)

	reply, err := c.Ask(context.Background(), Question{Mode: model.ModeGeneral, Text: "q"})
	require.NoError(t, err)
	assert.Equal(t, "a", reply.Text)
}

func TestAskNonJSONResponse(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusBadGateway, `<html>bad gateway</html>`)
	c := newTestClient(srv.URL)

	_, err := c.Ask(context.Background(), Question{Mode: model.ModeGeneral, Text: "q"})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestAskTransportFailure(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{}`)
	c := newTestClient(srv.URL)
	srv.Close()

	_, err := c.Ask(context.Background(), Question{Mode: model.ModeGeneral, Text: "q"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedResponse)
}

func TestHistory(t *testing.T) {
	srv, captured := newTestServer(t, http.StatusOK, `[{"session_id":"s1","username":"a@b.com","messages":[{"role":"user","content":"hi"}],"created_at":"2025-01-01T10:00:00","updated_at":""}]`)
	c := newTestClient(srv.URL)

	sessions, err := c.History(context.Background(), "a+b@c.com")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].SessionID)
	assert.Equal(t, []model.ChatMessage{model.UserMessage("hi")}, sessions[0].Messages)

	got := (*captured)[0]
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/gethistory", got.Path)
	assert.Equal(t, "username=a%2Bb%40c.com", got.Query)
}

func TestHistoryNon200(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusInternalServerError, `{"detail":"boom"}`)
	c := newTestClient(srv.URL)

	_, err := c.History(context.Background(), "a@b.com")
	assert.Error(t, err)
}

func TestRouteForFallback(t *testing.T) {
	assert.Equal(t, FallbackRoute, RouteFor(model.Mode("LinkedIn ")))
	assert.True(t, RouteFor(model.ModeGeneral).Identified)
	assert.False(t, FallbackRoute.Identified)
}
