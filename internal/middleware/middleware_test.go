package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"next-chatbot-go/internal/service"
	"next-chatbot-go/pkg/log"
	"next-chatbot-go/pkg/token"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// revokedOnly 只实现黑名单查询，其余方法不会被中间件调用。
type revokedOnly struct {
	service.UserService
	revoked map[string]bool
}

func (r revokedOnly) IsRevoked(_ context.Context, tokenString string) (bool, error) {
	return r.revoked[tokenString], nil
}

func newAuthRouter(jwtManager *token.JWTManager, users service.UserService) *gin.Engine {
	r := gin.New()
	r.GET("/me", AuthMiddleware(jwtManager, users), func(c *gin.Context) {
		claims := Claims(c)
		c.JSON(http.StatusOK, gin.H{"clientID": ClientID(c), "username": claims.Username, "token": AccessToken(c)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	jwtManager := token.NewJWTManager("secret", 1, 1)
	access, err := jwtManager.GenerateToken("c1", "a@b.com")
	require.NoError(t, err)
	refresh, err := jwtManager.GenerateRefreshToken("c1", "a@b.com")
	require.NoError(t, err)
	revoked, err := jwtManager.GenerateToken("c1", "a@b.com")
	require.NoError(t, err)

	r := newAuthRouter(jwtManager, revokedOnly{revoked: map[string]bool{revoked: true}})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + access, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Token " + access, http.StatusUnauthorized},
		{"refresh token", "Bearer " + refresh, http.StatusUnauthorized},
		{"revoked", "Bearer " + revoked, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.JSONEq(t, `{"clientID":"c1","username":"a@b.com","token":"`+access+`"}`, w.Body.String())
			}
		})
	}
}

func TestRateLimitPerClient(t *testing.T) {
	limiter := NewClientRateLimiter(0.001, 2)
	r := gin.New()
	r.POST("/submit", func(c *gin.Context) {
		c.Set(clientIDKey, c.GetHeader("X-Client"))
		c.Next()
	}, RateLimit(limiter), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	send := func(client string) int {
		req := httptest.NewRequest(http.MethodPost, "/submit", nil)
		req.Header.Set("X-Client", client)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, send("a"))
	assert.Equal(t, http.StatusNoContent, send("a"))
	assert.Equal(t, http.StatusTooManyRequests, send("a"))
	// 其他客户端不受影响
	assert.Equal(t, http.StatusNoContent, send("b"))
}

func TestRateLimitDisabled(t *testing.T) {
	limiter := NewClientRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, limiter.Allow("c1"))
	}
}

func TestRateLimiterPrunesIdleClients(t *testing.T) {
	limiter := NewClientRateLimiter(1, 1)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	require.True(t, limiter.Allow("idle"))
	now = now.Add(20 * time.Minute)
	require.True(t, limiter.Allow("active"))
	assert.False(t, limiter.Allow("active"))
	assert.Equal(t, 2, limiter.Len())

	assert.Equal(t, 1, limiter.Prune(10*time.Minute))
	assert.Equal(t, 1, limiter.Len())

	// 保留下来的客户端仍然受限
	assert.False(t, limiter.Allow("active"))
	now = now.Add(time.Second)
	assert.True(t, limiter.Allow("active"))
}

func TestRunPrunerStopsWithContext(t *testing.T) {
	limiter := NewClientRateLimiter(1, 1)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return start }
	require.True(t, limiter.Allow("c1"))
	limiter.now = func() time.Time { return start.Add(time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		limiter.RunPruner(ctx, time.Minute, time.Millisecond)
		close(stopped)
	}()

	require.Eventually(t, func() bool { return limiter.Len() == 0 }, 5*time.Second, time.Millisecond)
	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("pruner did not stop")
	}
}

func TestRequestLoggerRedactsAuthBodies(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log.Replace(zap.New(core))
	t.Cleanup(func() { log.Replace(zap.NewNop()) })

	r := gin.New()
	r.Use(RequestLogger())
	r.POST("/api/v1/auth/login", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"token": "secret-token"})
	})
	r.POST("/api/v1/render", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"idToken":"x"}`)))
	assert.Contains(t, w.Body.String(), "secret-token")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/render", strings.NewReader(`{"content":"hi"}`)))

	entries := logs.FilterMessage("HTTP Request Log").All()
	require.Len(t, entries, 2)
	login := entries[0].ContextMap()
	assert.Equal(t, "[redacted]", login["requestBody"])
	assert.Equal(t, "[redacted]", login["responseBody"])
	render := entries[1].ContextMap()
	assert.Equal(t, `{"content":"hi"}`, render["requestBody"])
	assert.Equal(t, `{"ok":true}`, render["responseBody"])
}
