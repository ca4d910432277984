package handler

import (
	"github.com/gin-gonic/gin"

	"next-chatbot-go/internal/middleware"
	"next-chatbot-go/internal/service"
	"next-chatbot-go/pkg/token"
)

// Services 是路由需要的全部业务依赖。
type Services struct {
	User    service.UserService
	Chat    service.ChatService
	History service.HistoryService
	Mail    service.MailService
	Archive service.ArchiveService
}

// NewRouter 创建路由引擎并注册所有路由。
func NewRouter(svc Services, jwtManager *token.JWTManager, limiter *middleware.ClientRateLimiter) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	authHandler := NewAuthHandler(svc.User, jwtManager)
	userHandler := NewUserHandler(svc.User)
	chatHandler := NewChatHandler(svc.Chat, svc.User, jwtManager)
	historyHandler := NewHistoryHandler(svc.History, svc.Chat)
	mailHandler := NewMailHandler(svc.Mail)
	archiveHandler := NewArchiveHandler(svc.Archive)

	authed := middleware.AuthMiddleware(jwtManager, svc.User)
	limited := middleware.RateLimit(limiter)

	apiV1 := r.Group("/api/v1")
	{
		// 无需认证的路由
		auth := apiV1.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/guest", authHandler.Guest)
			auth.POST("/refreshToken", authHandler.RefreshToken)
		}

		users := apiV1.Group("/users", authed)
		{
			users.GET("/me", userHandler.GetProfile)
			users.POST("/logout", userHandler.Logout)
		}

		chat := apiV1.Group("/chat", authed)
		{
			chat.GET("/transcript", chatHandler.GetTranscript)
			chat.DELETE("/transcript", chatHandler.ResetTranscript)
			chat.GET("/mode", chatHandler.GetMode)
			chat.PUT("/mode", chatHandler.SetMode)
			chat.POST("/submit", limited, chatHandler.Submit)
			chat.POST("/stop", chatHandler.Stop)
			chat.POST("/sessions", chatHandler.NewSession)
		}

		history := apiV1.Group("/history", authed)
		{
			history.GET("", historyHandler.Browse)
			history.POST("/:sessionId/open", historyHandler.Open)
		}

		apiV1.POST("/mail/send", authed, limited, mailHandler.Send)
		apiV1.POST("/render", authed, Render)

		transcripts := apiV1.Group("/transcripts", authed)
		{
			transcripts.GET("/search", archiveHandler.Search)
			transcripts.GET("/export", archiveHandler.Export)
		}
	}

	// Chat 路由 (WebSocket)，token 放在路径里
	r.GET("/chat/:token", chatHandler.Handle)
	return r
}
