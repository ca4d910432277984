package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"next-chatbot-go/internal/middleware"
	"next-chatbot-go/internal/model"
	"next-chatbot-go/internal/service"
	"next-chatbot-go/pkg/log"
	"next-chatbot-go/pkg/render"
	"next-chatbot-go/pkg/token"
)

const writeWait = 10 * time.Second

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// renderedMessage 是推送给前端的一条消息，附带格式化后的片段。
type renderedMessage struct {
	Index   int        `json:"index"`
	Role    model.Role `json:"role"`
	Content string     `json:"content"`
	render.Rendered
}

func renderMessage(index int, msg model.ChatMessage) renderedMessage {
	return renderedMessage{
		Index:    index,
		Role:     msg.Role,
		Content:  msg.Content,
		Rendered: render.Render(msg),
	}
}

func renderTranscript(messages []model.ChatMessage) []renderedMessage {
	out := make([]renderedMessage, 0, len(messages))
	for i, m := range messages {
		out = append(out, renderMessage(i, m))
	}
	return out
}

// serverFrame 是服务端推送的 websocket 帧。
// Type 取值：snapshot、append、replace_last、reset、completion、error。
type serverFrame struct {
	Type      string            `json:"type"`
	Index     int               `json:"index"`
	Message   *renderedMessage  `json:"message,omitempty"`
	Messages  []renderedMessage `json:"messages,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// clientFrame 是浏览器发来的指令：submit、stop、mode。
type clientFrame struct {
	Type     string `json:"type"`
	Question string `json:"question"`
	Mode     string `json:"mode"`
}

const frameSnapshot = "snapshot"
const frameError = "error"

func eventFrame(ev service.TranscriptEvent) serverFrame {
	frame := serverFrame{Type: string(ev.Type), Index: ev.Index, Timestamp: time.Now().UnixMilli()}
	if ev.Type == service.EventAppend || ev.Type == service.EventReplaceLast {
		msg := renderMessage(ev.Index, ev.Message)
		frame.Message = &msg
	}
	return frame
}

// ChatHandler 负责对话区：REST 接口和 websocket 推送。
type ChatHandler struct {
	chatService service.ChatService
	userService service.UserService
	jwtManager  *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, userService service.UserService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		userService: userService,
		jwtManager:  jwtManager,
	}
}

// GetTranscript 返回当前对话的全部消息及渲染结果。
func (h *ChatHandler) GetTranscript(c *gin.Context) {
	conv, err := h.chatService.Conversation(c.Request.Context(), middleware.ClientID(c))
	if err != nil {
		respondServiceError(c, "GetTranscript", err)
		return
	}
	respondOK(c, "success", renderTranscript(conv.Transcript.Messages()))
}

// ResetTranscript 清空对话区。
func (h *ChatHandler) ResetTranscript(c *gin.Context) {
	if err := h.chatService.Reset(c.Request.Context(), middleware.ClientID(c)); err != nil {
		respondServiceError(c, "ResetTranscript", err)
		return
	}
	respondOK(c, "Transcript cleared", nil)
}

// GetMode 返回客户端保存的模式。
func (h *ChatHandler) GetMode(c *gin.Context) {
	mode, err := h.chatService.Mode(c.Request.Context(), middleware.ClientID(c))
	if err != nil {
		respondServiceError(c, "GetMode", err)
		return
	}
	respondOK(c, "success", gin.H{"mode": mode})
}

// ModeRequest 是切换模式的请求体。
type ModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// SetMode 保存客户端选择的模式。
func (h *ChatHandler) SetMode(c *gin.Context) {
	var req ModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("SetMode: Invalid request payload, error: %v", err)
		respondError(c, http.StatusBadRequest, "无效的请求负载：mode 不能为空")
		return
	}
	mode, err := h.chatService.SetMode(c.Request.Context(), middleware.ClientID(c), req.Mode)
	if err != nil {
		respondServiceError(c, "SetMode", err)
		return
	}
	respondOK(c, "success", gin.H{"mode": mode})
}

// SubmitRequest 是提交问题的请求体。Mode 为空时使用已保存的模式。
type SubmitRequest struct {
	Question string `json:"question"`
	Mode     string `json:"mode"`
}

// Submit 提交一个问题。回复开始逐字显示后立即返回，显示进度通过 websocket 推送。
// 带 ?wait=true 时等到显示结束再返回完整对话。
func (h *ChatHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Submit: Invalid request payload, error: %v", err)
		respondError(c, http.StatusBadRequest, "无效的请求负载")
		return
	}
	clientID := middleware.ClientID(c)
	result, err := h.chatService.Submit(c.Request.Context(), clientID, req.Question, req.Mode)
	if err != nil {
		respondServiceError(c, "Submit", err)
		return
	}

	data := gin.H{"reply": result.Reply, "mode": result.Mode, "sessionId": result.SessionID}
	if c.Query("wait") == "true" {
		select {
		case <-result.Done:
		case <-c.Request.Context().Done():
			return
		}
		conv, err := h.chatService.Conversation(c.Request.Context(), clientID)
		if err != nil {
			respondServiceError(c, "Submit", err)
			return
		}
		data["messages"] = renderTranscript(conv.Transcript.Messages())
	}
	respondOK(c, "success", data)
}

// Stop 停止逐字显示，保留已显示的部分。
func (h *ChatHandler) Stop(c *gin.Context) {
	if err := h.chatService.Stop(c.Request.Context(), middleware.ClientID(c)); err != nil {
		respondServiceError(c, "Stop", err)
		return
	}
	respondOK(c, "响应已停止", nil)
}

// NewSession 开启新会话并清空对话区。
func (h *ChatHandler) NewSession(c *gin.Context) {
	route, err := h.chatService.NewSession(c.Request.Context(), middleware.ClientID(c))
	if err != nil {
		respondServiceError(c, "NewSession", err)
		return
	}
	respondOK(c, "success", gin.H{"route": route})
}

// Handle 处理一个传入的 WebSocket 连接。
// 连接建立后先推送完整快照，之后按顺序推送对话变更；读循环处理浏览器发来的指令。
func (h *ChatHandler) Handle(c *gin.Context) {
	claims, err := middleware.Authenticate(c.Request.Context(), h.jwtManager, h.userService, c.Param("token"))
	if err != nil {
		respondError(c, http.StatusUnauthorized, "无效的 token")
		return
	}
	clientID := claims.ClientID

	conv, err := h.chatService.Conversation(c.Request.Context(), clientID)
	if err != nil {
		log.Errorf("加载对话失败, client: %s, error: %v", clientID, err)
		respondError(c, http.StatusInternalServerError, "无法加载对话")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("WebSocket 连接已建立，客户端: %s", clientID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, snapshot := conv.Transcript.Subscribe()
	defer sub.Close()

	var writeMu sync.Mutex
	write := func(frame serverFrame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(frame)
	}
	sendError := func(err error) {
		_, message := statusFor(err)
		_ = write(serverFrame{Type: frameError, Error: message, Timestamp: time.Now().UnixMilli()})
	}

	if err := write(serverFrame{
		Type:      frameSnapshot,
		Messages:  renderTranscript(snapshot),
		Timestamp: time.Now().UnixMilli(),
	}); err != nil {
		log.Warnf("发送快照失败, client: %s, error: %v", clientID, err)
		return
	}

	go func() {
		defer cancel()
		for {
			ev, err := sub.Next(ctx)
			if err != nil {
				// 对话被回收时订阅关闭，断开连接让浏览器重连到新的对话
				if errors.Is(err, service.ErrSubscriptionClosed) {
					_ = conn.Close()
				}
				return
			}
			if err := write(eventFrame(ev)); err != nil {
				log.Warnf("推送对话事件失败, client: %s, error: %v", clientID, err)
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Infof("WebSocket 连接关闭, client: %s, reason: %v", clientID, err)
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			log.Warnf("无法解析 WebSocket 消息: %s", string(message))
			_ = write(serverFrame{Type: frameError, Error: "invalid frame", Timestamp: time.Now().UnixMilli()})
			continue
		}

		switch frame.Type {
		case "submit":
			// 请求助手期间仍要能收到 stop，所以在独立的 goroutine 中执行；回合之间由会话锁串行。
			// 连接断开不取消回合，回复照常写入对话
			go func(question, mode string) {
				if _, err := h.chatService.Submit(context.WithoutCancel(ctx), clientID, question, mode); err != nil {
					sendError(err)
				}
			}(frame.Question, frame.Mode)
		case "stop":
			if err := h.chatService.Stop(ctx, clientID); err != nil {
				sendError(err)
			}
		case "mode":
			if _, err := h.chatService.SetMode(ctx, clientID, frame.Mode); err != nil {
				sendError(err)
			}
		default:
			_ = write(serverFrame{Type: frameError, Error: "unknown frame type", Timestamp: time.Now().UnixMilli()})
		}
	}
}
